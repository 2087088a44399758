package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors presence into Redis so other services can read it.
// Keys used:
// - <prefix>:presence:<userID> -> json {status,last_seen}
type PresenceStore struct {
	client *redis.Client
	prefix string
}

type PresenceRecord struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func NewPresenceStore(r *redis.Client, prefix string) *PresenceStore {
	return &PresenceStore{client: r, prefix: prefix}
}

func (s *PresenceStore) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func encodePresence(online bool, at time.Time) ([]byte, error) {
	rec := PresenceRecord{Status: "offline", LastSeen: at.Unix()}
	if online {
		rec.Status = "online"
	}
	return json.Marshal(rec)
}

func (s *PresenceStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	b, err := encodePresence(online, at)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.presenceKey(userID), b, 0).Err()
}

// GetPresence returns the mirrored record; ok is false when none was written.
func (s *PresenceStore) GetPresence(ctx context.Context, userID string) (rec PresenceRecord, ok bool, err error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

func (s *PresenceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
