package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/repository"
)

// ContactsService derives the inbox list of a user from stored messages.
type ContactsService struct {
	store repository.Store
	dir   repository.Directory
	pub   Publisher
	log   *zap.Logger
}

// NewContactsService builds the aggregator. dir may be nil, in which case
// every counterpart is kept.
func NewContactsService(st repository.Store, dir repository.Directory, pub Publisher, log *zap.Logger) *ContactsService {
	return &ContactsService{store: st, dir: dir, pub: pub, log: log.Named("contacts")}
}

// Summarize returns one row per counterpart, most recent conversation first.
func (c *ContactsService) Summarize(ctx context.Context, viewerID string) ([]domain.ConversationSummary, error) {
	if viewerID == "" {
		return nil, fmt.Errorf("%w: viewer is required", domain.ErrValidation)
	}
	msgs, err := c.store.ListByParticipant(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	latest := make(map[string]*domain.Message)
	unread := make(map[string]int)
	for _, m := range msgs {
		cp := m.Counterpart(viewerID)
		if cp == "" || cp == viewerID {
			continue
		}
		if cur, ok := latest[cp]; !ok || domain.Less(cur, m) {
			latest[cp] = m
		}
		if m.SenderID == cp && m.Status != domain.StatusRead {
			unread[cp]++
		}
	}

	profiles := c.profiles(ctx, latest)
	out := make([]domain.ConversationSummary, 0, len(latest))
	for cp, m := range latest {
		p, ok := profiles[cp]
		if profiles != nil && !ok {
			continue
		}
		out = append(out, domain.ConversationSummary{
			CounterpartID:      cp,
			LastMessageID:      m.ID,
			LastSenderID:       m.SenderID,
			LastMessagePreview: domain.Preview(m),
			LastMessageStatus:  m.Status,
			LastMessageAt:      m.CreatedAt,
			UnreadCount:        unread[cp],
			Name:               p.Name,
			Avatar:             p.Avatar,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].CounterpartID < out[j].CounterpartID
	})
	return out, nil
}

// profiles returns nil when every counterpart should be kept.
func (c *ContactsService) profiles(ctx context.Context, latest map[string]*domain.Message) map[string]domain.Profile {
	if c.dir == nil || len(latest) == 0 {
		return nil
	}
	ids := make([]string, 0, len(latest))
	for cp := range latest {
		ids = append(ids, cp)
	}
	found, err := c.dir.Profiles(ctx, ids)
	if err != nil {
		c.log.Warn("user directory unavailable, keeping all contacts", zap.Error(err))
		return nil
	}
	return found
}

// Invalidate tells each user's connections to refetch their inbox.
func (c *ContactsService) Invalidate(userIDs ...string) {
	for _, u := range userIDs {
		if u != "" {
			c.pub.Publish(u, events.ContactsChanged{})
		}
	}
}
