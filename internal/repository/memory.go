package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

// MemoryStore is a process-local Store. Callers always get copies.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs map[string]*domain.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{msgs: make(map[string]*domain.Message)}
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

func (s *MemoryStore) Create(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.msgs[m.ID] = clone(m)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(m), nil
}

func (s *MemoryStore) FindByCorrelation(_ context.Context, senderID, receiverID, correlationID string, since time.Time) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Message
	for _, m := range s.msgs {
		if m.SenderID != senderID || m.ReceiverID != receiverID || m.ClientCorrelationID != correlationID {
			continue
		}
		if m.CreatedAt.Before(since) {
			continue
		}
		if best == nil || domain.Less(best, m) {
			best = m
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return clone(best), nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id, body, attachmentRef string, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if body != "" {
		m.Body = body
	}
	if attachmentRef != "" {
		m.AttachmentRef = attachmentRef
	}
	m.UpdatedAt = at
	return clone(m), nil
}

func (s *MemoryStore) AdvanceStatus(_ context.Context, id string, to domain.Status, at time.Time) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	changed := m.Advance(to, at)
	return clone(m), changed, nil
}

func (s *MemoryStore) AdvanceConversation(_ context.Context, senderID, receiverID string, to domain.Status, at time.Time) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.SenderID != senderID || m.ReceiverID != receiverID {
			continue
		}
		if m.Advance(to, at) {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) ListConversation(_ context.Context, a, b string, r Range) ([]*domain.Message, error) {
	s.mu.RLock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.Counterpart(a) != b || m.Counterpart(b) != a {
			continue
		}
		if r.admits(m) {
			out = append(out, clone(m))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	if r.Limit > 0 && len(out) > r.Limit {
		if r.newestFirst() {
			out = out[len(out)-r.Limit:]
		} else {
			out = out[:r.Limit]
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByParticipant(_ context.Context, userID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, m := range s.msgs {
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return domain.Less(out[i], out[j]) })
	return out, nil
}

// MemoryDirectory is a fixed set of known users.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]domain.Profile
}

// NewMemoryDirectory registers ids with empty profiles.
func NewMemoryDirectory(ids ...string) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]domain.Profile)}
	for _, id := range ids {
		d.Put(domain.Profile{ID: id})
	}
	return d
}

func (d *MemoryDirectory) Put(p domain.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[p.ID] = p
}

func (d *MemoryDirectory) Profiles(_ context.Context, ids []string) (map[string]domain.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.users[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
