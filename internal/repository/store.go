package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

// Store persists messages. Implementations return domain.ErrNotFound for
// unknown ids; every other error means the store could not serve the call.
type Store interface {
	// Create assigns m.ID when empty and inserts m.
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	// FindByCorrelation returns the newest message for the triple created at or
	// after since.
	FindByCorrelation(ctx context.Context, senderID, receiverID, correlationID string, since time.Time) (*domain.Message, error)
	// UpdateContent overwrites body and attachment with the non-empty arguments.
	UpdateContent(ctx context.Context, id, body, attachmentRef string, at time.Time) (*domain.Message, error)
	// AdvanceStatus moves a message forward to `to`. The bool is false when the
	// stored status already is `to` or later; the returned message is then the
	// unchanged stored one.
	AdvanceStatus(ctx context.Context, id string, to domain.Status, at time.Time) (*domain.Message, bool, error)
	// AdvanceConversation moves every message senderID sent to receiverID that
	// is still before `to`, returning the changed ones in conversation order.
	AdvanceConversation(ctx context.Context, senderID, receiverID string, to domain.Status, at time.Time) ([]*domain.Message, error)
	// ListConversation returns messages between a and b in conversation order.
	ListConversation(ctx context.Context, a, b string, r Range) ([]*domain.Message, error)
	// ListByParticipant returns every message userID sent or received.
	ListByParticipant(ctx context.Context, userID string) ([]*domain.Message, error)
}

// Range selects a page of a conversation. With Before set the newest Limit
// messages older than Before are returned; with After set the oldest Limit
// messages newer than After. With neither, the newest Limit messages.
// Limit 0 means no limit.
type Range struct {
	Before time.Time
	After  time.Time
	Limit  int
}

func (r Range) newestFirst() bool { return r.After.IsZero() }

func (r Range) admits(m *domain.Message) bool {
	if !r.Before.IsZero() && !m.CreatedAt.Before(r.Before) {
		return false
	}
	if !r.After.IsZero() && !m.CreatedAt.After(r.After) {
		return false
	}
	return true
}

// Directory resolves user ids to profiles. Ids missing from the result do
// not exist.
type Directory interface {
	Profiles(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}
