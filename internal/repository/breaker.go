package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/metric"
)

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerStore guards a Store with a circuit breaker. Any failure other than
// not-found, and an open breaker, surface as domain.ErrStoreUnavailable.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Store, cfg BreakerConfig, log *zap.Logger) *BreakerStore {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			if to == gobreaker.StateOpen {
				metric.StoreBreakerState.Set(1)
			} else {
				metric.StoreBreakerState.Set(0)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func guard[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	v, err := b.cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		var zero T
		if errors.Is(err, domain.ErrNotFound) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return v.(T), nil
}

func (b *BreakerStore) Create(ctx context.Context, m *domain.Message) error {
	_, err := guard(b, func() (struct{}, error) { return struct{}{}, b.next.Create(ctx, m) })
	return err
}

func (b *BreakerStore) Get(ctx context.Context, id string) (*domain.Message, error) {
	return guard(b, func() (*domain.Message, error) { return b.next.Get(ctx, id) })
}

func (b *BreakerStore) FindByCorrelation(ctx context.Context, senderID, receiverID, correlationID string, since time.Time) (*domain.Message, error) {
	return guard(b, func() (*domain.Message, error) {
		return b.next.FindByCorrelation(ctx, senderID, receiverID, correlationID, since)
	})
}

func (b *BreakerStore) UpdateContent(ctx context.Context, id, body, attachmentRef string, at time.Time) (*domain.Message, error) {
	return guard(b, func() (*domain.Message, error) {
		return b.next.UpdateContent(ctx, id, body, attachmentRef, at)
	})
}

type advanced struct {
	msg     *domain.Message
	changed bool
}

func (b *BreakerStore) AdvanceStatus(ctx context.Context, id string, to domain.Status, at time.Time) (*domain.Message, bool, error) {
	res, err := guard(b, func() (advanced, error) {
		m, ok, err := b.next.AdvanceStatus(ctx, id, to, at)
		return advanced{msg: m, changed: ok}, err
	})
	return res.msg, res.changed, err
}

func (b *BreakerStore) AdvanceConversation(ctx context.Context, senderID, receiverID string, to domain.Status, at time.Time) ([]*domain.Message, error) {
	return guard(b, func() ([]*domain.Message, error) {
		return b.next.AdvanceConversation(ctx, senderID, receiverID, to, at)
	})
}

func (b *BreakerStore) ListConversation(ctx context.Context, a, c string, r Range) ([]*domain.Message, error) {
	return guard(b, func() ([]*domain.Message, error) { return b.next.ListConversation(ctx, a, c, r) })
}

func (b *BreakerStore) ListByParticipant(ctx context.Context, userID string) ([]*domain.Message, error) {
	return guard(b, func() ([]*domain.Message, error) { return b.next.ListByParticipant(ctx, userID) })
}
