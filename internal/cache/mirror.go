package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/presence"
)

type PresenceWriter interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

// Mirror copies presence transitions into a PresenceWriter off the registry's
// critical path. Transitions are applied in the order they were observed.
type Mirror struct {
	w       PresenceWriter
	queue   chan presence.Transition
	timeout time.Duration
	log     *zap.Logger
}

func NewMirror(w PresenceWriter, buffer int, log *zap.Logger) *Mirror {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Mirror{
		w:       w,
		queue:   make(chan presence.Transition, buffer),
		timeout: 2 * time.Second,
		log:     log.Named("presence-mirror"),
	}
}

// Observe is a presence.Listener. It never blocks; a full queue drops the
// transition.
func (m *Mirror) Observe(t presence.Transition) {
	select {
	case m.queue <- t:
	default:
		m.log.Warn("presence mirror queue full, dropping transition", zap.String("user_id", t.UserID), zap.Bool("online", t.Online))
	}
}

// Run drains the queue until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-m.queue:
			wctx, cancel := context.WithTimeout(ctx, m.timeout)
			if err := m.w.SetPresence(wctx, t.UserID, t.Online, t.At); err != nil {
				m.log.Warn("mirror presence", zap.String("user_id", t.UserID), zap.Error(err))
			}
			cancel()
		}
	}
}
