package ws

import (
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/delivery-service/internal/events"
)

// Session is one websocket connection. It is the hub.Sink for every user the
// connection joined.
type Session struct {
	id        string
	principal string // token subject; empty when auth is disabled
	conn      *websocket.Conn
	limiter   *rate.Limiter
	connected time.Time

	mu     sync.Mutex
	send   chan events.Outbound
	closed bool
	joined []string // join order, most recent last
}

func newSession(id, principal string, conn *websocket.Conn, buffer, rps int) *Session {
	return &Session{
		id:        id,
		principal: principal,
		conn:      conn,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		connected: time.Now().UTC(),
		send:      make(chan events.Outbound, buffer),
	}
}

func (s *Session) ID() string { return s.id }

// Deliver enqueues ev without blocking; a full buffer drops it.
func (s *Session) Deliver(ev events.Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- ev:
		return true
	default:
		return false
	}
}

// identity is the user receipts and bulk reads are attributed to.
func (s *Session) identity() string {
	if s.principal != "" {
		return s.principal
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.joined); n > 0 {
		return s.joined[n-1]
	}
	return ""
}

func (s *Session) join(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(userID)
	s.joined = append(s.joined, userID)
}

func (s *Session) leave(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(userID)
}

func (s *Session) removeLocked(userID string) bool {
	for i, u := range s.joined {
		if u == userID {
			s.joined = append(s.joined[:i], s.joined[i+1:]...)
			return true
		}
	}
	return false
}

// close stops delivery; buffered events are discarded by the write pump.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *Session) writePump(cfg Settings, log *zap.Logger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
				return
			}
			b, err := events.Encode(ev)
			if err != nil {
				log.Error("encode event", zap.String("type", string(ev.Kind())), zap.Error(err))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteDeadline)); err != nil {
				return
			}
		}
	}
}
