package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/metric"
	"github.com/fathima-sithara/delivery-service/internal/presence"
)

// Sink is one live connection able to take events.
type Sink interface {
	ID() string
	// Deliver enqueues ev without blocking and reports whether it was accepted.
	Deliver(ev events.Outbound) bool
}

// Hub routes events to the live connections subscribed to a user channel.
type Hub struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Sink // userID -> connID -> sink
	byConn map[string]map[string]Sink // connID -> userID -> sink
	log    *zap.Logger
}

func New(log *zap.Logger) *Hub {
	return &Hub{
		byUser: make(map[string]map[string]Sink),
		byConn: make(map[string]map[string]Sink),
		log:    log.Named("hub"),
	}
}

// Subscribe attaches sink to userID's channel.
func (h *Hub) Subscribe(userID string, s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byUser[userID]; !ok {
		h.byUser[userID] = make(map[string]Sink)
	}
	h.byUser[userID][s.ID()] = s

	if _, ok := h.byConn[s.ID()]; !ok {
		h.byConn[s.ID()] = make(map[string]Sink)
	}
	h.byConn[s.ID()][userID] = s
}

// Unsubscribe detaches connID from userID's channel.
func (h *Hub) Unsubscribe(userID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detach(userID, connID)
}

// UnsubscribeAll detaches connID from every channel it joined.
func (h *Hub) UnsubscribeAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID := range h.byConn[connID] {
		h.detach(userID, connID)
	}
}

func (h *Hub) detach(userID, connID string) {
	if set, ok := h.byUser[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(h.byUser, userID)
		}
	}
	if set, ok := h.byConn[connID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(h.byConn, connID)
		}
	}
}

// Publish sends ev to every sink on userID's channel and returns how many
// accepted it. A channel with no sinks drops the event.
func (h *Hub) Publish(userID string, ev events.Outbound) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	kind := string(ev.Kind())
	set := h.byUser[userID]
	if len(set) == 0 {
		metric.EventsDropped.WithLabelValues(kind, "no_subscriber").Inc()
		return 0
	}

	n := 0
	for connID, s := range set {
		if s.Deliver(ev) {
			n++
			continue
		}
		// slow consumer, drop for this sink only
		metric.EventsDropped.WithLabelValues(kind, "buffer_full").Inc()
		h.log.Debug("event dropped", zap.String("user_id", userID), zap.String("conn_id", connID), zap.String("type", kind))
	}
	if n > 0 {
		metric.EventsPublished.WithLabelValues(kind).Add(float64(n))
	}
	return n
}

// Broadcast sends ev once to every live connection.
func (h *Hub) Broadcast(ev events.Outbound) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	kind := string(ev.Kind())
	n := 0
	for _, users := range h.byConn {
		for _, s := range users {
			if s.Deliver(ev) {
				n++
			} else {
				metric.EventsDropped.WithLabelValues(kind, "buffer_full").Inc()
			}
			break
		}
	}
	if n > 0 {
		metric.EventsPublished.WithLabelValues(kind).Add(float64(n))
	}
	return n
}

// Subscribers returns how many sinks are attached to userID's channel.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// PresenceChanged broadcasts a presence transition to every connection. It
// is meant to be registered as a presence.Listener.
func (h *Hub) PresenceChanged(t presence.Transition) {
	if t.Online {
		metric.OnlineUsers.Inc()
	} else {
		metric.OnlineUsers.Dec()
	}
	h.Broadcast(events.Presence{UserID: t.UserID, Online: t.Online})
}
