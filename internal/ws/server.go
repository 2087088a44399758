package ws

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/auth"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/hub"
	"github.com/fathima-sithara/delivery-service/internal/metric"
	"github.com/fathima-sithara/delivery-service/internal/presence"
	"github.com/fathima-sithara/delivery-service/internal/service"
)

type Settings struct {
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	ReadDeadline    time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	RateLimitPerSec int
	// HandlerTimeout bounds the store work of one inbound event.
	HandlerTimeout time.Duration
}

func (s *Settings) defaults() {
	if s.PingInterval <= 0 {
		s.PingInterval = 25 * time.Second
	}
	if s.WriteDeadline <= 0 {
		s.WriteDeadline = 10 * time.Second
	}
	if s.ReadDeadline <= s.PingInterval {
		s.ReadDeadline = s.PingInterval * 2
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = 65536
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 256
	}
	if s.RateLimitPerSec <= 0 {
		s.RateLimitPerSec = 20
	}
	if s.HandlerTimeout <= 0 {
		s.HandlerTimeout = 5 * time.Second
	}
}

// Server terminates push-path connections and routes their events.
type Server struct {
	registry *presence.Registry
	hub      *hub.Hub
	cmd      *service.CommandService
	relay    *service.RelayService
	jv       *auth.JWTValidator
	cfg      Settings
	log      *zap.Logger
	handlers map[events.Kind]handler
}

// NewServer wires the push path. jv may be nil, in which case connections are
// unauthenticated and identities are taken from join events.
func NewServer(reg *presence.Registry, h *hub.Hub, cmd *service.CommandService, relay *service.RelayService, jv *auth.JWTValidator, cfg Settings, log *zap.Logger) *Server {
	cfg.defaults()
	s := &Server{
		registry: reg,
		hub:      h,
		cmd:      cmd,
		relay:    relay,
		jv:       jv,
		cfg:      cfg,
		log:      log.Named("ws"),
	}
	s.handlers = s.routes()
	return s
}

// HandleWS is the gofiber/websocket handler for GET /v1/ws?token=<jwt>.
func (s *Server) HandleWS() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		var principal string
		if s.jv != nil {
			sub, err := s.jv.Validate(conn.Query("token"))
			if err != nil {
				s.log.Debug("rejecting connection", zap.Error(err))
				b, _ := events.Encode(events.Error{Code: codeUnauthorized, Message: "invalid or missing token"})
				_ = conn.WriteMessage(websocket.TextMessage, b)
				_ = conn.Close()
				return
			}
			principal = sub
		}

		sess := newSession(uuid.NewString(), principal, conn, s.cfg.SendBuffer, s.cfg.RateLimitPerSec)
		metric.Connections.Inc()
		s.log.Debug("connection opened", zap.String("conn_id", sess.id), zap.String("principal", principal))
		defer func() {
			s.disconnect(sess)
			metric.Connections.Dec()
		}()

		if principal != "" {
			s.attach(sess, principal)
		}
		go sess.writePump(s.cfg, s.log)
		s.readPump(sess)
	}
}

func (s *Server) readPump(sess *Session) {
	conn := sess.conn
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read", zap.String("conn_id", sess.id), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadDeadline))
		s.Handle(sess, data)
	}
}

// attach binds sess to userID on both the hub and the registry.
func (s *Server) attach(sess *Session, userID string) {
	s.hub.Subscribe(userID, sess)
	sess.join(userID)
	s.registry.Join(userID, sess.id)
}

func (s *Server) detach(sess *Session, userID string) bool {
	if !sess.leave(userID) {
		return false
	}
	s.hub.Unsubscribe(userID, sess.id)
	s.registry.Leave(userID, sess.id)
	return true
}

func (s *Server) disconnect(sess *Session) {
	s.hub.UnsubscribeAll(sess.id)
	offline := s.registry.DisconnectAll(sess.id)
	sess.close()
	s.log.Debug("connection closed", zap.String("conn_id", sess.id), zap.Strings("offline", offline),
		zap.Duration("lifetime", time.Since(sess.connected)))
}

// Handle decodes one inbound frame and dispatches it. Failures are reported
// to the originating connection only.
func (s *Server) Handle(sess *Session, data []byte) {
	if !sess.limiter.Allow() {
		metric.InboundRejected.WithLabelValues("rate_limited").Inc()
		sess.Deliver(events.Error{Code: codeRateLimited, Message: "too many events"})
		return
	}
	ev, err := events.Decode(data)
	if err != nil {
		metric.InboundRejected.WithLabelValues("malformed").Inc()
		sess.Deliver(events.Error{Code: codeBadRequest, Message: err.Error()})
		return
	}
	h, ok := s.handlers[ev.Kind()]
	if !ok {
		metric.InboundRejected.WithLabelValues("unroutable").Inc()
		sess.Deliver(events.Error{Type: ev.Kind(), Code: codeBadRequest, Message: "unsupported event"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandlerTimeout)
	defer cancel()
	if err := h(ctx, sess, ev); err != nil {
		s.fail(sess, ev.Kind(), err)
	}
}

func (s *Server) fail(sess *Session, kind events.Kind, err error) {
	code := errorCode(err)
	if code == codeNotFound {
		// receipts for unknown messages are not the client's problem
		s.log.Debug("event target not found", zap.String("conn_id", sess.id), zap.String("type", string(kind)), zap.Error(err))
		return
	}
	msg := err.Error()
	if code == codeUnavailable {
		s.log.Error("event failed", zap.String("conn_id", sess.id), zap.String("type", string(kind)), zap.Error(err))
		msg = "temporarily unavailable, retry later"
	}
	sess.Deliver(events.Error{Type: kind, Code: code, Message: msg})
}
