package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/hub"
	"github.com/fathima-sithara/delivery-service/internal/presence"
	"github.com/fathima-sithara/delivery-service/internal/repository"
	"github.com/fathima-sithara/delivery-service/internal/service"
)

type env struct {
	srv   *Server
	reg   *presence.Registry
	store *repository.MemoryStore
	n     int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := hub.New(log)
	reg := presence.NewRegistry(h.PresenceChanged)
	st := repository.NewMemoryStore()
	contacts := service.NewContactsService(st, nil, h, log)
	cmd := service.NewCommandService(st, h, contacts, nil, service.Options{}, log)
	relay := service.NewRelayService(h, log)
	srv := NewServer(reg, h, cmd, relay, nil, Settings{RateLimitPerSec: 100}, log)
	return &env{srv: srv, reg: reg, store: st}
}

func (e *env) session(principal string) *Session {
	e.n++
	return newSession(fmt.Sprintf("conn-%d", e.n), principal, nil, 64, e.srv.cfg.RateLimitPerSec)
}

func frame(t *testing.T, kind events.Kind, payload any) []byte {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	b, err := json.Marshal(events.Envelope{Type: kind, Payload: p})
	require.NoError(t, err)
	return b
}

// drain returns everything buffered for sess without blocking.
func drain(sess *Session) []events.Outbound {
	var out []events.Outbound
	for {
		select {
		case ev := <-sess.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []events.Outbound) []events.Kind {
	out := make([]events.Kind, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Kind())
	}
	return out
}

func find[T events.Outbound](evs []events.Outbound) (T, bool) {
	for _, e := range evs {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestJoinSendAndReceipts(t *testing.T) {
	e := newEnv(t)
	a := e.session("")
	b := e.session("")
	e.srv.Handle(a, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(b, frame(t, events.KindJoin, events.Join{UserID: "B"}))
	require.True(t, e.reg.IsOnline("A"))
	require.True(t, e.reg.IsOnline("B"))
	drain(a)
	drain(b)

	e.srv.Handle(a, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "B", Body: "hi", ClientCorrelationID: "c1"}))

	ack, ok := find[events.Ack](drain(a))
	require.True(t, ok)
	assert.Equal(t, "c1", ack.ClientCorrelationID)
	assert.False(t, ack.Deduplicated)

	got := drain(b)
	recv, ok := find[events.MessageReceived](got)
	require.True(t, ok)
	assert.Equal(t, "hi", recv.Message.Body)
	assert.Contains(t, kinds(got), events.KindUpdateContacts)

	e.srv.Handle(b, frame(t, events.KindMessageDelivered, events.DeliveredAck{MessageID: ack.MessageID, SenderID: "A"}))
	st, ok := find[events.StatusChanged](drain(a))
	require.True(t, ok)
	assert.Equal(t, domain.StatusDelivered, st.Status)
	assert.Equal(t, events.KindMessageDelivered, st.Kind())

	e.srv.Handle(b, frame(t, events.KindMessageRead, events.ReadAck{SenderID: "A"}))
	st, ok = find[events.StatusChanged](drain(a))
	require.True(t, ok)
	assert.Equal(t, domain.StatusRead, st.Status)

	m, err := e.store.Get(context.Background(), ack.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRead, m.Status)
}

func TestSendReachesEverySenderConnection(t *testing.T) {
	e := newEnv(t)
	a1 := e.session("")
	a2 := e.session("")
	b := e.session("")
	e.srv.Handle(a1, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(a2, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(b, frame(t, events.KindJoin, events.Join{UserID: "B"}))
	drain(a1)
	drain(a2)
	drain(b)

	e.srv.Handle(a1, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "B", Body: "hi"}))

	for name, sess := range map[string]*Session{"a1": a1, "a2": a2, "b": b} {
		recv, ok := find[events.MessageReceived](drain(sess))
		require.True(t, ok, "%s did not receive the message", name)
		assert.Equal(t, "hi", recv.Message.Body)
	}
}

func TestReceiptFromSenderIsIgnoredSilently(t *testing.T) {
	e := newEnv(t)
	a := e.session("")
	e.srv.Handle(a, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(a, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "B", Body: "hi"}))
	ack, ok := find[events.Ack](drain(a))
	require.True(t, ok)

	e.srv.Handle(a, frame(t, events.KindMessageRead, events.ReadAck{MessageID: ack.MessageID}))
	assert.Empty(t, drain(a))

	m, err := e.store.Get(context.Background(), ack.MessageID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, m.Status)
}

func TestDuplicateSendIsAcknowledgedAsDeduplicated(t *testing.T) {
	e := newEnv(t)
	a := e.session("")
	e.srv.Handle(a, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	send := frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "B", Body: "hi", ClientCorrelationID: "c9"})

	e.srv.Handle(a, send)
	first, _ := find[events.Ack](drain(a))
	e.srv.Handle(a, send)
	got := drain(a)
	second, ok := find[events.Ack](got)
	require.True(t, ok)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.MessageID, second.MessageID)
	assert.Contains(t, kinds(got), events.KindMessageUpdated)
}

func TestTwoConnectionsOfflineOnce(t *testing.T) {
	e := newEnv(t)
	watcher := e.session("")
	e.srv.Handle(watcher, frame(t, events.KindJoin, events.Join{UserID: "W"}))

	c1 := e.session("")
	c2 := e.session("")
	e.srv.Handle(c1, frame(t, events.KindJoin, events.Join{UserID: "U"}))
	e.srv.Handle(c2, frame(t, events.KindJoin, events.Join{UserID: "U"}))

	online := 0
	for _, ev := range drain(watcher) {
		if p, ok := ev.(events.Presence); ok && p.UserID == "U" && p.Online {
			online++
		}
	}
	assert.Equal(t, 1, online)

	e.srv.disconnect(c1)
	assert.True(t, e.reg.IsOnline("U"))
	assert.NotContains(t, kinds(drain(watcher)), events.KindUserOffline)

	e.srv.disconnect(c2)
	assert.False(t, e.reg.IsOnline("U"))
	off, ok := find[events.Presence](drain(watcher))
	require.True(t, ok)
	assert.Equal(t, "U", off.UserID)
	assert.False(t, off.Online)

	assert.False(t, c2.Deliver(events.ContactsChanged{}), "closed sessions refuse events")
}

func TestLeave(t *testing.T) {
	e := newEnv(t)
	s := e.session("")
	e.srv.Handle(s, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(s, frame(t, events.KindLeave, events.Leave{UserID: "A"}))
	assert.False(t, e.reg.IsOnline("A"))
	assert.Equal(t, "", s.identity())

	e.srv.Handle(s, frame(t, events.KindLeave, events.Leave{UserID: "never-joined"}))
	_, isErr := find[events.Error](drain(s))
	assert.False(t, isErr)
}

func TestTypingRelay(t *testing.T) {
	e := newEnv(t)
	a := e.session("")
	b := e.session("")
	e.srv.Handle(a, frame(t, events.KindJoin, events.Join{UserID: "A"}))
	e.srv.Handle(b, frame(t, events.KindJoin, events.Join{UserID: "B"}))
	drain(b)

	e.srv.Handle(a, frame(t, events.KindTyping, events.Typing{From: "A", To: "B"}))
	e.srv.Handle(a, frame(t, events.KindStopTyping, events.StopTyping{From: "A", To: "B"}))
	assert.Equal(t, []events.Kind{events.KindTyping, events.KindStopTyping}, kinds(drain(b)))
}

func TestRejections(t *testing.T) {
	e := newEnv(t)
	s := e.session("")

	e.srv.Handle(s, []byte(`{"type":`))
	errEv, ok := find[events.Error](drain(s))
	require.True(t, ok)
	assert.Equal(t, codeBadRequest, errEv.Code)

	e.srv.Handle(s, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "A", Body: "me"}))
	errEv, ok = find[events.Error](drain(s))
	require.True(t, ok)
	assert.Equal(t, codeBadRequest, errEv.Code)
	assert.Equal(t, events.KindSendMessage, errEv.Type)

	e.srv.Handle(s, frame(t, events.KindMessageRead, events.ReadAck{SenderID: "A"}))
	errEv, ok = find[events.Error](drain(s))
	require.True(t, ok, "bulk read needs an identity")
	assert.Equal(t, codeBadRequest, errEv.Code)
}

func TestAuthenticatedSessionCannotImpersonate(t *testing.T) {
	e := newEnv(t)
	s := e.session("A")

	e.srv.Handle(s, frame(t, events.KindJoin, events.Join{UserID: "B"}))
	errEv, ok := find[events.Error](drain(s))
	require.True(t, ok)
	assert.Equal(t, codeForbidden, errEv.Code)
	assert.False(t, e.reg.IsOnline("B"))

	e.srv.Handle(s, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "B", ReceiverID: "C", Body: "x"}))
	errEv, ok = find[events.Error](drain(s))
	require.True(t, ok)
	assert.Equal(t, codeForbidden, errEv.Code)

	all, err := e.store.ListByParticipant(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, all)

	e.srv.Handle(s, frame(t, events.KindSendMessage, events.SendMessage{SenderID: "A", ReceiverID: "C", Body: "x"}))
	_, ok = find[events.Ack](drain(s))
	assert.True(t, ok)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t)
	s := newSession("limited", "", nil, 64, 2)

	for i := 0; i < 3; i++ {
		e.srv.Handle(s, frame(t, events.KindTyping, events.Typing{From: "A", To: "B"}))
	}
	errEv, ok := find[events.Error](drain(s))
	require.True(t, ok)
	assert.Equal(t, codeRateLimited, errEv.Code)
}
