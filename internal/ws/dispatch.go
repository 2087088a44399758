package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/service"
)

const (
	codeBadRequest   = "bad_request"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeUnavailable  = "unavailable"
	codeRateLimited  = "rate_limited"
	codeUnauthorized = "unauthorized"
	codeInternal     = "internal"
)

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return codeBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return codeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return codeNotFound
	case errors.Is(err, domain.ErrStoreUnavailable):
		return codeUnavailable
	}
	return codeInternal
}

type handler func(ctx context.Context, sess *Session, ev events.Inbound) error

func (s *Server) routes() map[events.Kind]handler {
	return map[events.Kind]handler{
		events.KindJoin:             s.onJoin,
		events.KindLeave:            s.onLeave,
		events.KindSendMessage:      s.onSend,
		events.KindMessageDelivered: s.onDelivered,
		events.KindMessageRead:      s.onRead,
		events.KindTyping:           s.onSignal,
		events.KindStopTyping:       s.onSignal,
	}
}

// actAs rejects acting for a user other than the authenticated principal.
func actAs(sess *Session, userID string) error {
	if sess.principal != "" && userID != sess.principal {
		return fmt.Errorf("%w: connection is authenticated as another user", domain.ErrForbidden)
	}
	return nil
}

func (s *Server) onJoin(_ context.Context, sess *Session, ev events.Inbound) error {
	e := ev.(*events.Join)
	if err := actAs(sess, e.UserID); err != nil {
		return err
	}
	s.attach(sess, e.UserID)
	return nil
}

func (s *Server) onLeave(_ context.Context, sess *Session, ev events.Inbound) error {
	e := ev.(*events.Leave)
	s.detach(sess, e.UserID)
	return nil
}

func (s *Server) onSend(ctx context.Context, sess *Session, ev events.Inbound) error {
	e := ev.(*events.SendMessage)
	if err := actAs(sess, e.SenderID); err != nil {
		return err
	}
	res, err := s.cmd.Send(ctx, service.CreateInput{
		SenderID:            e.SenderID,
		ReceiverID:          e.ReceiverID,
		Body:                e.Body,
		AttachmentRef:       e.AttachmentRef,
		ClientCorrelationID: e.ClientCorrelationID,
	})
	if err != nil {
		return err
	}
	sess.Deliver(events.Ack{
		ClientCorrelationID: e.ClientCorrelationID,
		MessageID:           res.Message.ID,
		Deduplicated:        res.Deduplicated,
	})
	return nil
}

func (s *Server) onDelivered(ctx context.Context, sess *Session, ev events.Inbound) error {
	e := ev.(*events.DeliveredAck)
	_, err := s.cmd.MarkDelivered(ctx, e.MessageID, sess.identity())
	return err
}

func (s *Server) onRead(ctx context.Context, sess *Session, ev events.Inbound) error {
	e := ev.(*events.ReadAck)
	if !e.Bulk() {
		_, err := s.cmd.MarkRead(ctx, e.MessageID, sess.identity())
		return err
	}
	viewer := sess.identity()
	if viewer == "" {
		return fmt.Errorf("%w: join before marking a conversation read", domain.ErrValidation)
	}
	_, err := s.cmd.MarkConversationRead(ctx, viewer, e.SenderID)
	return err
}

func (s *Server) onSignal(_ context.Context, sess *Session, ev events.Inbound) error {
	var from, to string
	switch e := ev.(type) {
	case *events.Typing:
		from, to = e.From, e.To
	case *events.StopTyping:
		from, to = e.From, e.To
	}
	if err := actAs(sess, from); err != nil {
		return err
	}
	s.relay.Signal(from, to, ev.Kind())
	return nil
}
