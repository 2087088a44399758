package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/metric"
	"github.com/fathima-sithara/delivery-service/internal/repository"
)

// Publisher pushes an event to every live connection of a user.
type Publisher interface {
	Publish(userID string, ev events.Outbound) int
}

// Stream receives lifecycle records. Emit must not block on the network.
type Stream interface {
	Emit(ctx context.Context, rec events.Record)
}

// Ingestion paths, used as metric labels.
const (
	PathRequest = "request"
	PathPush    = "push"
)

type Options struct {
	ReconciliationWindow time.Duration
	HistoryPageSize      int
	HistoryMaxPageSize   int
}

func (o *Options) defaults() {
	if o.ReconciliationWindow <= 0 {
		o.ReconciliationWindow = 60 * time.Second
	}
	if o.HistoryPageSize <= 0 {
		o.HistoryPageSize = 50
	}
	if o.HistoryMaxPageSize < o.HistoryPageSize {
		o.HistoryMaxPageSize = max(200, o.HistoryPageSize)
	}
}

type CreateInput struct {
	SenderID            string
	ReceiverID          string
	Body                string
	AttachmentRef       string
	ClientCorrelationID string
}

// Result of a create. Deduplicated is set when the send was reconciled onto a
// message already stored by the other ingestion path.
type Result struct {
	Message      *domain.Message
	Deduplicated bool
}

// CommandService owns every message write and the fan-out that follows it.
type CommandService struct {
	store    repository.Store
	pub      Publisher
	stream   Stream
	contacts *ContactsService
	locks    pairLocks
	opts     Options
	log      *zap.Logger
	now      func() time.Time
}

// NewCommandService wires the controller. stream may be nil.
func NewCommandService(st repository.Store, pub Publisher, contacts *ContactsService, stream Stream, opts Options, log *zap.Logger) *CommandService {
	opts.defaults()
	return &CommandService{
		store:    st,
		pub:      pub,
		stream:   stream,
		contacts: contacts,
		opts:     opts,
		log:      log.Named("lifecycle"),
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// Create stores a message sent over the request path.
func (s *CommandService) Create(ctx context.Context, in CreateInput) (Result, error) {
	return s.ingest(ctx, in, PathRequest)
}

// Send stores a message sent over the push path.
func (s *CommandService) Send(ctx context.Context, in CreateInput) (Result, error) {
	return s.ingest(ctx, in, PathPush)
}

func (in *CreateInput) normalize() error {
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Body = strings.TrimSpace(in.Body)
	in.AttachmentRef = strings.TrimSpace(in.AttachmentRef)
	in.ClientCorrelationID = strings.TrimSpace(in.ClientCorrelationID)

	switch {
	case in.SenderID == "" || in.ReceiverID == "":
		return fmt.Errorf("%w: senderId and receiverId are required", domain.ErrValidation)
	case in.SenderID == in.ReceiverID:
		return fmt.Errorf("%w: cannot message yourself", domain.ErrValidation)
	case in.Body == "" && in.AttachmentRef == "":
		return fmt.Errorf("%w: body or attachmentRef is required", domain.ErrValidation)
	}
	return nil
}

func (s *CommandService) ingest(ctx context.Context, in CreateInput, path string) (Result, error) {
	if err := in.normalize(); err != nil {
		return Result{}, err
	}

	unlock := s.locks.lock(in.SenderID, in.ReceiverID)
	defer unlock()

	now := s.now()
	if in.ClientCorrelationID != "" {
		prev, err := s.store.FindByCorrelation(ctx, in.SenderID, in.ReceiverID, in.ClientCorrelationID, now.Add(-s.opts.ReconciliationWindow))
		switch {
		case err == nil:
			return s.reconcile(ctx, prev, in, path, now)
		case !errors.Is(err, domain.ErrNotFound):
			return Result{}, fmt.Errorf("lookup correlation: %w", err)
		}
	}

	m := &domain.Message{
		SenderID:            in.SenderID,
		ReceiverID:          in.ReceiverID,
		Body:                in.Body,
		AttachmentRef:       in.AttachmentRef,
		Status:              domain.StatusSent,
		ClientCorrelationID: in.ClientCorrelationID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return Result{}, fmt.Errorf("create message: %w", err)
	}
	metric.MessagesCreated.WithLabelValues(path).Inc()
	s.log.Debug("message created", zap.String("message_id", m.ID), zap.String("path", path),
		zap.String("sender_id", m.SenderID), zap.String("receiver_id", m.ReceiverID))

	// the sender's channel too, so the author's other connections see it
	ev := events.MessageReceived{Message: m}
	s.pub.Publish(m.ReceiverID, ev)
	s.pub.Publish(m.SenderID, ev)
	s.contacts.Invalidate(m.SenderID, m.ReceiverID)
	s.emit(ctx, events.RecordCreated, m, now)
	return Result{Message: m}, nil
}

// reconcile folds a second send of the same correlation triple into the
// stored message.
func (s *CommandService) reconcile(ctx context.Context, prev *domain.Message, in CreateInput, path string, now time.Time) (Result, error) {
	m, err := s.store.UpdateContent(ctx, prev.ID, in.Body, in.AttachmentRef, now)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile message: %w", err)
	}
	metric.MessagesDeduplicated.WithLabelValues(path).Inc()
	s.log.Debug("message reconciled", zap.String("message_id", m.ID), zap.String("path", path),
		zap.String("client_correlation_id", in.ClientCorrelationID))

	ev := events.MessageUpdated{Message: m}
	s.pub.Publish(m.ReceiverID, ev)
	s.pub.Publish(m.SenderID, ev)
	s.contacts.Invalidate(m.SenderID, m.ReceiverID)
	s.emit(ctx, events.RecordUpdated, m, now)
	return Result{Message: m, Deduplicated: true}, nil
}

// MarkDelivered moves a sent message to delivered. byUserID, when set, must
// be the receiver; otherwise the message is reported as not found.
func (s *CommandService) MarkDelivered(ctx context.Context, messageID, byUserID string) (*domain.Message, error) {
	return s.advance(ctx, messageID, byUserID, domain.StatusDelivered)
}

// MarkRead moves a sent or delivered message to read.
func (s *CommandService) MarkRead(ctx context.Context, messageID, byUserID string) (*domain.Message, error) {
	return s.advance(ctx, messageID, byUserID, domain.StatusRead)
}

func (s *CommandService) advance(ctx context.Context, messageID, byUserID string, to domain.Status) (*domain.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("%w: messageId is required", domain.ErrValidation)
	}
	cur, err := s.store.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Debug("receipt for unknown message", zap.String("message_id", messageID), zap.String("status", string(to)))
		}
		return nil, err
	}
	if byUserID != "" && byUserID != cur.ReceiverID {
		s.log.Debug("receipt from non-receiver", zap.String("message_id", messageID), zap.String("user_id", byUserID))
		return nil, domain.ErrNotFound
	}

	unlock := s.locks.lock(cur.SenderID, cur.ReceiverID)
	defer unlock()

	now := s.now()
	m, changed, err := s.store.AdvanceStatus(ctx, messageID, to, now)
	if err != nil {
		return nil, fmt.Errorf("advance status: %w", err)
	}
	if !changed {
		return m, nil
	}
	s.applied(ctx, m, now)
	s.contacts.Invalidate(m.SenderID, m.ReceiverID)
	return m, nil
}

// MarkConversationRead marks every unread message counterpartID sent to
// viewerID as read and returns the messages that changed.
func (s *CommandService) MarkConversationRead(ctx context.Context, viewerID, counterpartID string) ([]*domain.Message, error) {
	viewerID, counterpartID = strings.TrimSpace(viewerID), strings.TrimSpace(counterpartID)
	if viewerID == "" || counterpartID == "" || viewerID == counterpartID {
		return nil, fmt.Errorf("%w: a distinct viewer and counterpart are required", domain.ErrValidation)
	}

	unlock := s.locks.lock(viewerID, counterpartID)
	defer unlock()

	now := s.now()
	changed, err := s.store.AdvanceConversation(ctx, counterpartID, viewerID, domain.StatusRead, now)
	if err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	for _, m := range changed {
		s.applied(ctx, m, now)
	}
	if len(changed) > 0 {
		s.contacts.Invalidate(viewerID, counterpartID)
	}
	return changed, nil
}

// applied fans out one status change. Callers hold the pair lock so the
// sender observes changes in store-write order.
func (s *CommandService) applied(ctx context.Context, m *domain.Message, at time.Time) {
	metric.StatusTransitions.WithLabelValues(string(m.Status)).Inc()
	s.pub.Publish(m.SenderID, events.StatusChanged{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Status:     m.Status,
	})
	s.emit(ctx, events.RecordStatus, m, at)
}

// History returns one page of the conversation between viewerID and
// counterpartID in conversation order.
func (s *CommandService) History(ctx context.Context, viewerID, counterpartID string, r repository.Range) ([]*domain.Message, error) {
	if viewerID == "" || counterpartID == "" {
		return nil, fmt.Errorf("%w: viewer and counterpart are required", domain.ErrValidation)
	}
	if !r.Before.IsZero() && !r.After.IsZero() && !r.After.Before(r.Before) {
		return nil, fmt.Errorf("%w: after must be earlier than before", domain.ErrValidation)
	}
	switch {
	case r.Limit <= 0:
		r.Limit = s.opts.HistoryPageSize
	case r.Limit > s.opts.HistoryMaxPageSize:
		r.Limit = s.opts.HistoryMaxPageSize
	}
	return s.store.ListConversation(ctx, viewerID, counterpartID, r)
}

func (s *CommandService) emit(ctx context.Context, event string, m *domain.Message, at time.Time) {
	if s.stream == nil {
		return
	}
	s.stream.Emit(ctx, events.Record{Event: event, Message: m, At: at})
}
