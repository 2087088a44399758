package domain

import (
	"strings"
	"time"
)

// Status is the delivery state of a message. It only ever moves forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

func (s Status) Valid() bool { return s.rank() > 0 }

// Before reports whether s comes strictly before o in the sent -> delivered -> read order.
func (s Status) Before(o Status) bool { return s.rank() < o.rank() }

// CanAdvance reports whether a message in status s may move to next.
// sent -> read is allowed; delivered is implied.
func (s Status) CanAdvance(next Status) bool {
	return next.Valid() && s.Before(next)
}

// Predecessors returns the statuses that may transition to s.
func (s Status) Predecessors() []Status {
	var out []Status
	for _, p := range []Status{StatusSent, StatusDelivered} {
		if p.Before(s) {
			out = append(out, p)
		}
	}
	return out
}

type Message struct {
	ID                  string     `bson:"_id" json:"id"`
	SenderID            string     `bson:"sender_id" json:"senderId"`
	ReceiverID          string     `bson:"receiver_id" json:"receiverId"`
	Body                string     `bson:"body" json:"body"`
	AttachmentRef       string     `bson:"attachment_ref,omitempty" json:"attachmentRef,omitempty"`
	Status              Status     `bson:"status" json:"status"`
	ClientCorrelationID string     `bson:"client_correlation_id,omitempty" json:"clientCorrelationId,omitempty"`
	CreatedAt           time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `bson:"updated_at" json:"updatedAt"`
	DeliveredAt         *time.Time `bson:"delivered_at,omitempty" json:"deliveredAt,omitempty"`
	ReadAt              *time.Time `bson:"read_at,omitempty" json:"readAt,omitempty"`
}

// Counterpart returns the other participant from viewer's point of view,
// or "" if viewer is not part of the conversation.
func (m *Message) Counterpart(viewer string) string {
	switch viewer {
	case m.SenderID:
		return m.ReceiverID
	case m.ReceiverID:
		return m.SenderID
	}
	return ""
}

// Advance applies a forward transition in place. It returns false and leaves m
// untouched when the transition would not move the status forward.
func (m *Message) Advance(next Status, at time.Time) bool {
	if !m.Status.CanAdvance(next) {
		return false
	}
	m.Status = next
	m.UpdatedAt = at
	if m.DeliveredAt == nil {
		t := at
		m.DeliveredAt = &t
	}
	if next == StatusRead {
		t := at
		m.ReadAt = &t
	}
	return true
}

// Less orders messages of one conversation by creation time, ties broken by id.
func Less(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// PairKey identifies the unordered conversation pair {a, b}.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// ConversationSummary is one inbox row for a viewer. It is derived, never stored.
type ConversationSummary struct {
	CounterpartID      string    `json:"counterpartId"`
	LastMessageID      string    `json:"lastMessageId"`
	LastSenderID       string    `json:"lastSenderId"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastMessageStatus  Status    `json:"lastMessageStatus"`
	LastMessageAt      time.Time `json:"lastMessageAt"`
	UnreadCount        int       `json:"unreadCount"`
	// display fields of the counterpart, when a user directory is configured
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Profile is the public part of a user account.
type Profile struct {
	ID     string
	Name   string
	Avatar string
}

const (
	previewLimit      = 80
	attachmentPreview = "[attachment]"
)

// Preview renders the inbox preview text for m.
func Preview(m *Message) string {
	body := strings.TrimSpace(m.Body)
	if body == "" {
		if m.AttachmentRef != "" {
			return attachmentPreview
		}
		return ""
	}
	r := []rune(body)
	if len(r) > previewLimit {
		return string(r[:previewLimit]) + "…"
	}
	return body
}
