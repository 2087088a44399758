package events

import (
	"github.com/fathima-sithara/delivery-service/internal/domain"
)

// Outbound is a server -> client event.
type Outbound interface {
	Kind() Kind
	payload() any
}

type MessageReceived struct{ Message *domain.Message }

type MessageUpdated struct{ Message *domain.Message }

// StatusChanged is pushed to the sender when a receipt moves a message forward.
type StatusChanged struct {
	MessageID  string        `json:"messageId"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Status     domain.Status `json:"status"`
}

type Signal struct {
	Stop bool   `json:"-"`
	From string `json:"from"`
	To   string `json:"to"`
}

type Presence struct {
	UserID string `json:"userId"`
	Online bool   `json:"-"`
}

type ContactsChanged struct{}

// Ack answers a sendMessage on the connection that issued it.
type Ack struct {
	ClientCorrelationID string `json:"clientCorrelationId,omitempty"`
	MessageID           string `json:"messageId"`
	Deduplicated        bool   `json:"deduplicated"`
}

// Error reports a rejected inbound event to the connection that sent it.
type Error struct {
	Type    Kind   `json:"type,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (MessageReceived) Kind() Kind { return KindReceiveMessage }
func (MessageUpdated) Kind() Kind  { return KindMessageUpdated }
func (ContactsChanged) Kind() Kind { return KindUpdateContacts }
func (Ack) Kind() Kind             { return KindMessageAck }
func (Error) Kind() Kind           { return KindError }

func (e StatusChanged) Kind() Kind {
	if e.Status == domain.StatusRead {
		return KindMessageRead
	}
	return KindMessageDelivered
}

func (e Signal) Kind() Kind {
	if e.Stop {
		return KindStopTyping
	}
	return KindTyping
}

func (e Presence) Kind() Kind {
	if e.Online {
		return KindUserOnline
	}
	return KindUserOffline
}

func (e MessageReceived) payload() any { return e.Message }
func (e MessageUpdated) payload() any  { return e.Message }
func (e StatusChanged) payload() any   { return e }
func (e Signal) payload() any          { return e }
func (e Presence) payload() any        { return e }
func (ContactsChanged) payload() any   { return nil }
func (e Ack) payload() any             { return e }
func (e Error) payload() any           { return e }
