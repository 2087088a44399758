package events

// Inbound is a decoded client -> server event.
type Inbound interface {
	Kind() Kind
	validate() error
}

type Join struct {
	UserID string `json:"userId"`
}

type Leave struct {
	UserID string `json:"userId"`
}

type SendMessage struct {
	SenderID            string `json:"senderId"`
	ReceiverID          string `json:"receiverId"`
	Body                string `json:"body,omitempty"`
	AttachmentRef       string `json:"attachmentRef,omitempty"`
	ClientCorrelationID string `json:"clientCorrelationId,omitempty"`
}

// DeliveredAck is the receiver confirming a message reached a device.
type DeliveredAck struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
}

// ReadAck marks one message read, or every unread message from SenderID when
// MessageID is empty.
type ReadAck struct {
	MessageID string `json:"messageId,omitempty"`
	SenderID  string `json:"senderId"`
}

func (r *ReadAck) Bulk() bool { return r.MessageID == "" }

type Typing struct {
	To   string `json:"to"`
	From string `json:"from"`
}

type StopTyping struct {
	To   string `json:"to"`
	From string `json:"from"`
}

func (*Join) Kind() Kind         { return KindJoin }
func (*Leave) Kind() Kind        { return KindLeave }
func (*SendMessage) Kind() Kind  { return KindSendMessage }
func (*DeliveredAck) Kind() Kind { return KindMessageDelivered }
func (*ReadAck) Kind() Kind      { return KindMessageRead }
func (*Typing) Kind() Kind       { return KindTyping }
func (*StopTyping) Kind() Kind   { return KindStopTyping }

func (e *Join) validate() error  { return required("userId", e.UserID) }
func (e *Leave) validate() error { return required("userId", e.UserID) }

// Body/attachment presence is a lifecycle rule and is checked by the controller.
func (e *SendMessage) validate() error {
	return required("senderId", e.SenderID, "receiverId", e.ReceiverID)
}

func (e *DeliveredAck) validate() error { return required("messageId", e.MessageID) }

func (e *ReadAck) validate() error {
	if e.MessageID == "" {
		return required("senderId", e.SenderID)
	}
	return nil
}

func (e *Typing) validate() error     { return required("to", e.To, "from", e.From) }
func (e *StopTyping) validate() error { return required("to", e.To, "from", e.From) }
