package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind is the wire tag of a push-path event.
type Kind string

const (
	KindJoin             Kind = "join"
	KindLeave            Kind = "leave"
	KindSendMessage      Kind = "sendMessage"
	KindReceiveMessage   Kind = "receiveMessage"
	KindMessageUpdated   Kind = "messageUpdated"
	KindMessageDelivered Kind = "messageDelivered"
	KindMessageRead      Kind = "messageRead"
	KindTyping           Kind = "typing"
	KindStopTyping       Kind = "stopTyping"
	KindUserOnline       Kind = "userOnline"
	KindUserOffline      Kind = "userOffline"
	KindUpdateContacts   Kind = "updateRecentContacts"
	KindMessageAck       Kind = "messageAck"
	KindError            Kind = "error"
)

// Envelope is the wire format for every websocket frame.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownKind = errors.New("unknown event type")
)

// Decode parses one client frame into its typed variant. It is the only place
// client payloads are inspected; everything downstream works on the structs.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var ev Inbound
	switch env.Type {
	case KindJoin:
		ev = &Join{}
	case KindLeave:
		ev = &Leave{}
	case KindSendMessage:
		ev = &SendMessage{}
	case KindMessageDelivered:
		ev = &DeliveredAck{}
	case KindMessageRead:
		ev = &ReadAck{}
	case KindTyping:
		ev = &Typing{}
	case KindStopTyping:
		ev = &StopTyping{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
	}
	if err := ev.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}
	return ev, nil
}

// Encode renders a server event as a wire frame.
func Encode(ev Outbound) ([]byte, error) {
	env := Envelope{Type: ev.Kind()}
	if p := ev.payload(); p != nil {
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		env.Payload = b
	}
	return json.Marshal(env)
}

func required(fields ...string) error {
	var missing []string
	for i := 0; i+1 < len(fields); i += 2 {
		if strings.TrimSpace(fields[i+1]) == "" {
			missing = append(missing, fields[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
