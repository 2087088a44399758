package events

import (
	"time"

	"github.com/fathima-sithara/delivery-service/internal/domain"
)

// Record types on the lifecycle stream.
const (
	RecordCreated = "message.created"
	RecordUpdated = "message.updated"
	RecordStatus  = "message.status"
)

// Record is one entry of the message lifecycle stream consumed by
// notification and analytics services.
type Record struct {
	Event   string          `json:"event"`
	Message *domain.Message `json:"message"`
	At      time.Time       `json:"at"`
}

// Key partitions records by conversation so a pair's records stay ordered.
func (r Record) Key() string {
	if r.Message == nil {
		return ""
	}
	return domain.PairKey(r.Message.SenderID, r.Message.ReceiverID)
}
