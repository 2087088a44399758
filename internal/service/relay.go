package service

import (
	"strings"

	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/events"
)

// RelayService forwards typing indicators. Nothing is stored or acknowledged.
type RelayService struct {
	pub Publisher
	log *zap.Logger
}

func NewRelayService(pub Publisher, log *zap.Logger) *RelayService {
	return &RelayService{pub: pub, log: log.Named("relay")}
}

// Signal publishes a typing or stopTyping event to `to` and returns the number
// of connections reached.
func (r *RelayService) Signal(from, to string, kind events.Kind) int {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" || from == to {
		return 0
	}
	var stop bool
	switch kind {
	case events.KindTyping:
	case events.KindStopTyping:
		stop = true
	default:
		r.log.Debug("ignoring signal", zap.String("type", string(kind)))
		return 0
	}
	return r.pub.Publish(to, events.Signal{From: from, To: to, Stop: stop})
}
