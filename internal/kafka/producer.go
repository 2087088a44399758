package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/delivery-service/internal/events"
)

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes message lifecycle records. Records are keyed by
// conversation pair so one pair's records land on one partition in order.
type Producer struct {
	writer writer
	log    *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	log = log.Named("kafka")
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err != nil {
				log.Warn("lifecycle records not written", zap.Int("count", len(msgs)), zap.Error(err))
			}
		},
	}
	return &Producer{writer: w, log: log}
}

func encode(rec events.Record) (kafkago.Message, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(rec.Key()),
		Value: b,
		Time:  rec.At,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(rec.Event)},
		},
	}, nil
}

// Emit queues rec for delivery. Failures are logged, never returned.
func (p *Producer) Emit(ctx context.Context, rec events.Record) {
	msg, err := encode(rec)
	if err != nil {
		p.log.Error("encode lifecycle record", zap.String("event", rec.Event), zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("publish lifecycle record", zap.String("event", rec.Event), zap.Error(err))
	}
}

func (p *Producer) Close() error { return p.writer.Close() }
