package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/delivery-service/internal/events"
)

func TestRelaySignal(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelayService(pub, zaptest.NewLogger(t))

	assert.Equal(t, 1, r.Signal("A", "B", events.KindTyping))
	assert.Equal(t, 1, r.Signal("A", "B", events.KindStopTyping))
	require.Len(t, pub.got, 2)

	sig := pub.got[0].ev.(events.Signal)
	assert.Equal(t, "A", sig.From)
	assert.Equal(t, "B", sig.To)
	assert.Equal(t, events.KindStopTyping, pub.got[1].ev.Kind())
}

func TestRelayDropsInvalidSignals(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRelayService(pub, zaptest.NewLogger(t))

	assert.Zero(t, r.Signal("", "B", events.KindTyping))
	assert.Zero(t, r.Signal("A", "A", events.KindTyping))
	assert.Zero(t, r.Signal("A", "B", events.KindSendMessage))
	assert.Empty(t, pub.got)
}
