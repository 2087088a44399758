package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanAdvance(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusRead, true},
		{StatusDelivered, StatusRead, true},
		{StatusDelivered, StatusSent, false},
		{StatusRead, StatusDelivered, false},
		{StatusRead, StatusRead, false},
		{StatusSent, Status("bogus"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanAdvance(tt.to))
		})
	}
}

func TestStatus_Predecessors(t *testing.T) {
	assert.Equal(t, []Status{StatusSent, StatusDelivered}, StatusRead.Predecessors())
	assert.Equal(t, []Status{StatusSent}, StatusDelivered.Predecessors())
	assert.Empty(t, StatusSent.Predecessors())
}

func TestMessage_AdvanceSentToReadImpliesDelivered(t *testing.T) {
	now := time.Now().UTC()
	m := &Message{Status: StatusSent}

	require.True(t, m.Advance(StatusRead, now))
	assert.Equal(t, StatusRead, m.Status)
	require.NotNil(t, m.DeliveredAt)
	require.NotNil(t, m.ReadAt)
	assert.Equal(t, now, *m.DeliveredAt)

	assert.False(t, m.Advance(StatusDelivered, now.Add(time.Second)), "regression must be refused")
	assert.Equal(t, StatusRead, m.Status)
}

func TestMessage_Counterpart(t *testing.T) {
	m := &Message{SenderID: "a", ReceiverID: "b"}
	assert.Equal(t, "b", m.Counterpart("a"))
	assert.Equal(t, "a", m.Counterpart("b"))
	assert.Equal(t, "", m.Counterpart("c"))
}

func TestPairKeyIsUnordered(t *testing.T) {
	assert.Equal(t, PairKey("a", "b"), PairKey("b", "a"))
	assert.NotEqual(t, PairKey("a", "b"), PairKey("a", "c"))
}

func TestLessBreaksTiesByID(t *testing.T) {
	ts := time.Now()
	a := &Message{ID: "1", CreatedAt: ts}
	b := &Message{ID: "2", CreatedAt: ts}
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hi", Preview(&Message{Body: "  hi "}))
	assert.Equal(t, "[attachment]", Preview(&Message{AttachmentRef: "https://cdn/x.png"}))

	long := strings.Repeat("é", 100)
	p := Preview(&Message{Body: long})
	assert.Equal(t, 81, len([]rune(p)))
	assert.True(t, strings.HasSuffix(p, "…"))
}
