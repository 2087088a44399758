package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []Transition
}

func (r *recorder) listen(t Transition) {
	r.mu.Lock()
	r.got = append(r.got, t)
	r.mu.Unlock()
}

func (r *recorder) transitions() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Transition(nil), r.got...)
}

func TestTwoConnectionsGoOfflineOnce(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec.listen)

	assert.True(t, reg.Join("u1", "c1"))
	assert.False(t, reg.Join("u1", "c2"))
	assert.Equal(t, 2, reg.Connections("u1"))

	assert.False(t, reg.Leave("u1", "c1"))
	assert.True(t, reg.IsOnline("u1"))

	assert.True(t, reg.Leave("u1", "c2"))
	assert.False(t, reg.IsOnline("u1"))

	got := rec.transitions()
	require.Len(t, got, 2)
	assert.True(t, got[0].Online)
	assert.False(t, got[1].Online)
	assert.Equal(t, "u1", got[1].UserID)
}

func TestJoinIsIdempotent(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec.listen)

	reg.Join("u1", "c1")
	reg.Join("u1", "c1")
	assert.Equal(t, 1, reg.Connections("u1"))
	assert.Len(t, rec.transitions(), 1)

	assert.False(t, reg.Leave("u1", "unknown"))
	assert.False(t, reg.Leave("nobody", "c1"))
	assert.True(t, reg.IsOnline("u1"))
}

func TestJoinIgnoresEmptyIDs(t *testing.T) {
	reg := NewRegistry(nil)
	assert.False(t, reg.Join("", "c1"))
	assert.False(t, reg.Join("u1", ""))
	assert.Empty(t, reg.Online())
}

func TestDisconnectAll(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec.listen)

	reg.Join("u1", "c1")
	reg.Join("u2", "c1")
	reg.Join("u2", "c2")

	offline := reg.DisconnectAll("c1")
	assert.Equal(t, []string{"u1"}, offline)
	assert.False(t, reg.IsOnline("u1"))
	assert.True(t, reg.IsOnline("u2"))
	assert.Equal(t, []string{"u2"}, reg.Online())

	assert.Nil(t, reg.DisconnectAll("c1"))
}

func TestConcurrentJoinLeaveEmitsBalancedTransitions(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(rec.listen)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			reg.Join("u1", conn)
			reg.DisconnectAll(conn)
		}(i)
	}
	wg.Wait()

	assert.False(t, reg.IsOnline("u1"))
	got := rec.transitions()
	require.NotEmpty(t, got)
	for i, tr := range got {
		assert.Equal(t, i%2 == 0, tr.Online, "transition %d out of order", i)
	}
	assert.False(t, got[len(got)-1].Online)
}
