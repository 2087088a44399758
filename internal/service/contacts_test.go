package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/delivery-service/internal/domain"
	"github.com/fathima-sithara/delivery-service/internal/events"
	"github.com/fathima-sithara/delivery-service/internal/repository"
)

func put(t *testing.T, s repository.Store, id, from, to string, at time.Time, st domain.Status) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), &domain.Message{
		ID: id, SenderID: from, ReceiverID: to, Body: "body " + id, Status: st, CreatedAt: at, UpdatedAt: at,
	}))
}

func TestSummarizeOrderingAndUnread(t *testing.T) {
	st := repository.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	put(t, st, "1", "B", "V", base, domain.StatusSent)
	put(t, st, "2", "V", "B", base.Add(time.Second), domain.StatusSent)
	put(t, st, "3", "C", "V", base.Add(2*time.Second), domain.StatusDelivered)
	put(t, st, "4", "C", "V", base.Add(2*time.Second), domain.StatusRead)
	put(t, st, "5", "D", "V", base.Add(2*time.Second), domain.StatusSent)
	put(t, st, "6", "X", "Y", base.Add(time.Hour), domain.StatusSent)

	c := NewContactsService(st, nil, &recordingPublisher{}, zaptest.NewLogger(t))
	rows, err := c.Summarize(context.Background(), "V")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "C", rows[0].CounterpartID)
	assert.Equal(t, "4", rows[0].LastMessageID, "ties on createdAt break by id")
	assert.Equal(t, 1, rows[0].UnreadCount)
	assert.Equal(t, "D", rows[1].CounterpartID, "equal timestamps order by counterpart id")
	assert.Equal(t, "B", rows[2].CounterpartID)
	assert.Equal(t, "2", rows[2].LastMessageID)
	assert.Equal(t, "V", rows[2].LastSenderID)
	assert.Equal(t, 1, rows[2].UnreadCount)
}

func TestSummarizeEmpty(t *testing.T) {
	c := NewContactsService(repository.NewMemoryStore(), nil, &recordingPublisher{}, zaptest.NewLogger(t))
	rows, err := c.Summarize(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.Summarize(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSummarizeDropsUnknownUsers(t *testing.T) {
	st := repository.NewMemoryStore()
	base := time.Now()
	put(t, st, "1", "B", "V", base, domain.StatusSent)
	put(t, st, "2", "deleted", "V", base, domain.StatusSent)

	c := NewContactsService(st, repository.NewMemoryDirectory("V", "B"), &recordingPublisher{}, zaptest.NewLogger(t))
	rows, err := c.Summarize(context.Background(), "V")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].CounterpartID)
}

func TestSummarizeCarriesProfile(t *testing.T) {
	st := repository.NewMemoryStore()
	put(t, st, "1", "B", "V", time.Now(), domain.StatusSent)
	dir := repository.NewMemoryDirectory("V")
	dir.Put(domain.Profile{ID: "B", Name: "Bea", Avatar: "https://cdn/bea.png"})

	c := NewContactsService(st, dir, &recordingPublisher{}, zaptest.NewLogger(t))
	rows, err := c.Summarize(context.Background(), "V")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bea", rows[0].Name)
	assert.Equal(t, "https://cdn/bea.png", rows[0].Avatar)
	assert.Equal(t, 1, rows[0].UnreadCount)
}

type brokenDirectory struct{}

func (brokenDirectory) Profiles(context.Context, []string) (map[string]domain.Profile, error) {
	return nil, errors.New("timeout")
}

func TestSummarizeKeepsEveryoneWhenDirectoryFails(t *testing.T) {
	st := repository.NewMemoryStore()
	put(t, st, "1", "B", "V", time.Now(), domain.StatusSent)
	put(t, st, "2", "C", "V", time.Now(), domain.StatusSent)

	c := NewContactsService(st, brokenDirectory{}, &recordingPublisher{}, zaptest.NewLogger(t))
	rows, err := c.Summarize(context.Background(), "V")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInvalidateSkipsEmptyIDs(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewContactsService(repository.NewMemoryStore(), nil, pub, zaptest.NewLogger(t))
	c.Invalidate("A", "", "B")
	assert.Equal(t, []events.Kind{events.KindUpdateContacts}, pub.kinds("A"))
	assert.Equal(t, []events.Kind{events.KindUpdateContacts}, pub.kinds("B"))
	assert.Len(t, pub.got, 2)
}
