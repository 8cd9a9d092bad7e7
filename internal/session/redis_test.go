package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/deskbot/internal/models"
	"github.com/opsdesk/deskbot/internal/session"
)

func newTestRedisStore(t *testing.T) (*session.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := session.NewRedisStoreFromClient(client)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := &models.Session{
		ThreadID:     "C42:1700000000.000100",
		ActiveIntent: models.IntentTicketCreate,
		Slots:        map[string]string{"summary": "broken monitor"},
		PendingSlot:  "category",
		TurnCount:    2,
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Put(ctx, sess.ThreadID, sess, time.Minute))

	got, found, err := store.Get(ctx, sess.ThreadID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.IntentTicketCreate, got.ActiveIntent)
	assert.Equal(t, "category", got.PendingSlot)
	assert.Equal(t, "broken monitor", got.Slots["summary"])
	assert.Equal(t, 2, got.TurnCount)
}

func TestRedisStoreMissingIsAbsentNotError(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, found, err := store.Get(context.Background(), "no-such-thread")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	sess := &models.Session{
		ThreadID:     "T1",
		ActiveIntent: models.IntentKBSearch,
		Slots:        map[string]string{},
		PendingSlot:  "query",
		TurnCount:    1,
	}
	require.NoError(t, store.Put(ctx, "T1", sess, time.Minute))

	_, found, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	require.True(t, found)

	mr.FastForward(2 * time.Minute)

	_, found, err = store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, found, "session must be absent after the TTL elapses")
}

func TestRedisStoreTTLResetOnEveryPut(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	sess := &models.Session{
		ThreadID:     "T1",
		ActiveIntent: models.IntentTicketCreate,
		Slots:        map[string]string{},
		PendingSlot:  "summary",
		TurnCount:    1,
	}
	require.NoError(t, store.Put(ctx, "T1", sess, time.Minute))

	mr.FastForward(45 * time.Second)

	sess.TurnCount = 2
	require.NoError(t, store.Put(ctx, "T1", sess, time.Minute))

	// 45s + 45s is past the original deadline but inside the refreshed one.
	mr.FastForward(45 * time.Second)

	got, found, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, got.TurnCount)
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	sess := &models.Session{
		ThreadID:     "T1",
		ActiveIntent: models.IntentPasswordReset,
		Slots:        map[string]string{},
		PendingSlot:  "username",
		TurnCount:    1,
	}
	require.NoError(t, store.Put(ctx, "T1", sess, time.Minute))
	require.NoError(t, store.Delete(ctx, "T1"))

	_, found, err := store.Get(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Delete(ctx, "T1"))
}
