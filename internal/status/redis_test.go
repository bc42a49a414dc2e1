package status

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := newRedisStoreWithClient(client, zerolog.Nop())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	_, ok := store.GetState(ctx, "ex1")
	require.False(t, ok)

	store.PutState(ctx, "ex1", "Running")
	state, ok := store.GetState(ctx, "ex1")
	require.True(t, ok)
	require.Equal(t, "Running", state)

	// Every mirror key carries the exercise TTL.
	require.Greater(t, mr.TTL("exercise:ex1:state"), time.Duration(0))
	require.True(t, mr.Exists("exercise:ex1:state_timestamp"))
}

func TestRedisTimerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	snap := store.GetTimer(ctx, "ex1")
	require.Equal(t, 0, snap.Elapsed)
	require.Equal(t, "T+00:00", snap.Formatted)

	store.PutTimer(ctx, "ex1", 754)
	snap = store.GetTimer(ctx, "ex1")
	require.Equal(t, 754, snap.Elapsed)
	require.Equal(t, "T+12:34", snap.Formatted)
	require.Greater(t, snap.Timestamp, float64(0))
}

func TestRedisMarkDeliveredIsIdempotentOnTheSet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	store.MarkDelivered(ctx, "ex1", "alpha", "inj-1")
	store.MarkDelivered(ctx, "ex1", "alpha", "inj-1")
	store.MarkDelivered(ctx, "ex1", "alpha", "inj-2")

	// The set deduplicates; the raw counter does not.
	require.Equal(t, 2, store.CountDelivered(ctx, "ex1", "alpha"))
	count, err := mr.Get("exercise:ex1:team:alpha:count")
	require.NoError(t, err)
	require.Equal(t, "3", count)

	require.True(t, mr.Exists("exercise:ex1:inject:inj-1:delivered_at"))
	require.Equal(t, 0, store.CountDelivered(ctx, "ex1", "bravo"))
}

func TestRedisPurgeRemovesOnlyTheScenario(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	store.PutState(ctx, "ex1", "Running")
	store.PutTimer(ctx, "ex1", 10)
	store.MarkDelivered(ctx, "ex1", "alpha", "inj-1")
	store.SetTeamConnected(ctx, "ex1", "alpha", true)
	store.PutState(ctx, "ex2", "Paused")

	store.Purge(ctx, "ex1")

	require.False(t, mr.Exists("exercise:ex1:state"))
	require.False(t, mr.Exists("exercise:ex1:timer"))
	require.False(t, mr.Exists("exercise:ex1:team:alpha:delivered"))
	require.False(t, mr.Exists("exercise:ex1:team:alpha:connected"))

	state, ok := store.GetState(ctx, "ex2")
	require.True(t, ok)
	require.Equal(t, "Paused", state)
}

func TestRedisStatusAggregation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	// Absent scenario reports the initial state.
	doc := store.Status(ctx, "ex1", []string{"alpha", "bravo"})
	require.Equal(t, "NotStarted", doc.State)
	require.Len(t, doc.Teams, 2)

	store.PutState(ctx, "ex1", "Running")
	store.PutTimer(ctx, "ex1", 61)
	store.MarkDelivered(ctx, "ex1", "alpha", "inj-1")

	doc = store.Status(ctx, "ex1", []string{"alpha", "bravo"})
	require.Equal(t, "Running", doc.State)
	require.Equal(t, 61, doc.Timer.Elapsed)
	require.Equal(t, "T+01:01", doc.Timer.Formatted)
	require.Equal(t, "alpha", doc.Teams[0].ID)
	require.Equal(t, 1, doc.Teams[0].Delivered)
	require.Equal(t, 0, doc.Teams[1].Delivered)
}

func TestRedisHealthCheck(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, store.HealthCheck(context.Background()))

	mr.Close()
	require.Error(t, store.HealthCheck(context.Background()))
}

func TestFormatElapsed(t *testing.T) {
	require.Equal(t, "T+00:00", FormatElapsed(0))
	require.Equal(t, "T+00:59", FormatElapsed(59))
	require.Equal(t, "T+01:00", FormatElapsed(60))
	require.Equal(t, "T+12:34", FormatElapsed(754))
	require.Equal(t, "T+100:00", FormatElapsed(6000))
}
