package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { rdb.Close() })

	return mr, NewFromRedis(rdb)
}

func TestIdempotencyClaimAndReplay(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	orderID, claimed, err := client.ClaimIdempotencyKey(ctx, "abc", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Zero(t, orderID)

	// second claim while the first is running
	_, _, err = client.ClaimIdempotencyKey(ctx, "abc", time.Hour)
	assert.ErrorIs(t, err, ErrKeyInFlight)

	require.NoError(t, client.CompleteIdempotencyKey(ctx, "abc", 1101, time.Hour))

	orderID, claimed, err = client.ClaimIdempotencyKey(ctx, "abc", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, int64(1101), orderID)

	assert.True(t, mr.Exists("idempotency:returns:abc"))
	assert.Equal(t, time.Hour, mr.TTL("idempotency:returns:abc"))
}

func TestIdempotencyRelease(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	_, claimed, err := client.ClaimIdempotencyKey(ctx, "retry-me", time.Hour)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, client.ReleaseIdempotencyKey(ctx, "retry-me"))

	_, claimed, err = client.ClaimIdempotencyKey(ctx, "retry-me", time.Hour)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestIdempotencyExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewIdempotencyStore(client, time.Minute, 10*time.Second)
	ctx := context.Background()

	_, claimed, err := store.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, claimed)
	assert.Equal(t, 10*time.Second, mr.TTL("idempotency:returns:k"))

	require.NoError(t, store.Complete(ctx, "k", 1200))
	assert.Equal(t, time.Minute, mr.TTL("idempotency:returns:k"))

	mr.FastForward(2 * time.Minute)

	_, claimed, err = store.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestLockOwnership(t *testing.T) {
	mr, client := setupTestRedis(t)
	ctx := context.Background()

	token, ok, err := client.AcquireLock(ctx, "seed", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = client.AcquireLock(ctx, "seed", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token must not release someone else's lock
	require.NoError(t, client.ReleaseLock(ctx, "seed", "not-the-owner"))
	assert.True(t, mr.Exists("lock:seed"))

	require.NoError(t, client.ReleaseLock(ctx, "seed", token))
	assert.False(t, mr.Exists("lock:seed"))
}

func TestIdempotencyUnfinishedClaimExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewIdempotencyStore(client, 24*time.Hour, time.Minute)
	ctx := context.Background()

	_, claimed, err := store.Claim(ctx, "crashed")
	require.NoError(t, err)
	require.True(t, claimed)

	_, _, err = store.Claim(ctx, "crashed")
	assert.ErrorIs(t, err, ErrKeyInFlight)

	// the submission never completed; its claim lapses after the pending TTL
	mr.FastForward(time.Minute + time.Second)

	_, claimed, err = store.Claim(ctx, "crashed")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestNewIdempotencyStorePendingTTLBounds(t *testing.T) {
	_, client := setupTestRedis(t)

	store := NewIdempotencyStore(client, time.Hour, 0)
	assert.Equal(t, time.Hour, store.pendingTTL)

	store = NewIdempotencyStore(client, time.Minute, time.Hour)
	assert.Equal(t, time.Minute, store.pendingTTL)
}
