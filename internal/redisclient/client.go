package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrKeyInFlight is returned when an idempotency key is claimed by a
// submission that has not finished yet.
var ErrKeyInFlight = errors.New("idempotency key is already being processed")

const pendingValue = "pending"

// releaseLockScript deletes the lock only if the caller still owns it
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromRedis(rdb), nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:returns:%s", key)
}

// ClaimIdempotencyKey marks key as in progress. If the key already completed,
// the stored order id is returned with claimed=false. A key claimed by a
// submission still running yields ErrKeyInFlight.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (orderID int64, claimed bool, err error) {
	redisKey := idempotencyKey(key)

	ok, err := c.rdb.SetNX(ctx, redisKey, pendingValue, ttl).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	if ok {
		return 0, true, nil
	}

	val, err := c.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = c.rdb.SetNX(ctx, redisKey, pendingValue, ttl).Result()
		if err != nil {
			return 0, false, fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		if ok {
			return 0, true, nil
		}
		return 0, false, ErrKeyInFlight
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	if val == pendingValue {
		return 0, false, ErrKeyInFlight
	}

	orderID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", val, err)
	}
	return orderID, false, nil
}

// CompleteIdempotencyKey stores the order id created for key, replacing the
// pending claim and its TTL
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), orderID, ttl).Err()
}

// ReleaseIdempotencyKey drops a claim whose submission failed so the
// client can retry with the same key
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// AcquireLock acquires a distributed lock. The returned token is needed to
// release it.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock held with token
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// IdempotencyStore binds the idempotency operations to fixed TTLs. A claim
// only lives for pendingTTL, so a submission that dies before Complete
// frees its key quickly; a completed key lives for ttl.
type IdempotencyStore struct {
	client     *Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore. Completed entries expire
// after ttl, unfinished claims after pendingTTL.
func NewIdempotencyStore(client *Client, ttl, pendingTTL time.Duration) *IdempotencyStore {
	if pendingTTL <= 0 || pendingTTL > ttl {
		pendingTTL = ttl
	}
	return &IdempotencyStore{client: client, ttl: ttl, pendingTTL: pendingTTL}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (int64, bool, error) {
	return s.client.ClaimIdempotencyKey(ctx, key, s.pendingTTL)
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, orderID int64) error {
	return s.client.CompleteIdempotencyKey(ctx, key, orderID, s.ttl)
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.ReleaseIdempotencyKey(ctx, key)
}
