package repository

import (
	"context"
	"time"

	"github.com/krobus00/matching-engine/internal/constant"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLeaseTTL       = 15 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

var releaseLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var refreshLeaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// RedisLockRepository hands out instrument leases and remembers processed request ids.
type RedisLockRepository struct {
	client *redis.Client
}

func NewRedisLockRepository(client *redis.Client) *RedisLockRepository {
	return &RedisLockRepository{client: client}
}

func (r *RedisLockRepository) AcquireLease(ctx context.Context, isin string, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	return r.client.SetNX(ctx, leaseKey(isin), owner, ttl).Result()
}

// RefreshLease extends a lease still held by owner. It reports false when the lease was lost.
func (r *RedisLockRepository) RefreshLease(ctx context.Context, isin string, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}

	res, err := refreshLeaseScript.Run(ctx, r.client, []string{leaseKey(isin)}, owner, ttl.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return false, err
	}

	return res == 1, nil
}

func (r *RedisLockRepository) ReleaseLease(ctx context.Context, isin string, owner string) error {
	_, err := releaseLeaseScript.Run(ctx, r.client, []string{leaseKey(isin)}, owner).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	return nil
}

// MarkRequest records requestID and reports whether it was seen for the first time.
func (r *RedisLockRepository) MarkRequest(ctx context.Context, requestID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return r.client.SetNX(ctx, constant.RequestIDKeyPrefix+requestID, time.Now().UTC().Unix(), ttl).Result()
}

func (r *RedisLockRepository) ForgetRequest(ctx context.Context, requestID string) error {
	return r.client.Del(ctx, constant.RequestIDKeyPrefix+requestID).Err()
}

func leaseKey(isin string) string {
	return constant.InstrumentLeaseKeyPrefix + isin
}
