package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a best-effort distributed lock (SET NX PX). The schedulers take
// it per tick so running a second replica duplicates nothing; it is not a
// fencing lock and must not guard data integrity, which the database
// invariants already do.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	owner  string
}

func NewLock(client *Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    "tenantd:lock:" + key,
		ttl:    ttl,
		owner:  uuid.New().String(),
	}
}

// TryAcquire returns true when this instance holds the lock for the tick.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// Re-entrant for the same instance so a tick overrunning the interval
	// does not lock its own successor out.
	val, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if val == l.owner {
		l.client.Expire(ctx, l.key, l.ttl)
		return true, nil
	}
	return false, nil
}

// Release drops the lock if this instance still owns it.
func (l *Lock) Release(ctx context.Context) {
	script := redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)
	_, _ = script.Run(ctx, l.client, []string{l.key}, l.owner).Result()
}
