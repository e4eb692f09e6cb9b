// Package redisq implements the durable FIFO queues on top of Redis lists.
//
// Producers RPUSH, the single consumer BLPOPs with a timeout, so payloads
// survive process restarts and ordering is first-in first-out. Delivery is
// at-least-once; consumers must tolerate replays.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// Queue is one named durable queue. Safe for concurrent producers; the
// blocking Pop is meant for a single consumer.
type Queue struct {
	rdb *redis.Client
	key string
}

// New returns a queue bound to key on the given client.
func New(rdb *redis.Client, key string) *Queue { return &Queue{rdb: rdb, key: key} }

// NewClient builds the shared Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// WaitReady pings Redis with exponential back-off until it answers or the
// context expires.
func WaitReady(ctx context.Context, rdb *redis.Client) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		return rdb.Ping(ctx).Err()
	}, backoff.WithContext(bo, ctx))
}

// Push appends a payload to the queue tail.
func (q *Queue) Push(ctx context.Context, payload string) error {
	if err := q.rdb.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("op=queue.push key=%s: %w", q.key, err)
	}
	return nil
}

// Pop blocks up to timeout for the next payload. ok=false means the timeout
// elapsed with nothing to consume.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("op=queue.pop key=%s: %w", q.key, err)
	}
	// BLPOP returns [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// Key returns the Redis key backing the queue.
func (q *Queue) Key() string { return q.key }
