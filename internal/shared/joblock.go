package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobLockHeld indicates another instance already runs the job this period.
var ErrJobLockHeld = errors.New("job lock held by another instance")

// JobLock provides best-effort mutual exclusion for scheduled jobs using a
// redis token with expiry. Expiry bounds the damage of a crashed holder.
type JobLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewJobLock constructs the lock helper.
func NewJobLock(client *redis.Client, ttl time.Duration) *JobLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JobLock{client: client, ttl: ttl}
}

// Acquire claims the named job for this period. The returned release function
// only deletes the key when the token still matches, so an expired lock taken
// over by another instance is left alone.
func (l *JobLock) Acquire(ctx context.Context, job string) (func(context.Context), error) {
	if l == nil || l.client == nil {
		return func(context.Context) {}, nil
	}
	token := uuid.NewString()
	key := jobLockKey(job)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("joblock: acquire %s: %w", job, err)
	}
	if !ok {
		return nil, ErrJobLockHeld
	}
	release := func(ctx context.Context) {
		current, err := l.client.Get(ctx, key).Result()
		if err != nil || current != token {
			return
		}
		_ = l.client.Del(ctx, key).Err()
	}
	return release, nil
}

func jobLockKey(job string) string {
	return fmt.Sprintf("jobs:%s:lock", job)
}
