package reminders

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepLock prevents concurrent sweeps across processes using a redis
// SET NX lease. A nil lock (or nil client) always grants.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewSweepLock builds a lock on the given key. The TTL bounds how long a
// crashed holder blocks other sweepers.
func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	if key == "" {
		key = "turnero:reminder_sweep"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SweepLock{client: client, key: key, ttl: ttl}
}

// Acquire tries to take the lock. Returns false if another holder has it.
func (l *SweepLock) Acquire(ctx context.Context) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	return l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
}

// Release drops the lock. The delete runs on a detached context so a
// cancelled sweep does not leave the lease held until its TTL expires.
func (l *SweepLock) Release(ctx context.Context) {
	if l == nil || l.client == nil {
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	l.client.Del(delCtx, l.key)
}
