// Package locker provides short-lived mutual exclusion across server
// replicas, used so only one instance runs a cron job at a time.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotOwner = errors.New("lock not owned by this client")

// Locker acquires a named lock for at most ttl.
type Locker interface {
	// TryLock returns the owner token when the lock was acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RedisLocker implements Locker with SET NX plus a compare-and-delete script.
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "medicare:lock:"+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, l.client, []string{"medicare:lock:" + key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

// LocalLocker is an in-process Locker for single-instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	token   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLock), clock: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = localLock{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.held[key]
	if !ok || cur.token != token {
		return ErrNotOwner
	}
	delete(l.held, key)
	return nil
}
