package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prefeitura-rio/app-scim-sync/internal/redisclient"
	"github.com/redis/go-redis/v9"
)

// ErrRunInProgress is returned when another process holds the run lock
var ErrRunInProgress = errors.New("a sync run with the same scope is already in progress")

// RunLock keeps replicas from running the same sweep or drain concurrently
type RunLock interface {
	// Acquire takes the lock for key. It returns ErrRunInProgress when the lock is held.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// RunLockKey builds the lock key of a run
func RunLockKey(mode, scope string) string {
	return fmt.Sprintf("scim-sync:lock:%s:%s", mode, scope)
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock is a SET NX PX lock shared by every replica
type RedisRunLock struct {
	redis *redisclient.Client
	ttl   time.Duration
}

// NewRedisRunLock creates a lock that expires after ttl if never released
func NewRedisRunLock(client *redisclient.Client, ttl time.Duration) *RedisRunLock {
	return &RedisRunLock{redis: client, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		// the run's context may be gone by now
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.redis.Eval(ctx, releaseScript, []string{key}, token)
	}, nil
}

// LocalRunLock is a process-local lock for single-replica deployments
type LocalRunLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	ttl   time.Duration
	clock func() time.Time
}

// NewLocalRunLock creates a process-local lock
func NewLocalRunLock(ttl time.Duration) *LocalRunLock {
	return &LocalRunLock{held: make(map[string]time.Time), ttl: ttl, clock: time.Now}
}

func (l *LocalRunLock) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if expires, ok := l.held[key]; ok && (l.ttl <= 0 || now.Before(expires)) {
		return nil, ErrRunInProgress
	}
	expires := now.Add(l.ttl)
	l.held[key] = expires

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key].Equal(expires) {
				delete(l.held, key)
			}
		})
	}, nil
}

var (
	_ RunLock = (*RedisRunLock)(nil)
	_ RunLock = (*LocalRunLock)(nil)
)
