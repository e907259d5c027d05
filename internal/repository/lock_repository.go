package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a held lock. Release is idempotent.
type Lease struct {
	Key   string
	Token string

	release func(context.Context) error
}

// Release frees the lock if it is still owned by this lease.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.release == nil {
		return nil
	}
	err := l.release(ctx)
	l.release = nil
	return err
}

// LockRepository provides Redis backed mutual exclusion across API instances.
type LockRepository struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]localLock
}

type localLock struct {
	token   string
	expires time.Time
}

// NewLockRepository constructs the repository. Without a client locks are held
// in process memory, which only serializes work inside this process.
func NewLockRepository(client *redis.Client) *LockRepository {
	return &LockRepository{client: client, local: make(map[string]localLock)}
}

// Acquire takes key for ttl or returns ErrLockNotAcquired.
func (r *LockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	lease := &Lease{Key: key, Token: token}
	if r.client == nil {
		return r.acquireLocal(lease, ttl)
	}

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire %s: %w", key, err)
	}
	if !ok {
		return nil, appErrors.ErrLockNotAcquired
	}

	lease.release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}
	return lease, nil
}

func (r *LockRepository) acquireLocal(lease *Lease, ttl time.Duration) (*Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if held, ok := r.local[lease.Key]; ok && (held.expires.IsZero() || now.Before(held.expires)) {
		return nil, appErrors.ErrLockNotAcquired
	}
	held := localLock{token: lease.Token}
	if ttl > 0 {
		held.expires = now.Add(ttl)
	}
	r.local[lease.Key] = held

	lease.release = func(context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.local[lease.Key]; ok && current.token == lease.Token {
			delete(r.local, lease.Key)
		}
		return nil
	}
	return lease, nil
}
