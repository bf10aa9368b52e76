package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PaymentLocker serializes operations on one split payment.
// Lock blocks until the key is free or ctx is done. The returned func releases the lock.
type PaymentLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func splitPaymentLockKey(id uint) string {
	return fmt.Sprintf("split_payment:%d", id)
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// LocalPaymentLocker is a keyed mutex held in process memory
type LocalPaymentLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

func NewLocalPaymentLocker() *LocalPaymentLocker {
	return &LocalPaymentLocker{slots: make(map[string]*lockSlot)}
}

func (l *LocalPaymentLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, slot, false)
		return nil, fmt.Errorf("%w: %w", ErrLockNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, slot, true) })
	}, nil
}

func (l *LocalPaymentLocker) release(key string, slot *lockSlot, held bool) {
	if held {
		<-slot.ch
	}
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLockBusy = errors.New("lock busy")

// RedisPaymentLocker extends the local lock across instances with a redis SETNX lease
type RedisPaymentLocker struct {
	rc     *redis.Client
	local  *LocalPaymentLocker
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisPaymentLocker(rc *redis.Client, prefix string, ttl, wait time.Duration) *RedisPaymentLocker {
	return &RedisPaymentLocker{
		rc:     rc,
		local:  NewLocalPaymentLocker(),
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *RedisPaymentLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	_, err = backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.rc.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockBusy
		}
		return true, nil
	},
		backoff.WithBackOff(lockBackOff()),
		backoff.WithMaxElapsedTime(l.wait),
	)
	if err != nil {
		unlockLocal()
		if errors.Is(err, errLockBusy) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be cancelled
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(relCtx, l.rc, []string{lockKey}, token).Err()
			unlockLocal()
		})
	}, nil
}

func lockBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}
