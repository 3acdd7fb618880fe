package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else once
// the wait budget is exhausted.
var ErrNotAcquired = errors.New("lock: not acquired")

var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

// Locker provides a Redis-backed mutual exclusion keyed by an arbitrary string.
type Locker struct {
	R            redis.UniversalClient
	Prefix       string
	TTL          time.Duration
	Wait         time.Duration
	RetryBackoff time.Duration
}

// ContactKey derives the lock key for a contact email. Emails are compared
// trimmed and case-insensitively and never stored in clear.
func ContactKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "contact:" + hex.EncodeToString(sum[:12])
}

// WithLock executes fn while holding the lock for key. The lock is released
// even when fn returns an error.
func (l Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	wait := l.Wait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = "lock:"
	}
	fullKey := prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.R.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrNotAcquired
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.R, []string{fullKey}, token).Err()
	}()
	return fn(ctx)
}
