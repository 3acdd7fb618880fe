package ratelimit

import (
	"context"
	"sync"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory is a process-local Limiter for single-instance deployments without
// Redis. It keeps one ulule limiter per (window, max) pair.
type Memory struct {
	mu       sync.Mutex
	store    limiter.Store
	limiters map[limiter.Rate]*limiter.Limiter
}

// NewMemory returns an empty in-memory limiter.
func NewMemory() *Memory {
	return &Memory{
		store:    memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "simulator", CleanUpInterval: time.Minute}),
		limiters: make(map[limiter.Rate]*limiter.Limiter),
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	lctx, err := m.limiter(window, max).Get(ctx, key)
	if err != nil {
		return false, 0, time.Now().Add(window), err
	}
	return !lctx.Reached, int(lctx.Remaining), time.Unix(lctx.Reset, 0), nil
}

func (m *Memory) limiter(window time.Duration, max int) *limiter.Limiter {
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[rate]
	if !ok {
		l = limiter.New(m.store, rate)
		m.limiters[rate] = l
	}
	return l
}
