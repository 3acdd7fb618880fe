package ratelimit_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/opaline-simulator/internal/ratelimit"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Duration, int) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, errors.New("redis down")
}

func newRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func limitedHandler(l ratelimit.Limiter, max int) http.Handler {
	return ratelimit.Handler{
		Limiter: l,
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: time.Minute, Max: max},
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestHandlerEnforcesLimit(t *testing.T) {
	limiters := map[string]ratelimit.Limiter{
		"redis":  ratelimit.SlidingWindow{Client: newRedis(t), Prefix: "ratelimit:"},
		"memory": ratelimit.NewMemory(),
	}
	for name, l := range limiters {
		t.Run(name, func(t *testing.T) {
			h := limitedHandler(l, 1)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil)
			req.RemoteAddr = "203.0.113.7:5555"
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

			rr = httptest.NewRecorder()
			h.ServeHTTP(rr, req.Clone(req.Context()))
			require.Equal(t, http.StatusTooManyRequests, rr.Code)
			require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
			require.NotEmpty(t, rr.Header().Get("Retry-After"))
			require.Contains(t, rr.Body.String(), "RATE_LIMITED")

			other := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", nil)
			other.RemoteAddr = "198.51.100.1:5555"
			rr = httptest.NewRecorder()
			h.ServeHTTP(rr, other)
			require.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestHandlerFailsOpen(t *testing.T) {
	var reported error
	h := ratelimit.Handler{
		Limiter: failingLimiter{},
		Config:  ratelimit.Config{Key: ratelimit.ByClientIP, Window: time.Second, Max: 1},
		OnError: func(err error) { reported = err },
	}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Error(t, reported)
}

func TestSlidingWindowRemaining(t *testing.T) {
	l := ratelimit.SlidingWindow{Client: newRedis(t), Prefix: "test:"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 2-(i+1), remaining)
	}
	allowed, remaining, _, err := l.Allow(ctx, "key", 2*time.Second, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
}
