package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noah-isme/opaline-simulator/internal/common"
)

// Probe checks one dependency for readiness.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler exposes liveness and readiness endpoints.
type Handler struct {
	Probes  []Probe
	Timeout time.Duration

	draining atomic.Bool
}

// NewHandler returns a ready handler running probes on each readiness check.
func NewHandler(timeout time.Duration, probes ...Probe) *Handler {
	return &Handler{Probes: probes, Timeout: timeout}
}

// SetDraining marks the process as shutting down; readiness fails from then on.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// Live reports liveness status.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every probe concurrently and reports their status.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status := make(map[string]string, len(h.Probes))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range h.Probes {
		if p.Check == nil {
			continue
		}
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			result := "ok"
			if err := p.Check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			status[p.Name] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	code := http.StatusOK
	for _, v := range status {
		if v != "ok" {
			code = http.StatusServiceUnavailable
			break
		}
	}
	common.JSON(w, code, status)
}
