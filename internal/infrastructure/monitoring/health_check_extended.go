package monitoring

import (
	"context"
	"fmt"
	"time"

	"bemore/pkg/circuitbreaker"
)

// Pinger is anything that can report liveness of a dependency, such as the
// repository factory.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// AddStorageCheck checks the session storage backend.
func (h *HealthChecker) AddStorageCheck(p Pinger, interval, timeout time.Duration) {
	h.AddCheck("storage", func(ctx context.Context) (bool, error) {
		if err := p.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddBreakerCheck reports unhealthy while the backend circuit breaker is open.
func (h *HealthChecker) AddBreakerCheck(cb *circuitbreaker.CircuitBreaker, interval time.Duration) {
	h.AddCheck("backend", func(ctx context.Context) (bool, error) {
		if state := cb.State(); state == circuitbreaker.StateOpen {
			return false, fmt.Errorf("circuit breaker %s", state)
		}
		return true, nil
	}, interval, time.Second)
}

// AddRenderCheck reports unhealthy once the render worker has stopped.
func (h *HealthChecker) AddRenderCheck(done <-chan struct{}, interval time.Duration) {
	h.AddCheck("renderer", func(ctx context.Context) (bool, error) {
		select {
		case <-done:
			return false, fmt.Errorf("render worker stopped")
		default:
			return true, nil
		}
	}, interval, time.Second)
}

func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady reports whether every check passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
