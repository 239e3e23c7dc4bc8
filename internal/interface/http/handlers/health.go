package handlers

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthChecker runs the named dependency checks.
type HealthChecker interface {
	// Check runs every registered check.
	Check(ctx context.Context) HealthStatus

	// CheckOnly runs the named checks; readiness uses a subset.
	CheckOnly(ctx context.Context, names ...string) HealthStatus
}

// HealthCheckFunc reports a dependency as down by returning an error.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus is the /health body.
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is one named check within HealthStatus.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Pinger is anything with connectivity to report: the store, the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger into a HealthCheckFunc.
func PingCheck(p Pinger) HealthCheckFunc {
	return func(ctx context.Context) error {
		return p.Ping(ctx)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// CompositeHealthChecker runs registered checks in parallel.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a new composite health checker.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for individual health checks.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck adds a named health check function.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check runs every registered check.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()
	return c.run(ctx, checks)
}

// CheckOnly runs the named checks. Unknown names are ignored.
func (c *CompositeHealthChecker) CheckOnly(ctx context.Context, names ...string) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(names))
	for _, name := range names {
		if check, ok := c.checks[name]; ok {
			checks[name] = check
		}
	}
	c.mu.RUnlock()
	return c.run(ctx, checks)
}

func (c *CompositeHealthChecker) run(ctx context.Context, checks map[string]HealthCheckFunc) HealthStatus {
	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			res := CheckResult{Healthy: true, Message: "OK"}
			if err := check(checkCtx); err != nil {
				res = CheckResult{Message: err.Error()}
			}
			res.Duration = time.Since(start).Round(time.Millisecond).String()

			mu.Lock()
			status.Checks[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, name := range slices.Sorted(maps.Keys(status.Checks)) {
		if !status.Checks[name].Healthy {
			failed = append(failed, name)
		}
	}
	status.Healthy = len(failed) == 0
	status.Message = "All checks passed"
	if !status.Healthy {
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}
