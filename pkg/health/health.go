// Package health serves liveness and readiness probes for the flight server.
// Readiness aggregates named checks over the simulation loop, the input
// listener, the asset loader and process memory.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the outcome of a probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// defaultCheckTimeout bounds a single check when the caller's context has no deadline.
const defaultCheckTimeout = 2 * time.Second

// HealthCheck is one named readiness condition.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type funcCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcCheck) Name() string                    { return f.name }
func (f funcCheck) Check(ctx context.Context) error { return f.fn(ctx) }

// Func adapts a plain function into a HealthCheck.
func Func(name string, fn func(ctx context.Context) error) HealthCheck {
	return funcCheck{name: name, fn: fn}
}

// Report is the readiness payload.
type Report struct {
	Status    Status                 `json:"status"`
	CheckedAt time.Time              `json:"checkedAt"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Failing returns the names of failed checks in sorted order.
func (r Report) Failing() []string {
	var names []string
	for name, result := range r.Checks {
		if result.Status != StatusHealthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latencyMs"`
}

// HealthChecker runs registered checks concurrently.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheck
	started time.Time
	timeout time.Duration
	now     func() time.Time
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheck),
		started: time.Now(),
		timeout: defaultCheckTimeout,
		now:     time.Now,
	}
}

// AddCheck registers check, replacing any check with the same name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck unregisters a check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// CheckHealth runs every check and reports healthy only if all of them pass.
// A check that panics counts as failed.
func (hc *HealthChecker) CheckHealth(ctx context.Context) Report {
	hc.mu.RLock()
	checks := make([]HealthCheck, 0, len(hc.checks))
	for _, check := range hc.checks {
		checks = append(checks, check)
	}
	hc.mu.RUnlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hc.timeout)
		defer cancel()
	}

	report := Report{
		Status:    StatusHealthy,
		CheckedAt: hc.now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(check HealthCheck) {
			defer wg.Done()
			result := runCheck(ctx, check)
			mu.Lock()
			report.Checks[check.Name()] = result
			if result.Status != StatusHealthy {
				report.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return report
}

func runCheck(ctx context.Context, check HealthCheck) (result CheckResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("check panicked: %v", r)}
		}
		result.LatencyMs = float64(time.Since(start).Microseconds()) / 1000
	}()

	if err := check.Check(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// Liveness is the liveness payload.
type Liveness struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// LivenessHandler answers 200 while the process can serve HTTP.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Liveness{
		Status:        "alive",
		UptimeSeconds: hc.now().Sub(hc.started).Seconds(),
	})
}

// ReadinessHandler answers 200 when every check passes and 503 otherwise.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := hc.CheckHealth(ctx)
	code := http.StatusOK
	if report.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Routes returns a mux serving /health (liveness) and /ready (readiness).
func (hc *HealthChecker) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hc.LivenessHandler)
	mux.HandleFunc("/ready", hc.ReadinessHandler)
	return mux
}

// SimulationHealthCheck fails when the fixed-step loop has stalled.
type SimulationHealthCheck struct {
	lastTick   func() time.Time
	staleAfter time.Duration
	now        func() time.Time
}

// NewSimulationHealthCheck creates a check that expects a tick within staleAfter.
func NewSimulationHealthCheck(lastTick func() time.Time, staleAfter time.Duration) *SimulationHealthCheck {
	return &SimulationHealthCheck{
		lastTick:   lastTick,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

func (s *SimulationHealthCheck) Name() string { return "simulation" }

// Check fails before the first tick and when the last one is older than staleAfter.
func (s *SimulationHealthCheck) Check(ctx context.Context) error {
	last := s.lastTick()
	if last.IsZero() {
		return fmt.Errorf("simulation has not ticked yet")
	}
	if age := s.now().Sub(last); age > s.staleAfter {
		return fmt.Errorf("last tick %s ago exceeds %s", age.Round(time.Millisecond), s.staleAfter)
	}
	return nil
}

// NewNetworkHealthCheck fails while the pilot input listener is unbound.
// listenerAddr returns "" when nothing is listening.
func NewNetworkHealthCheck(listenerAddr func() string) HealthCheck {
	return Func("network", func(ctx context.Context) error {
		if listenerAddr() == "" {
			return fmt.Errorf("input listener is not active")
		}
		return nil
	})
}

// NewMemoryHealthCheck fails when usage (in MB) exceeds maxMemoryMB.
func NewMemoryHealthCheck(maxMemoryMB int64, usage func() int64) HealthCheck {
	return Func("memory", func(ctx context.Context) error {
		if current := usage(); current > maxMemoryMB {
			return fmt.Errorf("memory usage %dMB exceeds limit %dMB", current, maxMemoryMB)
		}
		return nil
	})
}
