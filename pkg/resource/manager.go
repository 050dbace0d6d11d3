// pkg/resource/manager.go
package resource

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/logging"
)

// ErrTaskLimit is returned by StartGoroutine when the goroutine budget is spent.
var ErrTaskLimit = errors.New("goroutine limit exceeded")

// ResourceManager bounds the background work of a flight process (recorder
// writers, terminal views, monitoring) and drains it on shutdown.
type ResourceManager struct {
	heapLimitMB     int64
	taskLimit       int64
	shutdownTimeout time.Duration
	sampleInterval  time.Duration
	readHeapMB      func() int64

	running atomic.Int64
	heapMB  atomic.Int64
	wg      sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	monitor chan struct{}
	logger  *logging.Logger

	mu        sync.RWMutex
	started   bool
	tasks     map[string]int
	sampledAt time.Time
}

// NewResourceManager creates a manager with the limits in env. A nil logger
// logs to stdout.
func NewResourceManager(env *config.EnvironmentConfig, logger *logging.Logger) *ResourceManager {
	if logger == nil {
		logger = logging.NewLogger()
	}
	interval := env.ResourceCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ResourceManager{
		heapLimitMB:     env.MaxMemoryMB,
		taskLimit:       int64(env.MaxGoroutines),
		shutdownTimeout: env.ShutdownTimeout,
		sampleInterval:  interval,
		readHeapMB:      heapAllocMB,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger.Component("resource"),
		tasks:           make(map[string]int),
	}
}

func heapAllocMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}

// Start begins periodic heap sampling.
func (rm *ResourceManager) Start() error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.started {
		return fmt.Errorf("resource manager already running")
	}
	if rm.ctx.Err() != nil {
		return fmt.Errorf("resource manager is shut down")
	}
	rm.started = true
	rm.monitor = make(chan struct{})
	go rm.sampleLoop(rm.monitor)

	rm.logger.Info(rm.ctx, "Resource manager started",
		"max_memory_mb", rm.heapLimitMB,
		"max_goroutines", rm.taskLimit,
		"sample_interval", rm.sampleInterval.String(),
	)
	return nil
}

// Context is cancelled when Shutdown begins. Tasks should return once it is done.
func (rm *ResourceManager) Context() context.Context {
	return rm.ctx
}

// StartGoroutine runs fn on a tracked goroutine named name. It fails once the
// manager is shut down or the goroutine limit is reached. A panic in fn is
// logged and ends only that task.
func (rm *ResourceManager) StartGoroutine(ctx context.Context, name string, fn func(context.Context)) error {
	if rm.ctx.Err() != nil {
		return fmt.Errorf("task %s: resource manager is shut down", name)
	}
	if n := rm.running.Add(1); n > rm.taskLimit {
		rm.running.Add(-1)
		rm.logger.Warn(ctx, "Goroutine limit exceeded", "limit", rm.taskLimit, "task", name)
		return fmt.Errorf("task %s: %w (%d)", name, ErrTaskLimit, rm.taskLimit)
	}
	rm.track(name, 1)
	rm.wg.Add(1)

	go func() {
		defer rm.wg.Done()
		defer rm.running.Add(-1)
		defer rm.track(name, -1)
		defer func() {
			if r := recover(); r != nil {
				rm.logger.Error(ctx, "Task panicked", fmt.Errorf("panic: %v", r), "task", name)
			}
		}()
		fn(ctx)
	}()
	return nil
}

func (rm *ResourceManager) track(name string, delta int) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.tasks[name] += delta; rm.tasks[name] <= 0 {
		delete(rm.tasks, name)
	}
}

// TaskCount is the number of running tasks sharing a name.
type TaskCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RunningTasks returns the tracked tasks sorted by name.
func (rm *ResourceManager) RunningTasks() []TaskCount {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]TaskCount, 0, len(rm.tasks))
	for name, n := range rm.tasks {
		out = append(out, TaskCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sample reads the heap size and reports whether it is over the limit.
func (rm *ResourceManager) Sample() error {
	current := rm.readHeapMB()
	rm.heapMB.Store(current)
	rm.mu.Lock()
	rm.sampledAt = time.Now()
	rm.mu.Unlock()

	if current > rm.heapLimitMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", current, rm.heapLimitMB)
	}
	return nil
}

// Usage is a point-in-time view of the manager's budgets.
type Usage struct {
	Goroutines     int64       `json:"goroutines"`
	GoroutineLimit int64       `json:"goroutineLimit"`
	HeapMB         int64       `json:"heapMB"`
	HeapLimitMB    int64       `json:"heapLimitMB"`
	SampledAt      time.Time   `json:"sampledAt"`
	Tasks          []TaskCount `json:"tasks"`
}

// Usage returns the tracked goroutine count and the last heap sample.
func (rm *ResourceManager) Usage() Usage {
	rm.mu.RLock()
	sampledAt := rm.sampledAt
	rm.mu.RUnlock()

	return Usage{
		Goroutines:     rm.running.Load(),
		GoroutineLimit: rm.taskLimit,
		HeapMB:         rm.heapMB.Load(),
		HeapLimitMB:    rm.heapLimitMB,
		SampledAt:      sampledAt,
		Tasks:          rm.RunningTasks(),
	}
}

// Shutdown cancels Context and waits, bounded by ctx and the configured
// shutdown timeout, for tracked goroutines to return.
func (rm *ResourceManager) Shutdown(ctx context.Context) error {
	rm.cancel()

	rm.mu.Lock()
	monitor := rm.monitor
	rm.started = false
	rm.monitor = nil
	rm.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rm.shutdownTimeout)
	defer cancel()

	if monitor != nil {
		rm.logger.Info(ctx, "Shutting down resource manager", "tasks", rm.RunningTasks())
		select {
		case <-monitor:
		case <-waitCtx.Done():
		}
	}

	drained := make(chan struct{})
	go func() {
		rm.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-waitCtx.Done():
		remaining := rm.running.Load()
		rm.logger.Warn(ctx, "Shutdown timeout exceeded with goroutines still running",
			"remaining", remaining,
			"tasks", rm.RunningTasks(),
		)
		return fmt.Errorf("shutdown timeout: %d goroutines still running", remaining)
	}
}

func (rm *ResourceManager) sampleLoop(done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(rm.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := rm.Sample(); err != nil {
				rm.logger.Error(rm.ctx, "Memory limit exceeded", err)
			}
			rm.logger.Debug(rm.ctx, "Resource usage sampled",
				"goroutines", rm.running.Load(),
				"memory_mb", rm.heapMB.Load(),
			)
		case <-rm.ctx.Done():
			return
		}
	}
}
