// pkg/resource/loader.go
package resource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/opd-ai/go-flight/pkg/logging"
)

// ErrLoaderClosed is returned by Request after Close.
var ErrLoaderClosed = errors.New("asset loader closed")

// Asset describes a loaded model file.
type Asset struct {
	Name string
	Path string
	Size int64
}

// LoadFunc loads one asset by name. It runs on a pool worker.
type LoadFunc func(ctx context.Context, name string) (Asset, error)

// LoadResult is a finished request, handed back to the tick thread by Drain.
type LoadResult struct {
	ActorID  uint64
	Asset    Asset
	Err      error
	Duration time.Duration
}

// AssetLoader resolves actor models off the simulation thread. Results queue
// up until the owner calls Drain, so a swap always lands between ticks.
type AssetLoader struct {
	pool   *ants.Pool
	load   LoadFunc
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	results []LoadResult

	pending atomic.Int64
	closed  atomic.Bool
}

// NewAssetLoader creates a loader running load on up to workers goroutines.
func NewAssetLoader(workers int, load LoadFunc, logger *logging.Logger) (*AssetLoader, error) {
	if workers < 1 {
		return nil, fmt.Errorf("asset loader needs at least one worker, got %d", workers)
	}
	if load == nil {
		return nil, fmt.Errorf("asset loader needs a load function")
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	logger = logger.Component("assets")

	ctx, cancel := context.WithCancel(context.Background())
	pool, err := ants.NewPool(
		workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			logger.Error(ctx, "Asset load panicked", fmt.Errorf("panic: %v", p))
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create asset pool: %w", err)
	}

	return &AssetLoader{
		pool:   pool,
		load:   load,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Request schedules a load of name for actorID. It never blocks; a saturated
// pool returns an error and the actor keeps its placeholder.
func (l *AssetLoader) Request(actorID uint64, name string) error {
	if l.closed.Load() {
		return ErrLoaderClosed
	}

	l.pending.Add(1)
	err := l.pool.Submit(func() {
		defer l.pending.Add(-1)
		l.run(actorID, name)
	})
	if err != nil {
		l.pending.Add(-1)
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrLoaderClosed
		}
		return fmt.Errorf("failed to queue asset %q for actor %d: %w", name, actorID, err)
	}
	return nil
}

func (l *AssetLoader) run(actorID uint64, name string) {
	start := time.Now()
	asset, err := l.load(l.ctx, name)
	result := LoadResult{
		ActorID:  actorID,
		Asset:    asset,
		Err:      err,
		Duration: time.Since(start),
	}
	if err != nil {
		l.logger.Warn(l.ctx, "Asset load failed",
			"actor_id", actorID,
			"asset", name,
			"error", err.Error(),
		)
	}

	l.mu.Lock()
	l.results = append(l.results, result)
	l.mu.Unlock()
}

// Drain returns the loads finished since the previous call, oldest first.
func (l *AssetLoader) Drain() []LoadResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.results
	l.results = nil
	return out
}

// Pending returns the number of submitted loads that have not finished.
func (l *AssetLoader) Pending() int {
	return int(l.pending.Load())
}

// Closed reports whether Close has been called.
func (l *AssetLoader) Closed() bool {
	return l.closed.Load()
}

// Close cancels in-flight loads and waits up to timeout for workers to exit.
func (l *AssetLoader) Close(timeout time.Duration) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.cancel()
	if err := l.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("failed to release asset pool: %w", err)
	}
	return nil
}

// FileLoader returns a LoadFunc that resolves names inside dir. Names may not
// escape dir.
func FileLoader(dir string) LoadFunc {
	return func(ctx context.Context, name string) (Asset, error) {
		if err := ctx.Err(); err != nil {
			return Asset{}, err
		}
		clean := filepath.Clean(name)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return Asset{}, fmt.Errorf("asset %q is outside the asset directory", name)
		}
		path := filepath.Join(dir, clean)
		info, err := os.Stat(path)
		if err != nil {
			return Asset{}, fmt.Errorf("failed to stat asset: %w", err)
		}
		if info.IsDir() {
			return Asset{}, fmt.Errorf("asset %q is a directory", name)
		}
		return Asset{Name: name, Path: path, Size: info.Size()}, nil
	}
}
