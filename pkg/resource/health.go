// pkg/resource/health.go
package resource

import (
	"context"
	"fmt"

	"github.com/opd-ai/go-flight/pkg/health"
)

// goroutineWarnRatio is the share of the goroutine limit that marks the
// process unhealthy.
const goroutineWarnRatio = 0.8

// NewResourceHealthCheck reports the manager's budgets as the "resource"
// check. It reads the last heap sample; it does not sample itself.
func NewResourceHealthCheck(manager *ResourceManager) health.HealthCheck {
	return health.Func("resource", func(ctx context.Context) error {
		return checkUsage(manager.Usage())
	})
}

func checkUsage(u Usage) error {
	if u.HeapMB > u.HeapLimitMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", u.HeapMB, u.HeapLimitMB)
	}
	threshold := int64(float64(u.GoroutineLimit) * goroutineWarnRatio)
	if u.Goroutines > threshold {
		return fmt.Errorf("%d of %d goroutines in use (tasks %v)", u.Goroutines, u.GoroutineLimit, u.Tasks)
	}
	return nil
}

// NewLoaderHealthCheck fails the "asset_loader" check when the loader is
// closed or more than maxQueued loads are pending.
func NewLoaderHealthCheck(loader *AssetLoader, maxQueued int) health.HealthCheck {
	return health.Func("asset_loader", func(ctx context.Context) error {
		if loader.Closed() {
			return fmt.Errorf("asset loader is closed")
		}
		if pending := loader.Pending(); pending > maxQueued {
			return fmt.Errorf("%d asset loads pending, limit %d", pending, maxQueued)
		}
		return nil
	})
}
