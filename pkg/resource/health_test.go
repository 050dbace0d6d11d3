// pkg/resource/health_test.go
package resource

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestResourceHealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		usage   Usage
		wantErr string
	}{
		{
			name:  "within budgets",
			usage: Usage{Goroutines: 2, GoroutineLimit: 10, HeapMB: 40, HeapLimitMB: 500},
		},
		{
			name:  "goroutines at threshold",
			usage: Usage{Goroutines: 8, GoroutineLimit: 10, HeapMB: 40, HeapLimitMB: 500},
		},
		{
			name:    "heap over limit",
			usage:   Usage{Goroutines: 2, GoroutineLimit: 10, HeapMB: 501, HeapLimitMB: 500},
			wantErr: "memory usage 501MB exceeds limit 500MB",
		},
		{
			name:    "goroutines over threshold",
			usage:   Usage{Goroutines: 9, GoroutineLimit: 10, HeapMB: 40, HeapLimitMB: 500, Tasks: []TaskCount{{Name: "terminal", Count: 9}}},
			wantErr: "9 of 10 goroutines in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkUsage(tt.usage)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResourceHealthCheck_ReadsManager(t *testing.T) {
	rm := newTestResourceManager(10, time.Second)
	defer rm.Shutdown(context.Background())

	check := NewResourceHealthCheck(rm)
	if check.Name() != "resource" {
		t.Errorf("Expected name 'resource', got %s", check.Name())
	}

	rm.readHeapMB = func() int64 { return 10 }
	rm.Sample()
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Expected healthy manager, got %v", err)
	}

	rm.readHeapMB = func() int64 { return 900 }
	rm.Sample()
	if err := check.Check(context.Background()); err == nil {
		t.Error("Expected heap over the limit to fail the check")
	}
}

func TestLoaderHealthCheck(t *testing.T) {
	release := make(chan struct{})
	load := func(ctx context.Context, name string) (Asset, error) {
		<-release
		return Asset{Name: name}, nil
	}
	loader, err := NewAssetLoader(2, load, nil)
	if err != nil {
		t.Fatalf("NewAssetLoader failed: %v", err)
	}

	check := NewLoaderHealthCheck(loader, 1)
	if check.Name() != "asset_loader" {
		t.Errorf("Expected name 'asset_loader', got %s", check.Name())
	}
	if err := check.Check(context.Background()); err != nil {
		t.Errorf("Expected idle loader to be healthy, got %v", err)
	}

	loader.Request(1, "a.glb")
	loader.Request(2, "b.glb")
	if err := check.Check(context.Background()); err == nil {
		t.Error("Expected backlog over the limit to be unhealthy")
	}

	close(release)
	loader.Close(time.Second)
	if err := check.Check(context.Background()); err == nil {
		t.Error("Expected closed loader to be unhealthy")
	}
}
