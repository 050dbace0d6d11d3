// pkg/resource/loader_test.go
package resource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func waitForResults(t *testing.T, l *AssetLoader, n int) []LoadResult {
	t.Helper()
	var out []LoadResult
	deadline := time.Now().Add(2 * time.Second)
	for len(out) < n && time.Now().Before(deadline) {
		out = append(out, l.Drain()...)
		time.Sleep(5 * time.Millisecond)
	}
	if len(out) < n {
		t.Fatalf("Expected %d results, got %d", n, len(out))
	}
	return out
}

func TestNewAssetLoader_Validation(t *testing.T) {
	load := func(ctx context.Context, name string) (Asset, error) { return Asset{Name: name}, nil }

	if _, err := NewAssetLoader(0, load, nil); err == nil {
		t.Error("Expected error for zero workers")
	}
	if _, err := NewAssetLoader(2, nil, nil); err == nil {
		t.Error("Expected error for nil load function")
	}
}

func TestAssetLoader_RequestAndDrain(t *testing.T) {
	load := func(ctx context.Context, name string) (Asset, error) {
		if name == "missing.glb" {
			return Asset{}, errors.New("not found")
		}
		return Asset{Name: name, Size: 42}, nil
	}
	l, err := NewAssetLoader(2, load, nil)
	if err != nil {
		t.Fatalf("NewAssetLoader failed: %v", err)
	}
	defer l.Close(time.Second)

	if err := l.Request(1, "fighter.glb"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if err := l.Request(2, "missing.glb"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	results := waitForResults(t, l, 2)
	byActor := make(map[uint64]LoadResult)
	for _, r := range results {
		byActor[r.ActorID] = r
	}
	if r := byActor[1]; r.Err != nil || r.Asset.Name != "fighter.glb" || r.Asset.Size != 42 {
		t.Errorf("Expected fighter.glb for actor 1, got %+v", r)
	}
	if r := byActor[2]; r.Err == nil {
		t.Errorf("Expected error for actor 2, got %+v", r)
	}
	if l.Pending() != 0 {
		t.Errorf("Expected no pending loads, got %d", l.Pending())
	}
	if extra := l.Drain(); len(extra) != 0 {
		t.Errorf("Expected drained queue to be empty, got %d", len(extra))
	}
}

func TestAssetLoader_ResultsWaitForDrain(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	load := func(ctx context.Context, name string) (Asset, error) {
		defer wg.Done()
		return Asset{Name: name}, nil
	}
	l, err := NewAssetLoader(1, load, nil)
	if err != nil {
		t.Fatalf("NewAssetLoader failed: %v", err)
	}
	defer l.Close(time.Second)

	if err := l.Request(7, "capital.glb"); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	wg.Wait()

	// The result is queued, not applied, until the owner drains.
	results := waitForResults(t, l, 1)
	if results[0].ActorID != 7 {
		t.Errorf("Expected actor 7, got %d", results[0].ActorID)
	}
}

func TestAssetLoader_Saturated(t *testing.T) {
	release := make(chan struct{})
	load := func(ctx context.Context, name string) (Asset, error) {
		<-release
		return Asset{Name: name}, nil
	}
	l, err := NewAssetLoader(1, load, nil)
	if err != nil {
		t.Fatalf("NewAssetLoader failed: %v", err)
	}
	defer l.Close(time.Second)

	if err := l.Request(1, "a.glb"); err != nil {
		t.Fatalf("First request failed: %v", err)
	}
	if err := l.Request(2, "b.glb"); err == nil {
		t.Error("Expected a non-blocking error from a saturated pool")
	}
	if l.Pending() != 1 {
		t.Errorf("Expected 1 pending load, got %d", l.Pending())
	}
	close(release)
	waitForResults(t, l, 1)
}

func TestAssetLoader_Close(t *testing.T) {
	load := func(ctx context.Context, name string) (Asset, error) { return Asset{Name: name}, nil }
	l, err := NewAssetLoader(1, load, nil)
	if err != nil {
		t.Fatalf("NewAssetLoader failed: %v", err)
	}

	if err := l.Close(time.Second); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !l.Closed() {
		t.Error("Expected loader to report closed")
	}
	if err := l.Request(1, "a.glb"); !errors.Is(err, ErrLoaderClosed) {
		t.Errorf("Expected ErrLoaderClosed, got %v", err)
	}
	if err := l.Close(time.Second); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fighter.glb"), []byte("glTF"), 0o644); err != nil {
		t.Fatalf("Failed to write asset: %v", err)
	}
	load := FileLoader(dir)

	tests := []struct {
		name    string
		asset   string
		wantErr bool
	}{
		{"existing file", "fighter.glb", false},
		{"missing file", "capital.glb", true},
		{"escape attempt", "../secrets.glb", true},
		{"absolute path", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, err := load(context.Background(), tt.asset)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q", tt.asset)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if asset.Size != 4 {
				t.Errorf("Expected size 4, got %d", asset.Size)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := load(ctx, "fighter.glb"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
