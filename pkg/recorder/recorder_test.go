// pkg/recorder/recorder_test.go
package recorder

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/engine"
	"github.com/opd-ai/go-flight/pkg/entity"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/resource"
)

func testConfig() config.RecorderConfig {
	return config.RecorderConfig{
		Enabled:         true,
		DSN:             ":memory:",
		QueueSize:       64,
		BatchSize:       8,
		FlushIntervalMs: 10,
		SampleEvery:     1,
	}
}

func openTestRecorder(t *testing.T, cfg config.RecorderConfig) *Recorder {
	t.Helper()
	rec, err := Open(cfg, logging.NewLoggerWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return rec
}

func newTestManager(t *testing.T) *resource.ResourceManager {
	t.Helper()
	rm := resource.NewResourceManager(&config.EnvironmentConfig{
		MaxMemoryMB:           1000,
		MaxGoroutines:         100,
		ShutdownTimeout:       2 * time.Second,
		ResourceCheckInterval: time.Minute,
	}, logging.NewLoggerWithWriter(io.Discard))
	t.Cleanup(func() { rm.Shutdown(context.Background()) })
	return rm
}

func frame(actorID uint64, x float64) (entity.Telemetry, physics.FlightState) {
	return entity.Telemetry{ActorID: actorID, Speed: x, ThrottlePercent: 50},
		physics.FlightState{
			Position:    mgl64.Vec3{x, 2, 3},
			Velocity:    mgl64.Vec3{0, 0, x},
			Orientation: mgl64.QuatIdent(),
		}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRejectsBadSizes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RecorderConfig)
	}{
		{"ZeroQueue", func(c *config.RecorderConfig) { c.QueueSize = 0 }},
		{"ZeroBatch", func(c *config.RecorderConfig) { c.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := Open(cfg, logging.NewLoggerWithWriter(io.Discard)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNewSampleFlattensState(t *testing.T) {
	telemetry, state := frame(4, 7)
	s := NewSample(12, telemetry, state)

	if s.ActorID != 4 || s.Tick != 12 {
		t.Errorf("Expected actor 4 tick 12, got actor %d tick %d", s.ActorID, s.Tick)
	}
	if s.PositionX != 7 || s.PositionY != 2 || s.PositionZ != 3 {
		t.Errorf("Expected position (7,2,3), got (%g,%g,%g)", s.PositionX, s.PositionY, s.PositionZ)
	}
	if s.VelocityZ != 7 || s.OrientW != 1 {
		t.Errorf("Expected velocity z 7 and identity orientation, got %g and w=%g", s.VelocityZ, s.OrientW)
	}
	if s.Throttle != 50 {
		t.Errorf("Expected throttle 50, got %g", s.Throttle)
	}
}

func TestRecordFrameSampling(t *testing.T) {
	cfg := testConfig()
	cfg.SampleEvery = 3
	rec := openTestRecorder(t, cfg)

	for tick := uint64(1); tick <= 9; tick++ {
		telemetry, state := frame(1, float64(tick))
		rec.RecordFrame(tick, telemetry, state)
	}
	if q := rec.Stats().Queued; q != 3 {
		t.Errorf("Expected 3 queued samples, got %d", q)
	}

	// Never started, so Close flushes inline.
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	samples, err := rec.Samples(1, 10)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	expected := []uint64{3, 6, 9}
	if len(samples) != len(expected) {
		t.Fatalf("Expected %d samples, got %d", len(expected), len(samples))
	}
	for i, s := range samples {
		if s.Tick != expected[i] {
			t.Errorf("Expected sample %d at tick %d, got %d", i, expected[i], s.Tick)
		}
		if s.SessionID != rec.SessionID() {
			t.Errorf("Expected session %s, got %s", rec.SessionID(), s.SessionID)
		}
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 2
	rec := openTestRecorder(t, cfg)
	defer rec.Close(context.Background())

	accepted := 0
	for tick := uint64(1); tick <= 5; tick++ {
		telemetry, state := frame(1, 0)
		if rec.Record(NewSample(tick, telemetry, state)) {
			accepted++
		}
	}

	stats := rec.Stats()
	if accepted != 2 || stats.Queued != 2 {
		t.Errorf("Expected 2 accepted and queued, got %d and %d", accepted, stats.Queued)
	}
	if stats.Dropped != 3 {
		t.Errorf("Expected 3 dropped, got %d", stats.Dropped)
	}
}

func TestWriterBatchesAndQueries(t *testing.T) {
	rec := openTestRecorder(t, testConfig())
	if err := rec.Start(newTestManager(t)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rec.Close(context.Background())

	for tick := uint64(1); tick <= 20; tick++ {
		for _, actor := range []uint64{1, 2} {
			telemetry, state := frame(actor, float64(tick))
			rec.RecordFrame(tick, telemetry, state)
		}
	}

	waitFor(t, "samples written", func() bool { return rec.Stats().Written == 40 })

	latest, err := rec.Samples(2, 3)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(latest) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(latest))
	}
	for i, tick := range []uint64{18, 19, 20} {
		if latest[i].Tick != tick || latest[i].ActorID != 2 {
			t.Errorf("Expected actor 2 tick %d, got actor %d tick %d", tick, latest[i].ActorID, latest[i].Tick)
		}
	}

	if _, err := rec.Samples(2, 0); err == nil {
		t.Error("Expected error for a zero limit")
	}
}

func TestCloseDrainsWriter(t *testing.T) {
	cfg := testConfig()
	cfg.FlushIntervalMs = 60000
	cfg.BatchSize = 1000
	rec := openTestRecorder(t, cfg)
	if err := rec.Start(newTestManager(t)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for tick := uint64(1); tick <= 10; tick++ {
		telemetry, state := frame(3, 1)
		rec.RecordFrame(tick, telemetry, state)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if written := rec.Stats().Written; written != 10 {
		t.Errorf("Expected 10 samples written on close, got %d", written)
	}

	telemetry, state := frame(3, 1)
	if rec.Record(NewSample(11, telemetry, state)) {
		t.Error("Expected Record after Close to be refused")
	}
	if err := rec.Start(newTestManager(t)); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := rec.Close(ctx); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestCloseKeepsEveryAcceptedSample(t *testing.T) {
	cfg := testConfig()
	cfg.QueueSize = 4096
	cfg.BatchSize = 64
	rec := openTestRecorder(t, cfg)
	if err := rec.Start(newTestManager(t)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var accepted atomic.Uint64
	var wg sync.WaitGroup
	for actor := uint64(1); actor <= 4; actor++ {
		wg.Add(1)
		go func(actorID uint64) {
			defer wg.Done()
			for tick := uint64(1); tick <= 500; tick++ {
				telemetry, state := frame(actorID, float64(tick))
				if rec.Record(NewSample(tick, telemetry, state)) {
					accepted.Add(1)
				}
			}
		}(actor)
	}

	time.Sleep(time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rec.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	wg.Wait()

	stats := rec.Stats()
	if stats.Written != accepted.Load() {
		t.Errorf("Expected all %d accepted samples written, got %d written (%d dropped)",
			accepted.Load(), stats.Written, stats.Dropped)
	}
	if stats.Queued != 0 {
		t.Errorf("Expected an empty queue after Close, got %d", stats.Queued)
	}
}

func TestSamplesScopedToSession(t *testing.T) {
	first := openTestRecorder(t, testConfig())
	second, err := New(first.db, testConfig(), logging.NewLoggerWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	telemetry, state := frame(1, 1)
	first.RecordFrame(1, telemetry, state)
	second.RecordFrame(2, telemetry, state)
	first.Close(context.Background())
	second.Close(context.Background())

	samples, err := second.Samples(1, 10)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(samples) != 1 || samples[0].Tick != 2 {
		t.Errorf("Expected only this session's tick 2, got %+v", samples)
	}
}

func TestRecorderWithSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	sim, err := engine.NewSimulation(cfg, logging.NewLoggerWithWriter(io.Discard))
	if err != nil {
		t.Fatalf("NewSimulation failed: %v", err)
	}
	if _, err := sim.Populate(cfg.Actors); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	recCfg := testConfig()
	recCfg.SampleEvery = 2
	rec := openTestRecorder(t, recCfg)
	sim.SetRecorder(rec)

	for i := 0; i < 10; i++ {
		sim.Tick(physics.FrameTimeMs)
	}
	if err := rec.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	player, ok := sim.ActorID("Player")
	if !ok {
		t.Fatal("Expected Player actor")
	}
	samples, err := rec.Samples(player, 100)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(samples) != 5 {
		t.Errorf("Expected 5 sampled ticks, got %d", len(samples))
	}
	if total := rec.Stats().Written; total != uint64(5*len(cfg.Actors)) {
		t.Errorf("Expected %d samples across actors, got %d", 5*len(cfg.Actors), total)
	}
}
