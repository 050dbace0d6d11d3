// Package recorder persists sampled flight telemetry to SQLite.
//
// Recording never blocks the simulation: samples go through a bounded queue
// and a background writer inserts them in batches. A full queue drops the
// sample and counts it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/opd-ai/go-flight/pkg/config"
	"github.com/opd-ai/go-flight/pkg/entity"
	"github.com/opd-ai/go-flight/pkg/logging"
	"github.com/opd-ai/go-flight/pkg/physics"
	"github.com/opd-ai/go-flight/pkg/resource"
)

// ErrClosed is returned by operations on a closed recorder.
var ErrClosed = errors.New("recorder closed")

// Sample is one stored telemetry row.
type Sample struct {
	ID         uint   `gorm:"primarykey"`
	SessionID  string `gorm:"size:36;index:idx_session_actor"`
	ActorID    uint64 `gorm:"index:idx_session_actor"`
	Tick       uint64 `gorm:"index"`
	PositionX  float64
	PositionY  float64
	PositionZ  float64
	VelocityX  float64
	VelocityY  float64
	VelocityZ  float64
	OrientW    float64
	OrientX    float64
	OrientY    float64
	OrientZ    float64
	Speed      float64
	Throttle   float64
	PitchDeg   float64
	RollDeg    float64
	YawDeg     float64
	RecordedAt time.Time
}

// TableName keeps the table name stable across struct renames.
func (Sample) TableName() string {
	return "flight_samples"
}

// NewSample flattens one actor's telemetry and flight state.
func NewSample(tick uint64, t entity.Telemetry, s physics.FlightState) Sample {
	return Sample{
		ActorID:   t.ActorID,
		Tick:      tick,
		PositionX: s.Position.X(),
		PositionY: s.Position.Y(),
		PositionZ: s.Position.Z(),
		VelocityX: s.Velocity.X(),
		VelocityY: s.Velocity.Y(),
		VelocityZ: s.Velocity.Z(),
		OrientW:   s.Orientation.W,
		OrientX:   s.Orientation.V.X(),
		OrientY:   s.Orientation.V.Y(),
		OrientZ:   s.Orientation.V.Z(),
		Speed:     t.Speed,
		Throttle:  t.ThrottlePercent,
		PitchDeg:  t.PitchDeg,
		RollDeg:   t.RollDeg,
		YawDeg:    t.YawDeg,
	}
}

// Stats reports recorder throughput.
type Stats struct {
	Queued  int
	Written uint64
	Dropped uint64
}

// Recorder batches samples into a gorm database.
type Recorder struct {
	db        *gorm.DB
	logger    *logging.Logger
	metrics   *recorderMetrics
	sessionID string
	now       func() time.Time

	queue       chan Sample
	batchSize   int
	flushEvery  time.Duration
	sampleEvery uint64

	written atomic.Uint64
	dropped atomic.Uint64

	mu        sync.Mutex
	started   bool
	closed    bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Open connects to the SQLite database named by cfg.DSN and migrates the schema.
func Open(cfg config.RecorderConfig, logger *logging.Logger) (*Recorder, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder database: %w", err)
	}

	// SQLite takes one writer; a single connection also keeps :memory: databases alive.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return New(db, cfg, logger)
}

// New creates a recorder over an existing database handle.
func New(db *gorm.DB, cfg config.RecorderConfig, logger *logging.Logger) (*Recorder, error) {
	if cfg.QueueSize < 1 || cfg.BatchSize < 1 {
		return nil, fmt.Errorf("queue size %d and batch size %d must be positive", cfg.QueueSize, cfg.BatchSize)
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	if err := db.AutoMigrate(&Sample{}); err != nil {
		return nil, fmt.Errorf("failed to migrate recorder schema: %w", err)
	}
	metrics, err := newRecorderMetrics()
	if err != nil {
		return nil, err
	}

	flushEvery := time.Duration(cfg.FlushIntervalMs) * time.Millisecond
	if flushEvery <= 0 {
		flushEvery = 500 * time.Millisecond
	}
	sampleEvery := uint64(1)
	if cfg.SampleEvery > 1 {
		sampleEvery = uint64(cfg.SampleEvery)
	}

	return &Recorder{
		db:          db,
		logger:      logger.Component("recorder"),
		metrics:     metrics,
		sessionID:   uuid.NewString(),
		now:         time.Now,
		queue:       make(chan Sample, cfg.QueueSize),
		batchSize:   cfg.BatchSize,
		flushEvery:  flushEvery,
		sampleEvery: sampleEvery,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}, nil
}

// SessionID identifies this recording run in the samples table.
func (r *Recorder) SessionID() string { return r.sessionID }

// Start runs the batch writer as a tracked task of rm.
func (r *Recorder) Start(rm *resource.ResourceManager) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.started {
		return fmt.Errorf("recorder already started")
	}
	if err := rm.StartGoroutine(rm.Context(), "recorder", r.writeLoop); err != nil {
		return err
	}
	r.started = true
	r.logger.Info(context.Background(), "flight recorder started",
		"session_id", r.sessionID, "sample_every", r.sampleEvery, "batch_size", r.batchSize)
	return nil
}

// RecordFrame samples one actor's state every sampleEvery ticks.
func (r *Recorder) RecordFrame(tick uint64, telemetry entity.Telemetry, state physics.FlightState) {
	if tick%r.sampleEvery != 0 {
		return
	}
	r.Record(NewSample(tick, telemetry, state))
}

// Record enqueues a sample without blocking. It reports false when the
// sample was dropped.
func (r *Recorder) Record(sample Sample) bool {
	sample.SessionID = r.sessionID
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = r.now()
	}

	// Close marks the recorder under mu before the writer drains, so an
	// accepted sample is always queued ahead of the final drain.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	select {
	case r.queue <- sample:
		return true
	default:
		r.dropped.Add(1)
		r.metrics.recordDropped(context.Background())
		return false
	}
}

// Stats returns queue depth and totals since the recorder was created.
func (r *Recorder) Stats() Stats {
	return Stats{
		Queued:  len(r.queue),
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
	}
}

// Samples returns the latest limit samples for actorID in this session, in tick order.
func (r *Recorder) Samples(actorID uint64, limit int) ([]Sample, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	var samples []Sample
	err := r.db.
		Where("session_id = ? AND actor_id = ?", r.sessionID, actorID).
		Order("tick desc").
		Limit(limit).
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query samples for actor %d: %w", actorID, err)
	}

	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// Flush writes everything queued so far. It is used when no writer is running.
func (r *Recorder) Flush(ctx context.Context) error {
	var batch []Sample
	for {
		select {
		case s := <-r.queue:
			batch = append(batch, s)
		default:
			return r.insert(ctx, batch)
		}
	}
}

// Close stops the writer after it drains the queue. It returns ctx.Err() if
// the drain outlives ctx.
func (r *Recorder) Close(ctx context.Context) error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		started := r.started
		r.mu.Unlock()

		close(r.stop)
		if !started {
			err = r.Flush(ctx)
			return
		}

		select {
		case <-r.done:
		case <-ctx.Done():
			err = fmt.Errorf("recorder drain interrupted: %w", ctx.Err())
		}
	})
	return err
}

// writeLoop batches queued samples until Close or resource shutdown.
func (r *Recorder) writeLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	batch := make([]Sample, 0, r.batchSize)
	flush := func() {
		if err := r.insert(ctx, batch); err != nil {
			r.logger.Error(ctx, "failed to write samples", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case s := <-r.queue:
			batch = append(batch, s)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.stop:
			r.drain(&batch)
			flush()
			return
		case <-ctx.Done():
			r.mu.Lock()
			r.closed = true
			r.mu.Unlock()
			r.drain(&batch)
			flush()
			return
		}
	}
}

func (r *Recorder) drain(batch *[]Sample) {
	for {
		select {
		case s := <-r.queue:
			*batch = append(*batch, s)
		default:
			return
		}
	}
}

func (r *Recorder) insert(ctx context.Context, batch []Sample) error {
	if len(batch) == 0 {
		return nil
	}
	// Writes must finish even when the task context is cancelled at shutdown.
	err := r.db.WithContext(context.WithoutCancel(ctx)).CreateInBatches(batch, r.batchSize).Error
	if err != nil {
		return err
	}
	r.written.Add(uint64(len(batch)))
	r.metrics.recordWritten(ctx, len(batch))
	return nil
}
