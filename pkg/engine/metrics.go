// pkg/engine/metrics.go
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/go-flight/engine"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// simulationMetrics are recorded once per tick after the tick has finished.
type simulationMetrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	actors       metric.Int64ObservableGauge
	swaps        metric.Int64Counter
}

func newSimulationMetrics(actorCount func() int64) (*simulationMetrics, error) {
	// Global provider; a no-op unless the host installs an SDK.
	m := meter()
	sm := &simulationMetrics{}

	var err error
	sm.ticks, err = m.Int64Counter(
		"flight.ticks",
		metric.WithDescription("Total simulation ticks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	sm.tickDuration, err = m.Float64Histogram(
		"flight.tick.duration",
		metric.WithDescription("Wall time spent in one simulation tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	sm.actors, err = m.Int64ObservableGauge(
		"flight.actors",
		metric.WithDescription("Actors currently in the simulation"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating actor gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(sm.actors, actorCount())
			return nil
		},
		sm.actors,
	)
	if err != nil {
		return nil, fmt.Errorf("registering actor callback: %w", err)
	}

	sm.swaps, err = m.Int64Counter(
		"flight.renderable.swaps",
		metric.WithDescription("Renderable swaps applied, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating swap counter: %w", err)
	}

	return sm, nil
}

func (sm *simulationMetrics) recordTick(ctx context.Context, durationMs float64, mode string) {
	attrs := metric.WithAttributes(attribute.String("camera_mode", mode))
	sm.ticks.Add(ctx, 1, attrs)
	sm.tickDuration.Record(ctx, durationMs, attrs)
}

func (sm *simulationMetrics) recordSwap(ctx context.Context, ok bool) {
	outcome := "applied"
	if !ok {
		outcome = "failed"
	}
	sm.swaps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
