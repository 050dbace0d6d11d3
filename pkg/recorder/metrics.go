// pkg/recorder/metrics.go
package recorder

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/opd-ai/go-flight/recorder"

type recorderMetrics struct {
	dropped metric.Int64Counter
	written metric.Int64Counter
}

func newRecorderMetrics() (*recorderMetrics, error) {
	m := otel.Meter(instrumentationName)
	rm := &recorderMetrics{}

	var err error
	rm.dropped, err = m.Int64Counter(
		"flight.recorder.dropped",
		metric.WithDescription("Samples dropped because the recorder queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	rm.written, err = m.Int64Counter(
		"flight.recorder.written",
		metric.WithDescription("Samples written to the recorder database"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating written counter: %w", err)
	}

	return rm, nil
}

func (rm *recorderMetrics) recordDropped(ctx context.Context) {
	rm.dropped.Add(ctx, 1)
}

func (rm *recorderMetrics) recordWritten(ctx context.Context, n int) {
	rm.written.Add(ctx, int64(n))
}
