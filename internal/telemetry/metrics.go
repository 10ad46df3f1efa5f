// Package telemetry provides OpenTelemetry instruments for the capture
// pipeline and a Prometheus scrape endpoint for them.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjeanneret/pansweep/internal/logic/jobs"
)

// MeterName is the instrumentation scope of every pansweep instrument.
const MeterName = "github.com/cjeanneret/pansweep"

// Sweep outcomes recorded by RecordSweep.
const (
	OutcomeSaved     = "saved"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
)

// Metrics holds the pipeline instruments. A nil *Metrics records nothing,
// so callers never need to check whether metrics are enabled.
type Metrics struct {
	framesRendered metric.Int64Counter
	framesDropped  metric.Int64Counter
	sweeps         metric.Int64Counter
	jobDuration    metric.Float64Histogram
}

// NewMetrics creates the instruments on provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MeterName)

	framesRendered, err := meter.Int64Counter(
		"pansweep_frames_rendered",
		metric.WithDescription("Frames drawn by the render coordinator"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	framesDropped, err := meter.Int64Counter(
		"pansweep_frames_dropped",
		metric.WithDescription("Frames discarded before rendering"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return nil, err
	}

	sweeps, err := meter.Int64Counter(
		"pansweep_sweeps",
		metric.WithDescription("Finished sweeps by outcome"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, err
	}

	jobDuration, err := meter.Float64Histogram(
		"pansweep_job_duration_seconds",
		metric.WithDescription("Duration of background finalize jobs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		framesRendered: framesRendered,
		framesDropped:  framesDropped,
		sweeps:         sweeps,
		jobDuration:    jobDuration,
	}, nil
}

// FrameRendered counts a drawn frame, split by capture state.
func (m *Metrics) FrameRendered(capturing bool) {
	if m == nil || m.framesRendered == nil {
		return
	}
	m.framesRendered.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("capturing", capturing)))
}

// FrameDropped counts a discarded frame with the reason it was dropped.
func (m *Metrics) FrameDropped(reason string) {
	if m == nil || m.framesDropped == nil {
		return
	}
	m.framesDropped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// JobFinished records how long a background job lived. Its signature
// matches jobs.FinishFunc.
func (m *Metrics) JobFinished(name string, final jobs.State, elapsed time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("job", name),
		attribute.String("state", final.String()),
	}
	m.jobDuration.Record(context.Background(), elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSweep counts a finished sweep.
func (m *Metrics) RecordSweep(ctx context.Context, outcome string) {
	if m == nil || m.sweeps == nil {
		return
	}
	m.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
