// Package observe provides application-wide observability primitives for
// aria: OpenTelemetry metrics and the Prometheus exporter bridge feeding the
// /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all aria metrics.
const meterName = "github.com/hyeonsong/aria"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// EnqueueDuration tracks the full enqueue workflow latency (lock
	// acquisition through history persist). Use with attribute:
	//   attribute.String("load_type", ...)
	EnqueueDuration metric.Float64Histogram

	// ResolveDuration tracks audio-node query resolution latency.
	ResolveDuration metric.Float64Histogram

	// --- Counters ---

	// TracksQueued counts tracks appended to guild queues. Use with
	// attribute: attribute.String("load_type", ...)
	TracksQueued metric.Int64Counter

	// Rejections counts enqueue workflows aborted before any state change.
	// Use with attribute: attribute.String("reason", ...)
	Rejections metric.Int64Counter

	// Cancellations counts successful undo-enqueue retractions.
	Cancellations metric.Int64Counter

	// NodeEvents counts audio-node events by type.
	NodeEvents metric.Int64Counter

	// --- Gauges ---

	// ActivePlayers tracks the number of live per-guild players.
	ActivePlayers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// node round-trips and the enqueue workflow.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EnqueueDuration, err = m.Float64Histogram("aria.enqueue.duration",
		metric.WithDescription("Latency of the full enqueue workflow."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResolveDuration, err = m.Float64Histogram("aria.resolve.duration",
		metric.WithDescription("Latency of audio-node query resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.TracksQueued, err = m.Int64Counter("aria.tracks.queued",
		metric.WithDescription("Total tracks appended to guild queues by load type."),
	); err != nil {
		return nil, err
	}
	if met.Rejections, err = m.Int64Counter("aria.enqueue.rejections",
		metric.WithDescription("Total enqueue workflows aborted before any state change, by reason."),
	); err != nil {
		return nil, err
	}
	if met.Cancellations, err = m.Int64Counter("aria.queue.cancellations",
		metric.WithDescription("Total successful undo-enqueue retractions."),
	); err != nil {
		return nil, err
	}
	if met.NodeEvents, err = m.Int64Counter("aria.node.events",
		metric.WithDescription("Total audio-node events by type."),
	); err != nil {
		return nil, err
	}

	if met.ActivePlayers, err = m.Int64UpDownCounter("aria.active_players",
		metric.WithDescription("Number of live per-guild players."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordEnqueue records one completed enqueue workflow.
func (m *Metrics) RecordEnqueue(ctx context.Context, loadType string, seconds float64, tracks int) {
	attrs := metric.WithAttributes(attribute.String("load_type", loadType))
	m.EnqueueDuration.Record(ctx, seconds, attrs)
	m.TracksQueued.Add(ctx, int64(tracks), attrs)
}

// RecordResolve records one node resolution round-trip.
func (m *Metrics) RecordResolve(ctx context.Context, seconds float64) {
	m.ResolveDuration.Record(ctx, seconds)
}

// RecordRejection records an enqueue aborted before any state change.
func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	m.Rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCancellation records a successful undo-enqueue retraction.
func (m *Metrics) RecordCancellation(ctx context.Context, guildID string, tracks int) {
	m.Cancellations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guild_id", guildID),
		attribute.Int("tracks", tracks),
	))
}

// RecordNodeEvent counts one audio-node event.
func (m *Metrics) RecordNodeEvent(ctx context.Context, event string) {
	m.NodeEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// AddActivePlayers adjusts the live-player gauge.
func (m *Metrics) AddActivePlayers(ctx context.Context, delta int64) {
	m.ActivePlayers.Add(ctx, delta)
}
