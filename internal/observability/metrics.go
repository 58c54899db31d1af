package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the counters/histograms the turn pipeline and the
// reflection pass emit. Built lazily off the global meter provider so it
// works whether or not InitOTel was ever called (no-op instruments are
// returned by the SDK when no provider is registered).
type PipelineMetrics struct {
	ExtractionDropped metric.Int64Counter
	TurnDuration      metric.Float64Histogram
	ReflectionQuality metric.Float64Histogram
	ConfidenceDelta   metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *PipelineMetrics
)

// Metrics returns the process-wide PipelineMetrics singleton, building it on
// first use against whatever meter provider is registered at that time.
func Metrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("psychoportal")
		extractionDropped, _ := meter.Int64Counter("psychoportal.extraction.dropped",
			metric.WithDescription("background extraction tasks dropped due to backpressure"))
		turnDuration, _ := meter.Float64Histogram("psychoportal.turn.duration_ms",
			metric.WithDescription("duration of a turn's context-preparation phase (retrieval through prompt assembly), excluding the LLM call and memory writes"))
		reflectionQuality, _ := meter.Float64Histogram("psychoportal.reflection.quality_score",
			metric.WithDescription("session quality score emitted by the reflection engine"))
		confidenceDelta, _ := meter.Float64Histogram("psychoportal.graph.confidence_delta",
			metric.WithDescription("per-update confidence delta applied to graph nodes"))
		metricsInst = &PipelineMetrics{
			ExtractionDropped: extractionDropped,
			TurnDuration:      turnDuration,
			ReflectionQuality: reflectionQuality,
			ConfidenceDelta:   confidenceDelta,
		}
	})
	return metricsInst
}

// RecordConfidenceDelta is a small convenience wrapper used throughout the
// graph/evolve packages so call sites don't need to thread a context that
// carries nothing meaningful for a metric recording. When an analytics
// sink is registered (SetAnalyticsSink), the delta is also persisted there
// so it survives past the OTLP exporter's retention window.
func RecordConfidenceDelta(nodeID string, delta float64, reason string) {
	Metrics().ConfidenceDelta.Record(context.Background(), delta, metric.WithAttributes(
		attribute.String("reason", reason),
	))
	if sink := analyticsSink(); sink != nil {
		sink.RecordConfidenceDelta(context.Background(), nodeID, reason, delta)
	}
}

var analytics struct {
	mu   sync.RWMutex
	sink *ClickHouseSink
}

// SetAnalyticsSink registers the optional durable analytics backend
// (ClickHouse) that RecordConfidenceDelta and the reflection engine write
// through in addition to the OTel metrics path. Passing nil disables it.
func SetAnalyticsSink(sink *ClickHouseSink) {
	analytics.mu.Lock()
	analytics.sink = sink
	analytics.mu.Unlock()
}

func analyticsSink() *ClickHouseSink {
	analytics.mu.RLock()
	defer analytics.mu.RUnlock()
	return analytics.sink
}

// RecordReflection is the durable counterpart to the transient
// ReflectionQuality histogram the loop records after a reflection pass; it
// is called by the reflection engine and is a no-op when no
// analytics sink is registered.
func RecordReflection(sessionID string, quality float64, messageCount int) {
	if sink := analyticsSink(); sink != nil {
		sink.RecordReflection(context.Background(), sessionID, quality, messageCount)
	}
}
