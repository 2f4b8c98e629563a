package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics receives engine measurements. A nil global recorder disables
// recording entirely.
type Metrics interface {
	RecordRun(ctx context.Context, duration time.Duration, turns int, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordDedupe(ctx context.Context, hit bool)
	RecordLoopDetected(ctx context.Context, kind string)
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, or nil.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}

// OTelMetrics records engine measurements on OTel instruments.
type OTelMetrics struct {
	runDuration  metric.Float64Histogram
	runsTotal    metric.Int64Counter
	runErrors    metric.Int64Counter
	runTurns     metric.Int64Counter
	llmDuration  metric.Float64Histogram
	llmInTokens  metric.Int64Counter
	llmOutTokens metric.Int64Counter
	llmErrors    metric.Int64Counter
	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter
	dedupeHits   metric.Int64Counter
	dedupeMisses metric.Int64Counter
	loopsTotal   metric.Int64Counter
}

func (m *OTelMetrics) RecordRun(ctx context.Context, duration time.Duration, turns int, err error) {
	if m == nil || m.runsTotal == nil {
		return
	}
	m.runDuration.Record(ctx, duration.Seconds())
	m.runsTotal.Add(ctx, 1)
	m.runTurns.Add(ctx, int64(turns))
	if err != nil {
		m.runErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrErrorType, err.Error())))
	}
}

func (m *OTelMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrLLMModel, model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if inputTokens > 0 {
		m.llmInTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutTokens.Add(ctx, int64(outputTokens), attrs)
	}
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *OTelMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrToolName, tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *OTelMetrics) RecordDedupe(ctx context.Context, hit bool) {
	if m == nil || m.dedupeHits == nil {
		return
	}
	if hit {
		m.dedupeHits.Add(ctx, 1)
	} else {
		m.dedupeMisses.Add(ctx, 1)
	}
}

func (m *OTelMetrics) RecordLoopDetected(ctx context.Context, kind string) {
	if m == nil || m.loopsTotal == nil {
		return
	}
	m.loopsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("loop.kind", kind)))
}
