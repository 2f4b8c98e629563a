package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// InitMetrics builds the OTel meter provider with a Prometheus reader and
// creates the engine instruments. When disabled it returns an inert recorder.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*OTelMetrics, error) {
	if !cfg.Enabled {
		return &OTelMetrics{}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	meter := meterProvider.Meter(DefaultServiceName)

	m := &OTelMetrics{}

	if m.runDuration, err = meter.Float64Histogram(
		"quill_agent_run_duration_seconds",
		metric.WithDescription("Agent run duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}

	if m.runsTotal, err = meter.Int64Counter(
		"quill_agent_runs_total",
		metric.WithDescription("Total agent runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	if m.runErrors, err = meter.Int64Counter(
		"quill_agent_run_errors_total",
		metric.WithDescription("Total failed agent runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create run errors counter: %w", err)
	}

	if m.runTurns, err = meter.Int64Counter(
		"quill_agent_turns_total",
		metric.WithDescription("Total turns executed across runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}

	if m.llmDuration, err = meter.Float64Histogram(
		"quill_llm_request_duration_seconds",
		metric.WithDescription("Model request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if m.llmInTokens, err = meter.Int64Counter(
		"quill_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the model"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	if m.llmOutTokens, err = meter.Int64Counter(
		"quill_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the model"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	if m.llmErrors, err = meter.Int64Counter(
		"quill_llm_errors_total",
		metric.WithDescription("Total model call errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"quill_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if m.toolCalls, err = meter.Int64Counter(
		"quill_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if m.toolErrors, err = meter.Int64Counter(
		"quill_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if m.dedupeHits, err = meter.Int64Counter(
		"quill_dedupe_hits_total",
		metric.WithDescription("Total dedupe cache hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dedupe hits counter: %w", err)
	}

	if m.dedupeMisses, err = meter.Int64Counter(
		"quill_dedupe_misses_total",
		metric.WithDescription("Total dedupe cache misses"),
	); err != nil {
		return nil, fmt.Errorf("failed to create dedupe misses counter: %w", err)
	}

	if m.loopsTotal, err = meter.Int64Counter(
		"quill_loop_detections_total",
		metric.WithDescription("Total loop detector terminations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create loop detections counter: %w", err)
	}

	return m, nil
}
