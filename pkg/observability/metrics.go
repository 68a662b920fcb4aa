// Package observability exposes Prometheus metrics through the OpenTelemetry
// metrics SDK. All recording methods are nil-safe so instrumented code never
// has to check whether metrics are enabled.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Metrics records the engine's operational signals.
type Metrics struct {
	queryDuration metric.Float64Histogram
	queriesTotal  metric.Int64Counter
	queryErrors   metric.Int64Counter

	goldenHits metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmFallbacks    metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolErrors   metric.Int64Counter

	ingestDocuments metric.Int64Counter
	ingestChunks    metric.Int64Counter
}

// InitMetrics wires the Prometheus exporter and creates the instruments.
// With Enabled false it returns a recorder whose methods are all no-ops.
func InitMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)).Meter("oracle")

	m := &Metrics{}
	if m.queryDuration, err = meter.Float64Histogram(
		"oracle_query_duration_seconds",
		metric.WithDescription("End-to-end query latency in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}
	if m.queriesTotal, err = meter.Int64Counter(
		"oracle_queries_total",
		metric.WithDescription("Total queries processed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create queries counter: %w", err)
	}
	if m.queryErrors, err = meter.Int64Counter(
		"oracle_query_errors_total",
		metric.WithDescription("Total query failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create query errors counter: %w", err)
	}
	if m.goldenHits, err = meter.Int64Counter(
		"oracle_golden_hits_total",
		metric.WithDescription("Golden cache hits by match type"),
	); err != nil {
		return nil, fmt.Errorf("failed to create golden hits counter: %w", err)
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"oracle_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"oracle_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLMs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"oracle_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from LLMs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}
	if m.llmFallbacks, err = meter.Int64Counter(
		"oracle_llm_fallbacks_total",
		metric.WithDescription("Times the fallback ladder advanced past the primary tier"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm fallbacks counter: %w", err)
	}
	if m.toolDuration, err = meter.Float64Histogram(
		"oracle_tool_execution_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}
	if m.toolErrors, err = meter.Int64Counter(
		"oracle_tool_errors_total",
		metric.WithDescription("Total tool execution failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}
	if m.ingestDocuments, err = meter.Int64Counter(
		"oracle_ingest_documents_total",
		metric.WithDescription("Documents ingested"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ingest documents counter: %w", err)
	}
	if m.ingestChunks, err = meter.Int64Counter(
		"oracle_ingest_chunks_total",
		metric.WithDescription("Chunks embedded and upserted"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ingest chunks counter: %w", err)
	}

	return m, nil
}

// RecordQuery records one end-to-end query.
func (m *Metrics) RecordQuery(ctx context.Context, category string, duration time.Duration, err error) {
	if m == nil || m.queryDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("category", category))
	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
	m.queriesTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.queryErrors.Add(ctx, 1, attrs)
	}
}

// RecordGoldenHit records a cache hit ("exact" or "semantic").
func (m *Metrics) RecordGoldenHit(ctx context.Context, matchType string) {
	if m == nil || m.goldenHits == nil {
		return
	}
	m.goldenHits.Add(ctx, 1, metric.WithAttributes(attribute.String("match_type", matchType)))
}

// RecordLLMCall records one provider round trip.
func (m *Metrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	if inputTokens > 0 {
		m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
}

// RecordLLMFallback records a permanent tier advance.
func (m *Metrics) RecordLLMFallback(ctx context.Context, model string) {
	if m == nil || m.llmFallbacks == nil {
		return
	}
	m.llmFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordToolExecution records one tool run.
func (m *Metrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

// RecordIngest records a finished document ingest.
func (m *Metrics) RecordIngest(ctx context.Context, collection string, chunks int) {
	if m == nil || m.ingestDocuments == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("collection", collection))
	m.ingestDocuments.Add(ctx, 1, attrs)
	m.ingestChunks.Add(ctx, int64(chunks), attrs)
}
