package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const report_otel_exporter = "otel.exporter"

const (
	protocolGrpc = "grpc"
	protocolHttp = "http"
)

// Exporter is an OTLP collector one signal is shipped to.
type Exporter struct {
	// Protocol is "grpc" or "http", defaults to "http".
	Protocol string            `json:"protocol"`
	Url      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
}

func (e Exporter) enabled() bool {
	return e.Url != ""
}

func (e Exporter) protocol() (string, error) {
	switch e.Protocol {
	case "", protocolHttp:
		return protocolHttp, nil
	case protocolGrpc:
		return protocolGrpc, nil
	}
	return "", fmt.Errorf("unknown otlp protocol '%s'", e.Protocol)
}

// Config is the `telemetry` block of the cli config. A signal without a url
// stays on the global no-op provider.
type Config struct {
	Traces  Exporter `json:"traces"`
	Metrics Exporter `json:"metrics"`
	// SampleRatio is the fraction of traces kept, 0 keeps every trace.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricInterval is the export period in seconds, defaults to 30.
	MetricInterval int `json:"metric_interval"`
}

// Service identifies the process in exported resources.
type Service struct {
	Name    string
	Version string
}

func newResource(service Service) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(service.Name)}
	if service.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(service.Version))
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

func newSampler(ratio float64) (trace.Sampler, error) {
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("sample_ratio %v is outside [0, 1]", ratio)
	}
	if ratio == 0 || ratio == 1 {
		return trace.ParentBased(trace.AlwaysSample()), nil
	}
	return trace.ParentBased(trace.TraceIDRatioBased(ratio)), nil
}

func newTraceProvider(ctx context.Context, r *resource.Resource, config Config, tel API) (*trace.TracerProvider, error) {
	sampler, err := newSampler(config.SampleRatio)
	if err != nil {
		return nil, err
	}
	protocol, err := config.Traces.protocol()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exporter trace.SpanExporter
	switch protocol {
	case protocolGrpc:
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(config.Traces.Url),
			otlptracegrpc.WithHeaders(config.Traces.Headers),
		)
	default:
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(config.Traces.Url),
			otlptracehttp.WithHeaders(config.Traces.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tel.ReportDebug(report_otel_exporter, "traces", protocol, config.Traces.Url)

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
		trace.WithSampler(sampler),
	), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, config Config, tel API) (*metric.MeterProvider, error) {
	protocol, err := config.Metrics.protocol()
	if err != nil {
		return nil, err
	}
	interval := 30 * time.Second
	if config.MetricInterval > 0 {
		interval = time.Duration(config.MetricInterval) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var exporter metric.Exporter
	switch protocol {
	case protocolGrpc:
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(config.Metrics.Url),
			otlpmetricgrpc.WithHeaders(config.Metrics.Headers),
		)
	default:
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(config.Metrics.Url),
			otlpmetrichttp.WithHeaders(config.Metrics.Headers),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	tel.ReportDebug(report_otel_exporter, "metrics", protocol, config.Metrics.Url, interval)

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
		metric.WithResource(r),
	), nil
}
