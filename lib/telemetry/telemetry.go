package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

// Shutdown flushes and stops whichever providers were set up.
func (t Telemetry) Shutdown(ctx context.Context) error {
	var errlist []error
	if t.TracerProvider != nil {
		errlist = append(errlist, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errlist = append(errlist, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errlist...)
}

// Setup installs the global otel providers for every signal that has an
// exporter url. The returned Telemetry must be shut down to flush them.
func Setup(ctx context.Context, service Service, config Config, tel API) (Telemetry, error) {
	var out Telemetry
	if !config.Traces.enabled() && !config.Metrics.enabled() {
		tel.ReportDebug(report_otel_exporter, "disabled")
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	r, err := newResource(service)
	if err != nil {
		return out, err
	}

	if config.Traces.enabled() {
		out.TracerProvider, err = newTraceProvider(ctx, r, config, tel)
		if err != nil {
			return out, err
		}
		otel.SetTracerProvider(out.TracerProvider)
	}
	if config.Metrics.enabled() {
		out.MeterProvider, err = newMetricProvider(ctx, r, config, tel)
		if err != nil {
			return Telemetry{}, errors.Join(err, out.Shutdown(ctx))
		}
		otel.SetMeterProvider(out.MeterProvider)
	}
	return out, nil
}
