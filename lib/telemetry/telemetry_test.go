package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	tel := NewScopedAPI("lms_core", rec)

	tel.ReportBroken("client.check-session", "missing .logininfo")
	tel.ReportWarning("user.courses", "bad link")
	tel.ReportDebug("fetching profile", 12)
	tel.ReportCount("user.courses", 3)

	reports := rec.Reports()
	require.Len(t, reports, 4)
	require.Equal(t, "lms_core: client.check-session", reports[0].Id)
	require.Equal(t, SEVERITY_BROKEN, reports[0].Severity)
	require.Equal(t, []any{"missing .logininfo"}, reports[0].Params)

	require.Len(t, rec.Find(SEVERITY_WARNING, "user.courses"), 1)
	require.Len(t, rec.Find(SEVERITY_COUNT, "user.courses"), 1)
	require.Empty(t, rec.Find(SEVERITY_BROKEN, "user.courses"))
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer server.Close()

	rec := NewRecorder()
	client := resty.New()
	InstrumentResty(client, rec, "test")

	res, err := client.R().SetContext(context.Background()).Get(server.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, res.StatusCode())

	require.Len(t, rec.Find(SEVERITY_DEBUG, report_resty_request), 1)
	require.Len(t, rec.Find(SEVERITY_DEBUG, report_resty_response), 1)

	server.Close()
	_, err = client.R().Get(server.URL)
	require.Error(t, err)
	require.Len(t, rec.Find(SEVERITY_BROKEN, report_resty_response), 1)
}

func TestSetupWithoutEndpoints(t *testing.T) {
	rec := NewRecorder()
	tel, err := Setup(context.Background(), Service{Name: "test"}, Config{}, rec)
	require.NoError(t, err)
	require.Nil(t, tel.TracerProvider)
	require.Nil(t, tel.MeterProvider)
	require.NoError(t, tel.Shutdown(context.Background()))
	require.Len(t, rec.Find(SEVERITY_DEBUG, report_otel_exporter), 1)
}

func TestSetupHttpExporters(t *testing.T) {
	var requests atomic.Int64
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	rec := NewRecorder()
	tel, err := Setup(context.Background(), Service{Name: "lms-cli", Version: "1.2.0"}, Config{
		Traces:  Exporter{Url: collector.URL + "/v1/traces"},
		Metrics: Exporter{Protocol: "http", Url: collector.URL + "/v1/metrics"},
	}, rec)
	require.NoError(t, err)
	require.NotNil(t, tel.TracerProvider)
	require.NotNil(t, tel.MeterProvider)

	reports := rec.Find(SEVERITY_DEBUG, report_otel_exporter)
	require.Len(t, reports, 2)
	require.Equal(t, []any{"traces", "http", collector.URL + "/v1/traces"}, reports[0].Params)
	require.Equal(t, "metrics", reports[1].Params[0])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, span := tel.TracerProvider.Tracer("test").Start(ctx, "fetch profile")
	span.End()
	require.NoError(t, tel.Shutdown(ctx))
	require.Positive(t, requests.Load())
}

func TestSetupRejectsBadConfig(t *testing.T) {
	_, err := Setup(context.Background(), Service{Name: "test"}, Config{
		Traces: Exporter{Protocol: "thrift", Url: "http://localhost:4318"},
	}, NewRecorder())
	require.ErrorContains(t, err, "thrift")

	_, err = Setup(context.Background(), Service{Name: "test"}, Config{
		Traces:      Exporter{Url: "http://localhost:4318"},
		SampleRatio: 2,
	}, NewRecorder())
	require.Error(t, err)

	sampler, err := newSampler(0.5)
	require.NoError(t, err)
	require.Contains(t, sampler.Description(), "TraceIDRatioBased")
}

func TestNewResource(t *testing.T) {
	r, err := newResource(Service{Name: "lms-cli", Version: "1.2.0"})
	require.NoError(t, err)
	name, ok := r.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "lms-cli", name.AsString())
	version, ok := r.Set().Value(semconv.ServiceVersionKey)
	require.True(t, ok)
	require.Equal(t, "1.2.0", version.AsString())

	r, err = newResource(Service{Name: "lms-cli"})
	require.NoError(t, err)
	_, ok = r.Set().Value(semconv.ServiceVersionKey)
	require.False(t, ok)
}
