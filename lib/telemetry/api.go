package telemetry

import "fmt"

// API is an abstraction over logging/metrics so that tests can assert on what
// a component reported.
type API interface {
	// ReportBroken reports a component that broke in a way that should be addressed,
	// for this project that almost always means the portal's markup changed.
	//
	// `id` names the component that broke as `<struct>.<method>`, all lowercase with
	// dashes between words (ex. `client.check-session`).
	ReportBroken(id string, params ...any)

	// ReportWarning reports something worth investigating that did not fail the call.
	ReportWarning(id string, params ...any)

	// ReportDebug reports debug information that is ignored unless verbose logging is on.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the count of an event at the current time.
	ReportCount(id string, count int64)
}

// ScopedAPI prefixes every report with a namespace, similar to a sub-logger.
type ScopedAPI struct {
	namespace string
	inner     API
}

func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
