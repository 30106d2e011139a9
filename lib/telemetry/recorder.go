package telemetry

import (
	"strings"
	"sync"
)

type Severity int

const (
	SEVERITY_DEBUG Severity = iota
	SEVERITY_WARNING
	SEVERITY_BROKEN
	SEVERITY_COUNT
)

type Report struct {
	Severity Severity
	Id       string
	Params   []any
}

// Recorder is an API that keeps every report in memory, meant for tests.
type Recorder struct {
	mutex   sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(report Report) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reports = append(r.reports, report)
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(Report{Severity: SEVERITY_BROKEN, Id: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(Report{Severity: SEVERITY_WARNING, Id: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(Report{Severity: SEVERITY_DEBUG, Id: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(Report{Severity: SEVERITY_COUNT, Id: id, Params: []any{count}})
}

func (r *Recorder) Reports() []Report {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Find returns the reports of a given severity whose id ends with `suffix`,
// scoped namespaces are ignored this way.
func (r *Recorder) Find(severity Severity, suffix string) []Report {
	var found []Report
	for _, report := range r.Reports() {
		if report.Severity == severity && strings.HasSuffix(report.Id, suffix) {
			found = append(found, report)
		}
	}
	return found
}
