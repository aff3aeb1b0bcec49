package telemetry

import "sync"

// Report is a single call made against a Recorder.
type Report struct {
	Level  string
	ID     string
	Params []any
	Count  int64
}

// Recorder is an API that keeps everything reported to it, used to assert on
// telemetry in tests.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(report Report) {
	r.mu.Lock()
	r.reports = append(r.reports, report)
	r.mu.Unlock()
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.record(Report{Level: "broken", ID: id, Params: params})
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.record(Report{Level: "warning", ID: id, Params: params})
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.record(Report{Level: "debug", ID: msg, Params: params})
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.record(Report{Level: "count", ID: id, Count: count})
}

// Reports returns a copy of every report at the given level, or of every
// report when level is empty.
func (r *Recorder) Reports(level string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []Report{}
	for _, report := range r.reports {
		if level == "" || report.Level == level {
			out = append(out, report)
		}
	}
	return out
}
