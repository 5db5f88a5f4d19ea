package revalidation

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/coordinator/internal/domain/faults"
)

// Report is one error handed to the UI error boundary.
type Report struct {
	Key            string                `json:"key"`
	Error          string                `json:"error"`
	Classification faults.Classification `json:"classification"`
	Recovery       faults.Recovery       `json:"recovery"`
	Attempts       int                   `json:"attempts"`
	At             time.Time             `json:"at"`
}

// Boundary receives surfaced errors.
type Boundary interface {
	Report(r Report)
}

// BoundaryFunc adapts a function to Boundary.
type BoundaryFunc func(Report)

// Report implements Boundary.
func (f BoundaryFunc) Report(r Report) { f(r) }

const defaultRecorderLimit = 100

// Recorder is a Boundary that keeps the most recent reports.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	reports []Report
}

// NewRecorder keeps at most limit reports; limit <= 0 means 100.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = defaultRecorderLimit
	}
	return &Recorder{limit: limit}
}

// Report implements Boundary.
func (r *Recorder) Report(rep Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	if over := len(r.reports) - r.limit; over > 0 {
		r.reports = r.reports[over:]
	}
}

// Reports returns a copy, oldest first.
func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Report(nil), r.reports...)
}

// Len returns the number of stored reports.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// Clear drops every report.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.reports = nil
	r.mu.Unlock()
}
