package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run represents one async migration execution tracked by the API layer.
// The engine's own report (including its runId, which may come from an
// idempotency key) is attached when the run finishes.
type Run struct {
	ID           string     `json:"id"`
	Workflow     string     `json:"workflow"` // "contact-move", "configuration-item-move", "workload-reassignment"
	ConnectionID string     `json:"connection_id"`
	DryRun       bool       `json:"dry_run"`
	Status       string     `json:"status"` // "running", "completed", "failed"
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Output       []string   `json:"output"`
	Report       *Report    `json:"report,omitempty"`
	mu           sync.Mutex
}

// AppendLog adds a log line to the run output.
func (r *Run) AppendLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Output = append(r.Output, line)
}

// LogsSince returns log lines starting from the given index.
func (r *Run) LogsSince(offset int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if offset >= len(r.Output) {
		return nil
	}
	lines := make([]string, len(r.Output)-offset)
	copy(lines, r.Output[offset:])
	return lines
}

// CurrentStatus returns the run status under lock.
func (r *Run) CurrentStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Status
}

// GetReport returns the attached report, or nil while the run is in flight.
func (r *Run) GetReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Report
}

// Complete marks the run as completed and attaches its report.
func (r *Run) Complete(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = "completed"
	r.Report = report
	now := time.Now()
	r.FinishedAt = &now
}

// Fail marks the run as failed. A partial report may still be attached:
// the engine always assembles one, even on fatal errors.
func (r *Run) Fail(errMsg string, report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = "failed"
	r.Error = errMsg
	r.Report = report
	now := time.Now()
	r.FinishedAt = &now
}

// RunStore is an in-memory thread-safe store for runs.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewRunStore creates an empty run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

// Create adds a new run, assigning it a UUID.
func (s *RunStore) Create(workflow, connectionID string, dryRun bool) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Run{
		ID:           uuid.New().String(),
		Workflow:     workflow,
		ConnectionID: connectionID,
		DryRun:       dryRun,
		Status:       "running",
		StartedAt:    time.Now(),
		Output:       []string{},
	}
	s.runs[r.ID] = r
	return r
}

// Get returns a run by ID.
func (s *RunStore) Get(id string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[id]
}

// List returns all runs, most recent first.
func (s *RunStore) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		result = append(result, r)
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].StartedAt.After(result[i].StartedAt) {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result
}
