package migration

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// Run accumulates the state of one execution: the mutation log, the
// source→destination mapping tables, counters, warnings, and per-phase
// latency. It lives for one invocation only and is returned (as a Report)
// to the caller; nothing is persisted here.
type Run struct {
	ID       string
	Workflow string
	DryRun   bool

	mutationLog []models.Mutation
	mapping     map[string]map[int]int
	counters    map[string]*models.ClassCounters
	warnings    []string
	skipped     map[string][]models.SkipEntry
	latency     map[string]time.Duration
	plan        *models.Plan

	log func(string)
	now func() time.Time
}

func newRun(workflow, runID string, dryRun bool, log func(string)) *Run {
	if log == nil {
		log = func(string) {}
	}
	return &Run{
		ID:       runID,
		Workflow: workflow,
		DryRun:   dryRun,
		mapping:  make(map[string]map[int]int),
		counters: make(map[string]*models.ClassCounters),
		skipped:  make(map[string][]models.SkipEntry),
		latency:  make(map[string]time.Duration),
		log:      log,
		now:      time.Now,
	}
}

// Logf appends a formatted line to the run's progress log.
func (r *Run) Logf(format string, args ...interface{}) {
	r.log(fmt.Sprintf(format, args...))
}

// Warnf records a non-fatal issue and echoes it to the progress log.
func (r *Run) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	r.log("  WARNING: " + msg)
}

// warnRetry returns a sink for retry notices. Retries are progress-log
// noise, not warnings: only real outcome issues belong in the report.
func (r *Run) warnRetry() func(string) {
	return func(msg string) {
		r.log("  RETRY: " + msg)
	}
}

// recordMutation appends a completed write to the ordered mutation log.
func (r *Run) recordMutation(op, entity string, id int) {
	r.mutationLog = append(r.mutationLog, models.Mutation{Op: op, Entity: entity, ID: id})
}

// counter returns the counters for a class, creating them on first use.
func (r *Run) counter(class string) *models.ClassCounters {
	c, ok := r.counters[class]
	if !ok {
		c = &models.ClassCounters{}
		r.counters[class] = c
	}
	return c
}

// mapID records a source→destination ID mapping for a class.
func (r *Run) mapID(class string, sourceID, destID int) {
	m, ok := r.mapping[class]
	if !ok {
		m = make(map[int]int)
		r.mapping[class] = m
	}
	m[sourceID] = destID
}

// skip records a unit intentionally not copied, with its reason.
func (r *Run) skip(class string, sourceID int, reason string) {
	r.skipped[class] = append(r.skipped[class], models.SkipEntry{SourceID: sourceID, Reason: reason})
	r.counter(class).Skipped++
	r.log(fmt.Sprintf("  SKIP %s %d: %s", class, sourceID, reason))
}

// phase starts a named phase timer; the returned func stops it.
func (r *Run) phase(name string) func() {
	start := r.now()
	return func() {
		r.latency[name] += r.now().Sub(start)
	}
}

// phaseLatency returns a copy of the recorded per-phase durations.
func (r *Run) phaseLatency() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.latency))
	for k, v := range r.latency {
		out[k] = v
	}
	return out
}

// Report assembles the structured result returned to the caller. Mapping
// keys are stringified source IDs; plan data is attached for dry runs only.
func (r *Run) Report(runErr error) *models.Report {
	rep := &models.Report{
		RunID:           r.ID,
		Workflow:        r.Workflow,
		DryRun:          r.DryRun,
		Counters:        make(map[string]models.ClassCounters, len(r.counters)),
		Mapping:         make(map[string]map[string]int, len(r.mapping)),
		LatencyPerPhase: make(map[string]int64, len(r.latency)),
		MutationLog:     r.mutationLog,
		Status: models.ReportStatus{
			Warnings: append([]string{}, r.warnings...),
			Skipped:  make(map[string][]models.SkipEntry, len(r.skipped)),
		},
	}
	for class, c := range r.counters {
		rep.Counters[class] = *c
	}
	for class, m := range r.mapping {
		out := make(map[string]int, len(m))
		for src, dst := range m {
			out[strconv.Itoa(src)] = dst
		}
		rep.Mapping[class] = out
	}
	for class, entries := range r.skipped {
		sorted := append([]models.SkipEntry{}, entries...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceID < sorted[j].SourceID })
		rep.Status.Skipped[class] = sorted
	}
	for phase, d := range r.latency {
		rep.LatencyPerPhase[phase] = d.Milliseconds()
	}
	if r.DryRun {
		rep.Plan = r.plan
	}
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	return rep
}
