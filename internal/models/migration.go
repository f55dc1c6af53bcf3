package models

// ClassCounters tracks per-sub-resource-class progress for one run.
type ClassCounters struct {
	Planned int `json:"planned"`
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SkipEntry records a sub-resource unit that was intentionally not copied.
type SkipEntry struct {
	SourceID int    `json:"source_id"`
	Reason   string `json:"reason"`
}

// Mutation is one completed write, recorded in order for compensation and audit.
type Mutation struct {
	Op     string `json:"op"` // "create", "update", "delete"
	Entity string `json:"entity"`
	ID     int    `json:"id"`
}

// PlanItem describes one sub-resource that would be copied, with enough
// identifying fields for a human to review.
type PlanItem struct {
	Class    string `json:"class"`
	SourceID int    `json:"source_id"`
	Summary  string `json:"summary,omitempty"`
}

// Plan is the side-effect-free output of a dry run: the exact payload that
// would be sent to create the destination entity, any values resolved by
// name-matching, and the sub-resources that would be copied.
type Plan struct {
	EntityKind     string            `json:"entityKind"`
	CreatePayload  Entity            `json:"createPayload,omitempty"`
	ResolvedFields map[string]string `json:"resolvedFields,omitempty"`
	SubResources   []PlanItem        `json:"subResources"`
}

// ReportStatus groups the non-fatal outcome detail of a run.
type ReportStatus struct {
	Warnings []string               `json:"warnings"`
	Skipped  map[string][]SkipEntry `json:"skipped"`
}

// Report is the structured result of one migration run. It is the only
// object the engine returns; nothing is persisted by the engine itself.
type Report struct {
	RunID           string                    `json:"runId"`
	Workflow        string                    `json:"workflow"`
	DryRun          bool                      `json:"dryRun"`
	Counters        map[string]ClassCounters  `json:"counters"`
	Mapping         map[string]map[string]int `json:"mapping"`
	Status          ReportStatus              `json:"status"`
	LatencyPerPhase map[string]int64          `json:"latencyPerPhase"` // wall-clock ms per phase
	MutationLog     []Mutation                `json:"mutationLog,omitempty"`
	Plan            *Plan                     `json:"plan,omitempty"`
	Error           string                    `json:"error,omitempty"`
}
