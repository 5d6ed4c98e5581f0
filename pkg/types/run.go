// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunStatus tracks a pipeline run through its lifecycle.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunExtracting RunStatus = "extracting-references"
	RunSegmenting RunStatus = "segmenting"
	RunGenerating RunStatus = "generating-units"
	RunComplete   RunStatus = "complete"
	RunFailed     RunStatus = "failed"
)

// UnitState is the terminal state of one unit's generation slot.
type UnitState string

const (
	UnitPending   UnitState = "pending"
	UnitSucceeded UnitState = "succeeded"
	UnitFailed    UnitState = "failed"
	UnitSkipped   UnitState = "skipped"
)

// UnitStatus records the outcome of one unit's breakdown generation.
// Reason carries a human-readable explanation when State is not succeeded.
type UnitStatus struct {
	State  UnitState `json:"state" yaml:"state"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ProgressUpdate is emitted after each unit completes so a caller can
// render incremental progress. Current is monotonically increasing; the
// final update of a run has Current == Total.
type ProgressUpdate struct {
	RunID   string    `json:"run_id"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Stage   string    `json:"stage"`
	Status  RunStatus `json:"status"`
}

// PipelineRun is one end-to-end execution of extraction, segmentation, and
// per-unit generation for an input document. Terminal in RunComplete or
// RunFailed; partial results are retained for inspection and retry.
type PipelineRun struct {
	ID        string       `json:"id" yaml:"id"`
	ProjectID string       `json:"project_id" yaml:"project_id"`
	DocKind   DocumentKind `json:"doc_kind" yaml:"doc_kind"`
	Input     string       `json:"input" yaml:"input"`

	References *ReferenceSet   `json:"references,omitempty" yaml:"references,omitempty"`
	Units      []NarrativeUnit `json:"units,omitempty" yaml:"units,omitempty"`

	// Breakdowns maps unit ID to its breakdown; one entry per unit that
	// generated successfully.
	Breakdowns map[string]*UnitBreakdown `json:"breakdowns,omitempty" yaml:"breakdowns,omitempty"`

	// UnitStatuses maps unit ID to its per-slot outcome.
	UnitStatuses map[string]UnitStatus `json:"unit_statuses,omitempty" yaml:"unit_statuses,omitempty"`

	Status RunStatus `json:"status" yaml:"status"`

	// Error holds the run-level failure reason when Status is RunFailed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// FailedUnits returns the IDs of units whose slot is UnitFailed, in
// document order.
func (r *PipelineRun) FailedUnits() []string {
	var ids []string
	for _, u := range r.Units {
		if st, ok := r.UnitStatuses[u.ID]; ok && st.State == UnitFailed {
			ids = append(ids, u.ID)
		}
	}
	return ids
}

// Succeeded counts units whose slot is UnitSucceeded.
func (r *PipelineRun) Succeeded() int {
	n := 0
	for _, st := range r.UnitStatuses {
		if st.State == UnitSucceeded {
			n++
		}
	}
	return n
}
