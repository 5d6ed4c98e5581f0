// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline coordinates a full run: reference extraction,
// segmentation, then per-unit breakdown generation with bounded
// fan-out. Units fail independently; a run completes with per-unit
// failure slots rather than failing outright.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/storyboard-engine/internal/credits"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// DefaultConcurrency bounds simultaneous breakdown calls when the
// caller leaves it unset.
const DefaultConcurrency = 4

// Extractor produces the run's reference set from the input document.
type Extractor interface {
	Extract(ctx context.Context, doc string, kind types.DocumentKind) (*types.ReferenceSet, error)
}

// Segmenter splits the input document into narrative units.
type Segmenter interface {
	Segment(ctx context.Context, doc string, kind types.DocumentKind) ([]types.NarrativeUnit, error)
}

// Generator produces a breakdown for one unit.
type Generator interface {
	Generate(ctx context.Context, unit types.NarrativeUnit, doc string, refs *types.ReferenceSet) (types.UnitBreakdown, error)
}

// StillRenderer renders a reference still for a unit. Optional; runs
// work without one.
type StillRenderer interface {
	GenerateStill(ctx context.Context, prompt string) (string, error)
}

// RunSaver persists run snapshots as the pipeline advances.
type RunSaver interface {
	Save(ctx context.Context, run *types.PipelineRun) error
}

// ProgressFunc receives an update after each stage transition and each
// completed unit. May be nil.
type ProgressFunc func(types.ProgressUpdate)

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Extractor Extractor
	Segmenter Segmenter
	Generator Generator
	Stills    StillRenderer
	Reserver  credits.Reserver
	Store     RunSaver
}

// Coordinator runs the pipeline end to end.
type Coordinator struct {
	deps Deps
	opts types.PipelineOptions
}

// New returns a Coordinator over the given collaborators.
func New(deps Deps, opts types.PipelineOptions) *Coordinator {
	return &Coordinator{deps: deps, opts: opts}
}

// Run executes the pipeline for one input document. The returned run is
// also persisted after every stage; on error the partial run is
// returned alongside the error when one exists.
func (c *Coordinator) Run(ctx context.Context, projectID, input string, kind types.DocumentKind, progress ProgressFunc) (*types.PipelineRun, error) {
	if err := c.reserve(ctx, projectID); err != nil {
		return nil, err
	}
	run := newRun(projectID, input, kind)
	if err := c.save(ctx, run); err != nil {
		return nil, err
	}
	return c.execute(ctx, run, progress)
}

// Start launches the pipeline in the background and returns the run ID
// as soon as the run record exists. Credit refusal still surfaces here,
// before anything is persisted. The run outlives the caller's context.
func (c *Coordinator) Start(ctx context.Context, projectID, input string, kind types.DocumentKind, progress ProgressFunc) (string, error) {
	if err := c.reserve(ctx, projectID); err != nil {
		return "", err
	}
	run := newRun(projectID, input, kind)
	if err := c.save(ctx, run); err != nil {
		return "", err
	}
	go c.execute(context.WithoutCancel(ctx), run, progress)
	return run.ID, nil
}

// reserve gates paid media generation; a refused reservation surfaces
// before any run record exists.
func (c *Coordinator) reserve(ctx context.Context, projectID string) error {
	if !c.opts.GenerateStills || c.deps.Reserver == nil {
		return nil
	}
	ok, err := c.deps.Reserver.CheckAndReserve(ctx, projectID, c.opts.StillCost)
	if err != nil {
		return fmt.Errorf("reserving credits: %w", err)
	}
	if !ok {
		return fmt.Errorf("project %s: %w", projectID, credits.ErrNoCredits)
	}
	return nil
}

func newRun(projectID, input string, kind types.DocumentKind) *types.PipelineRun {
	now := time.Now().UTC()
	return &types.PipelineRun{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		DocKind:   kind,
		Input:     input,
		Status:    types.RunPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Coordinator) execute(ctx context.Context, run *types.PipelineRun, progress ProgressFunc) (*types.PipelineRun, error) {
	input := run.Input
	kind := run.DocKind

	c.transition(ctx, run, types.RunExtracting, progress)
	refs, extractErr := c.deps.Extractor.Extract(ctx, input, kind)
	if extractErr != nil {
		// Extraction failure alone does not kill the run; breakdowns
		// proceed without references.
		refs = types.NewReferenceSet()
	}
	run.References = refs

	c.transition(ctx, run, types.RunSegmenting, progress)
	units, segErr := c.deps.Segmenter.Segment(ctx, input, kind)
	if segErr != nil {
		if extractErr != nil {
			run.Status = types.RunFailed
			run.Error = fmt.Sprintf("extraction: %v; segmentation: %v", extractErr, segErr)
			c.saveLogged(ctx, run)
			c.emit(run, 0, 0, progress)
			return run, fmt.Errorf("run %s failed: %s", run.ID, run.Error)
		}
		// Segmentation failure with usable references degrades to one
		// unit spanning the whole document.
		units = []types.NarrativeUnit{{
			ID:   "unit-001",
			Span: types.Span{Start: 0, End: len(input)},
		}}
	}
	run.Units = units

	c.transition(ctx, run, types.RunGenerating, progress)
	c.generateUnits(ctx, run, unitIDs(units), progress)

	if ctx.Err() != nil {
		// Interrupted: keep the partial results; the run can be retried.
		c.saveLogged(context.WithoutCancel(ctx), run)
		return run, ctx.Err()
	}

	c.complete(ctx, run, len(run.Units), progress)
	return run, nil
}

// RetryFailed regenerates only the units whose slot is failed. Other
// slots and breakdowns are left untouched.
func (c *Coordinator) RetryFailed(ctx context.Context, run *types.PipelineRun, progress ProgressFunc) error {
	failed := run.FailedUnits()
	if len(failed) == 0 {
		return ErrNothingToRetry
	}

	c.transition(ctx, run, types.RunGenerating, progress)
	c.generateUnits(ctx, run, failed, progress)

	if ctx.Err() != nil {
		c.saveLogged(context.WithoutCancel(ctx), run)
		return ctx.Err()
	}
	c.complete(ctx, run, len(failed), progress)
	return nil
}

// complete marks the run finished and emits the final update, whose
// current equals the total so consumers can close out progress bars.
func (c *Coordinator) complete(ctx context.Context, run *types.PipelineRun, total int, progress ProgressFunc) {
	run.Status = types.RunComplete
	c.saveLogged(ctx, run)
	c.emit(run, total, total, progress)
}

// generateUnits fans out breakdown generation for the given unit IDs
// with bounded concurrency. Each unit reports exactly once, so the
// progress counter is monotonic and ends at len(ids).
func (c *Coordinator) generateUnits(ctx context.Context, run *types.PipelineRun, ids []string, progress ProgressFunc) {
	concurrency := c.opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	byID := make(map[string]types.NarrativeUnit, len(run.Units))
	for _, u := range run.Units {
		byID[u.ID] = u
	}

	var mu sync.Mutex
	if run.Breakdowns == nil {
		run.Breakdowns = make(map[string]*types.UnitBreakdown)
	}
	if run.UnitStatuses == nil {
		run.UnitStatuses = make(map[string]types.UnitStatus)
	}
	for _, id := range ids {
		run.UnitStatuses[id] = types.UnitStatus{State: types.UnitPending}
	}

	total := len(ids)
	done := 0
	report := func(id string, status types.UnitStatus, bd *types.UnitBreakdown) {
		mu.Lock()
		defer mu.Unlock()
		run.UnitStatuses[id] = status
		if bd != nil {
			run.Breakdowns[id] = bd
		}
		done++
		if progress != nil {
			progress(types.ProgressUpdate{
				RunID:   run.ID,
				Current: done,
				Total:   total,
				Stage:   "generating-units",
				Status:  run.Status,
			})
		}
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Units not yet issued when the run is cancelled are skipped.
			if ctx.Err() != nil {
				report(id, types.UnitStatus{State: types.UnitSkipped, Reason: "run cancelled"}, nil)
				return
			}

			// Once issued, the call finishes naturally even if the run is
			// cancelled meanwhile; its result is then discarded.
			callCtx := context.WithoutCancel(ctx)
			bd, err := c.deps.Generator.Generate(callCtx, byID[id], run.Input, run.References)

			if ctx.Err() != nil {
				report(id, types.UnitStatus{State: types.UnitSkipped, Reason: "run cancelled"}, nil)
				return
			}
			if err != nil {
				report(id, types.UnitStatus{State: types.UnitFailed, Reason: err.Error()}, nil)
				return
			}

			if c.opts.GenerateStills && c.deps.Stills != nil && len(bd.Shots) > 0 {
				if url, stillErr := c.deps.Stills.GenerateStill(callCtx, bd.Shots[0].Description); stillErr == nil {
					bd.StillURL = url
				}
				// A failed still never fails the unit.
			}

			report(id, types.UnitStatus{State: types.UnitSucceeded}, &bd)
		}(id)
	}
	wg.Wait()

	c.saveLogged(context.WithoutCancel(ctx), run)
}

func (c *Coordinator) transition(ctx context.Context, run *types.PipelineRun, status types.RunStatus, progress ProgressFunc) {
	run.Status = status
	c.saveLogged(ctx, run)
	c.emit(run, 0, len(run.Units), progress)
}

func (c *Coordinator) emit(run *types.PipelineRun, current, total int, progress ProgressFunc) {
	if progress == nil {
		return
	}
	progress(types.ProgressUpdate{
		RunID:   run.ID,
		Current: current,
		Total:   total,
		Stage:   string(run.Status),
		Status:  run.Status,
	})
}

// saveLogged persists the run and logs failures instead of propagating
// them; a broken store must be visible without aborting the run.
func (c *Coordinator) saveLogged(ctx context.Context, run *types.PipelineRun) {
	if err := c.save(ctx, run); err != nil {
		log.Printf("pipeline: %v", err)
	}
}

func (c *Coordinator) save(ctx context.Context, run *types.PipelineRun) error {
	run.UpdatedAt = time.Now().UTC()
	if c.deps.Store == nil {
		return nil
	}
	if err := c.deps.Store.Save(ctx, run); err != nil {
		return fmt.Errorf("persisting run %s: %w", run.ID, err)
	}
	return nil
}

func unitIDs(units []types.NarrativeUnit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}

// ErrNothingToRetry is returned by RetryFailed when no unit slot is in
// the failed state.
var ErrNothingToRetry = errors.New("no failed units to retry")
