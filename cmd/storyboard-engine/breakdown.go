// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/storyboard-engine/internal/breakdown"
	"github.com/pdiddy/storyboard-engine/internal/credits"
	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/internal/media"
	"github.com/pdiddy/storyboard-engine/internal/pipeline"
	"github.com/pdiddy/storyboard-engine/internal/refs"
	"github.com/pdiddy/storyboard-engine/internal/segment"
	"github.com/pdiddy/storyboard-engine/internal/store"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

var breakdownCmd = &cobra.Command{
	Use:   "breakdown [input-file]",
	Short: "Run the full pipeline: references, units, and shot lists",
	Long: `Breakdown runs the whole pipeline on a document: extracts visual
references (or loads an edited set with --refs), splits the text into
narrative units, and generates a shot list per unit with bounded
concurrency. The run is persisted and can be inspected or retried with
the runs subcommand.`,
	Args: cobra.ExactArgs(1),
	RunE: runBreakdown,
}

// fileRefExtractor satisfies the pipeline's extractor interface with a
// pre-built reference set loaded from disk.
type fileRefExtractor struct {
	set *types.ReferenceSet
}

func (f fileRefExtractor) Extract(_ context.Context, _ string, _ types.DocumentKind) (*types.ReferenceSet, error) {
	return f.set, nil
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	doc, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	kind, err := docKindFlag(cmd)
	if err != nil {
		return err
	}

	cfg := pipelineConfig(cmd)
	backend, err := genai.NewOpenAIBackend(cfg.Breakdown.APIKey, cfg.Breakdown.Model)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	deps := pipeline.Deps{
		Segmenter: segment.New(backend, cfg.Segmentation),
		Generator: breakdown.New(backend, cfg.Breakdown),
		Store:     st,
	}

	if refsPath, _ := cmd.Flags().GetString("refs"); refsPath != "" {
		set, err := refs.LoadSet(refsPath)
		if err != nil {
			return fmt.Errorf("loading reference set: %w", err)
		}
		deps.Extractor = fileRefExtractor{set: set}
	} else {
		deps.Extractor = refs.NewExtractor(backend, cfg.References)
	}

	if cfg.Options.GenerateStills {
		if cfg.Media.APIKey == "" || cfg.Media.BaseURL == "" {
			return fmt.Errorf("stills requested but media provider not configured")
		}
		ledger, err := credits.NewLedger(st.DB())
		if err != nil {
			return err
		}
		deps.Stills = media.NewClient(cfg.Media)
		deps.Reserver = ledger
	}

	projectID, _ := cmd.Flags().GetString("project")

	progress := func(u types.ProgressUpdate) {
		if u.Total > 0 && u.Stage == "generating-units" {
			fmt.Fprintf(os.Stderr, "  unit %d/%d\n", u.Current, u.Total)
			return
		}
		fmt.Fprintf(os.Stderr, "%s\n", u.Stage)
	}

	run, err := pipeline.New(deps, cfg.Options).Run(cmd.Context(), projectID, doc, kind, progress)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "run %s: %s\n", run.ID, run.Status)
	fmt.Fprintf(os.Stdout, "references: %d, units: %d, succeeded: %d, failed: %d\n",
		run.References.Len(), len(run.Units), run.Succeeded(), len(run.FailedUnits()))
	for _, id := range run.FailedUnits() {
		fmt.Fprintf(os.Stdout, "  failed %s: %s\n", id, run.UnitStatuses[id].Reason)
	}
	return nil
}

func init() {
	addStageFlags(breakdownCmd)
	breakdownCmd.Flags().String("project", "default", "project the run belongs to")
	breakdownCmd.Flags().String("refs", "", "use this reference set YAML instead of extracting")
	breakdownCmd.Flags().String("mode", "existing", "boundary detection: existing, ai-generated, or hybrid")
	breakdownCmd.Flags().Int("target-units", 0, "requested unit count for AI segmentation")
	breakdownCmd.Flags().Int("target-shots", 0, "requested shots per unit (0 = derive from unit length)")
	breakdownCmd.Flags().Bool("camera", true, "include camera language in shots")
	breakdownCmd.Flags().Bool("palette", true, "include palette language in shots")
	breakdownCmd.Flags().Int("concurrency", 0, "concurrent unit generation calls (0 = default 4)")
	breakdownCmd.Flags().Bool("stills", false, "render a reference still per unit (consumes credits)")
	breakdownCmd.Flags().String("media-url", "", "media provider base URL")
	breakdownCmd.Flags().String("data-dir", "", "directory for the run database (default: data)")

	rootCmd.AddCommand(breakdownCmd)
}
