// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/storyboard-engine/internal/breakdown"
	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/internal/pipeline"
	"github.com/pdiddy/storyboard-engine/internal/refs"
	"github.com/pdiddy/storyboard-engine/internal/segment"
	"github.com/pdiddy/storyboard-engine/internal/store"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect, export, retry, and delete persisted runs",
}

// --- list subcommand ---

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		project, _ := cmd.Flags().GetString("project")
		summaries, err := st.List(context.Background(), project)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		fmt.Fprintf(os.Stdout, "%-36s  %-16s  %-22s  %s\n", "Run", "Project", "Status", "Updated")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
		for _, s := range summaries {
			fmt.Fprintf(os.Stdout, "%-36s  %-16s  %-22s  %s\n",
				s.ID, s.ProjectID, s.Status, s.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// --- show subcommand ---

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run's units and shot lists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.Load(context.Background(), args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "run %s (%s) project %s status %s\n",
			run.ID, run.DocKind, run.ProjectID, run.Status)
		if run.Error != "" {
			fmt.Fprintf(os.Stdout, "error: %s\n", run.Error)
		}
		if !run.References.IsEmpty() {
			fmt.Fprintf(os.Stdout, "\nreferences:\n%s", run.References.Describe())
		}
		for _, u := range run.Units {
			slot := run.UnitStatuses[u.ID]
			fmt.Fprintf(os.Stdout, "\n%s %q [%s]\n", u.ID, u.Title, slot.State)
			if slot.Reason != "" {
				fmt.Fprintf(os.Stdout, "  reason: %s\n", slot.Reason)
			}
			bd, ok := run.Breakdowns[u.ID]
			if !ok {
				continue
			}
			for i, shot := range bd.Shots {
				fmt.Fprintf(os.Stdout, "  %2d. %s\n", i+1, shot.Description)
				if shot.Camera != "" {
					fmt.Fprintf(os.Stdout, "      camera: %s\n", shot.Camera)
				}
				if shot.Palette != "" {
					fmt.Fprintf(os.Stdout, "      palette: %s\n", shot.Palette)
				}
			}
			if bd.StillURL != "" {
				fmt.Fprintf(os.Stdout, "  still: %s\n", bd.StillURL)
			}
		}
		return nil
	},
}

// --- export subcommand ---

var runsExportCmd = &cobra.Command{
	Use:   "export [run-id]",
	Short: "Export one run as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return st.ExportYAML(context.Background(), args[0], os.Stdout)
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := st.ExportYAML(context.Background(), args[0], f); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "exported run %s to %s\n", args[0], out)
		return nil
	},
}

// --- retry subcommand ---

var runsRetryCmd = &cobra.Command{
	Use:   "retry [run-id]",
	Short: "Regenerate the failed units of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.Load(context.Background(), args[0])
		if err != nil {
			return err
		}

		cfg := pipelineConfig(cmd)
		backend, err := genai.NewOpenAIBackend(cfg.Breakdown.APIKey, cfg.Breakdown.Model)
		if err != nil {
			return err
		}

		deps := pipeline.Deps{
			Extractor: refs.NewExtractor(backend, cfg.References),
			Segmenter: segment.New(backend, cfg.Segmentation),
			Generator: breakdown.New(backend, cfg.Breakdown),
			Store:     st,
		}
		progress := func(u types.ProgressUpdate) {
			if u.Total > 0 && u.Stage == "generating-units" {
				fmt.Fprintf(os.Stderr, "  unit %d/%d\n", u.Current, u.Total)
			}
		}

		if err := pipeline.New(deps, cfg.Options).RetryFailed(cmd.Context(), run, progress); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "run %s: %s, succeeded %d, failed %d\n",
			run.ID, run.Status, run.Succeeded(), len(run.FailedUnits()))
		return nil
	},
}

// --- delete subcommand ---

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a persisted run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Delete(context.Background(), args[0])
	},
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = "data"
	}
	return store.NewStore(types.StoreConfig{DataDir: dataDir})
}

func init() {
	runsCmd.PersistentFlags().String("data-dir", "data", "directory for the run database")

	runsListCmd.Flags().String("project", "", "filter by project")
	runsExportCmd.Flags().String("out", "", "write YAML to this file (default: stdout)")
	runsRetryCmd.Flags().String("model", "", "generation model identifier")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsRetryCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(runsCmd)
}
