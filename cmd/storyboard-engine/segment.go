// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/internal/segment"
)

var segmentCmd = &cobra.Command{
	Use:   "segment [input-file]",
	Short: "Split a document into ordered narrative units",
	Long: `Segment splits a story into chapters or lyrics into sections. Boundary
detection mode:

  existing      use markers already in the text (headings, Chapter N,
                [Verse 1] labels); falls back to AI when none exist
  ai-generated  ask the model to propose boundaries
  hybrid        markers are authoritative, AI subdivides the unlabeled
                preamble`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

func runSegment(cmd *cobra.Command, args []string) error {
	doc, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	kind, err := docKindFlag(cmd)
	if err != nil {
		return err
	}

	cfg := pipelineConfig(cmd)
	backend, err := genai.NewOpenAIBackend(cfg.Segmentation.APIKey, cfg.Segmentation.Model)
	if err != nil {
		return err
	}

	units, err := segment.New(backend, cfg.Segmentation).Segment(context.Background(), doc, kind)
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(units)
	}

	fmt.Fprintf(os.Stdout, "%-10s  %-30s  %-18s  %-12s  %s\n", "ID", "Title", "Beat", "Span", "AI")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 80))
	for _, u := range units {
		title := u.Title
		if len(title) > 30 {
			title = title[:27] + "..."
		}
		ai := ""
		if u.AISuggested {
			ai = "yes"
		}
		fmt.Fprintf(os.Stdout, "%-10s  %-30s  %-18s  %5d-%-6d  %s\n",
			u.ID, title, u.Beat, u.Span.Start, u.Span.End, ai)
	}
	fmt.Fprintf(os.Stdout, "\n%d units\n", len(units))
	return nil
}

func init() {
	addStageFlags(segmentCmd)
	segmentCmd.Flags().String("mode", "existing", "boundary detection: existing, ai-generated, or hybrid")
	segmentCmd.Flags().Int("target-units", 0, "requested unit count for AI segmentation (0 = derive from length)")
	segmentCmd.Flags().Bool("json", false, "output units as JSON")

	rootCmd.AddCommand(segmentCmd)
}
