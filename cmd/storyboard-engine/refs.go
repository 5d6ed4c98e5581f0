// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/internal/refs"
)

var refsCmd = &cobra.Command{
	Use:   "refs [input-file]",
	Short: "Extract visual references from a story or lyrics",
	Long: `Refs reads a document and extracts the characters, locations, props,
and wardrobe worth keeping visually consistent across shots. Each entity
gets a stable @handle. The result is written as YAML so it can be edited
by hand and fed back into breakdown with --refs.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefs,
}

func runRefs(cmd *cobra.Command, args []string) error {
	doc, err := readInput(args[0])
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	kind, err := docKindFlag(cmd)
	if err != nil {
		return err
	}

	cfg := pipelineConfig(cmd)
	backend, err := genai.NewOpenAIBackend(cfg.References.APIKey, cfg.References.Model)
	if err != nil {
		return err
	}

	set, err := refs.NewExtractor(backend, cfg.References).Extract(context.Background(), doc, kind)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		data, err := yaml.Marshal(set)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}
	if err := refs.SaveSet(out, set); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d references to %s\n", set.Len(), out)
	return nil
}

func init() {
	addStageFlags(refsCmd)
	refsCmd.Flags().String("out", "", "write the reference set YAML to this file (default: stdout)")

	rootCmd.AddCommand(refsCmd)
}
