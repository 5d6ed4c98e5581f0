// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/storyboard-engine/internal/secrets"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// pipelineConfig assembles the full stage configuration from config file
// values and command flags, then fills in credentials from secrets and
// the environment. Flags win over the config file.
func pipelineConfig(cmd *cobra.Command) *types.PipelineConfig {
	cfg := &types.PipelineConfig{}
	if err := viper.Unmarshal(cfg); err != nil {
		// A malformed config file falls back to flags and defaults.
		cfg = &types.PipelineConfig{}
	}

	ai := aiFromFlags(cmd, cfg.Breakdown.AIConfig)
	cfg.References.AIConfig = ai
	cfg.Segmentation.AIConfig = ai
	cfg.Breakdown.AIConfig = ai

	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		cfg.Segmentation.Mode = types.DetectionMode(v)
	}
	if v, _ := cmd.Flags().GetInt("target-units"); v > 0 {
		cfg.Segmentation.TargetUnits = v
	}
	if v, _ := cmd.Flags().GetString("style"); v != "" {
		cfg.References.Style = v
		cfg.Breakdown.Style = v
	}
	if v, _ := cmd.Flags().GetInt("target-shots"); v > 0 {
		cfg.Breakdown.TargetShots = v
	}
	// The camera/palette flags default to on; an explicit flag beats the
	// config file, the config file beats the flag default.
	if f := cmd.Flags().Lookup("camera"); f != nil && (f.Changed || !viper.IsSet("breakdown.camera_language")) {
		cfg.Breakdown.CameraLanguage, _ = cmd.Flags().GetBool("camera")
	}
	if f := cmd.Flags().Lookup("palette"); f != nil && (f.Changed || !viper.IsSet("breakdown.palette_language")) {
		cfg.Breakdown.PaletteLanguage, _ = cmd.Flags().GetBool("palette")
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Options.Concurrency = v
	}
	if cmd.Flags().Changed("stills") {
		cfg.Options.GenerateStills, _ = cmd.Flags().GetBool("stills")
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Store.DataDir = v
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "data"
	}
	if v, _ := cmd.Flags().GetString("media-url"); v != "" {
		cfg.Media.BaseURL = v
	}
	if cfg.Options.StillCost <= 0 {
		cfg.Options.StillCost = 1
	}

	secrets.Apply(loadedSecrets, cfg)
	return cfg
}

func aiFromFlags(cmd *cobra.Command, base types.AIConfig) types.AIConfig {
	ai := base
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		ai.Model = v
	}
	if ai.MaxRetries <= 0 {
		ai.MaxRetries = 3
	}
	if ai.BaseDelay <= 0 {
		ai.BaseDelay = time.Second
	}
	if ai.Timeout <= 0 {
		ai.Timeout = 2 * time.Minute
	}
	return ai
}

// readInput returns the document text from a file argument, or stdin
// when the argument is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// addStageFlags registers the flags shared by the stage commands.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().String("model", "", "generation model identifier")
	cmd.Flags().String("kind", "story", "document kind: story or lyrics")
	cmd.Flags().String("style", "", "director/style hint for descriptions")
}

func docKindFlag(cmd *cobra.Command) (types.DocumentKind, error) {
	v, _ := cmd.Flags().GetString("kind")
	kind := types.DocumentKind(v)
	if kind != types.DocStory && kind != types.DocLyrics {
		return "", errUnknownKind(v)
	}
	return kind, nil
}

type errUnknownKind string

func (e errUnknownKind) Error() string {
	return "unknown document kind " + string(e) + ": use story or lyrics"
}
