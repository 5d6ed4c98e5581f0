// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pdiddy/storyboard-engine/internal/breakdown"
	"github.com/pdiddy/storyboard-engine/internal/credits"
	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/internal/media"
	"github.com/pdiddy/storyboard-engine/internal/pipeline"
	"github.com/pdiddy/storyboard-engine/internal/refs"
	"github.com/pdiddy/storyboard-engine/internal/secrets"
	"github.com/pdiddy/storyboard-engine/internal/segment"
	"github.com/pdiddy/storyboard-engine/internal/server"
	"github.com/pdiddy/storyboard-engine/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Serve exposes run creation, inspection, retry, and a websocket
progress stream on an HTTP API. Provider credentials come from .env,
.secrets/, or the environment; the server refuses to start without them.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; absence is not an error.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded .env")
	}

	cfg := pipelineConfig(cmd)

	needMedia := cfg.Options.GenerateStills
	if err := secrets.Require(cfg, needMedia); err != nil {
		return err
	}

	backend, err := genai.NewOpenAIBackend(cfg.Breakdown.APIKey, cfg.Breakdown.Model)
	if err != nil {
		return err
	}

	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	ledger, err := credits.NewLedger(st.DB())
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Extractor: refs.NewExtractor(backend, cfg.References),
		Segmenter: segment.New(backend, cfg.Segmentation),
		Generator: breakdown.New(backend, cfg.Breakdown),
		Reserver:  ledger,
		Store:     st,
	}
	if needMedia {
		deps.Stills = media.NewClient(cfg.Media)
	}

	coord := pipeline.New(deps, cfg.Options)
	srv := server.New(coord, st, server.NewHub())

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}

	fmt.Fprintf(os.Stderr, "listening on %s\n", addr)
	return srv.ListenAndServe(addr)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	serveCmd.Flags().String("model", "", "generation model identifier")
	serveCmd.Flags().String("data-dir", "", "directory for the run database (default: data)")
	serveCmd.Flags().Bool("stills", false, "render reference stills for runs (consumes credits)")
	serveCmd.Flags().String("media-url", "", "media provider base URL")
	serveCmd.Flags().Int("concurrency", 0, "concurrent unit generation calls (0 = default 4)")

	rootCmd.AddCommand(serveCmd)
}
