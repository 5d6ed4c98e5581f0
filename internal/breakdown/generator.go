// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package breakdown turns one narrative unit into a production shot
// list. Shots reference the run's visual references by @handle; handles
// the run does not know are demoted to plain text so every handle in a
// stored breakdown resolves.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

const (
	// MinShots and MaxShots bound the per-unit shot count.
	MinShots = 1
	MaxShots = 50

	// shotBudgetBytes is the unit length a single shot is expected to
	// cover when no target count is configured.
	shotBudgetBytes = 300
)

// ErrNoShots is returned when the generator produced nothing usable for
// a unit.
var ErrNoShots = errors.New("breakdown produced no shots")

// shotItem is one proposed shot as returned by the generation backend.
type shotItem struct {
	Description string `json:"description"`
	Camera      string `json:"camera,omitempty"`
	Palette     string `json:"palette,omitempty"`
}

// breakdownResponse is the declared output shape for one breakdown call.
type breakdownResponse struct {
	Shots                   []shotItem `json:"shots"`
	Coverage                string     `json:"coverage,omitempty"`
	AdditionalOpportunities []string   `json:"additional_opportunities,omitempty"`
}

var breakdownSchema = genai.GenerateSchema[breakdownResponse]()

var handleToken = regexp.MustCompile(`@[a-z0-9_]+`)

// Generator produces shot breakdowns for narrative units.
type Generator struct {
	backend genai.Backend
	cfg     types.BreakdownConfig
}

// New returns a Generator over the given backend.
func New(backend genai.Backend, cfg types.BreakdownConfig) *Generator {
	return &Generator{backend: backend, cfg: cfg}
}

// Generate builds a fresh breakdown for the unit. The result replaces
// any previous breakdown for the same unit; records are never patched
// in place.
func (g *Generator) Generate(ctx context.Context, unit types.NarrativeUnit, doc string, refs *types.ReferenceSet) (types.UnitBreakdown, error) {
	text := unit.Text(doc)
	if strings.TrimSpace(text) == "" {
		return types.UnitBreakdown{}, fmt.Errorf("unit %s: %w", unit.ID, ErrNoShots)
	}

	target := g.targetShots(len(text))

	req := genai.Request{
		System:     g.systemPrompt(unit, target, refs),
		Prompt:     text,
		Schema:     breakdownSchema,
		SchemaName: "shot_breakdown",
	}

	resp, outcome, err := genai.CallStructured(ctx, g.backend, g.cfg.AIConfig, req, breakdownResponse{})
	if err != nil {
		return types.UnitBreakdown{}, fmt.Errorf("unit %s: %w", unit.ID, err)
	}
	if outcome == genai.DecodeDefaults || len(resp.Shots) == 0 {
		return types.UnitBreakdown{}, fmt.Errorf("unit %s: %w", unit.ID, ErrNoShots)
	}

	return g.assemble(unit, resp, refs), nil
}

// targetShots picks the shot count for a unit of the given byte length.
func (g *Generator) targetShots(unitLen int) int {
	target := g.cfg.TargetShots
	if target <= 0 {
		target = unitLen/shotBudgetBytes + 1
	}
	if target < MinShots {
		target = MinShots
	}
	if target > MaxShots {
		target = MaxShots
	}
	return target
}

// assemble converts a decoded response into a UnitBreakdown, enforcing
// the handle closure and the shot and opportunity caps.
func (g *Generator) assemble(unit types.NarrativeUnit, resp breakdownResponse, refs *types.ReferenceSet) types.UnitBreakdown {
	shots := resp.Shots
	if len(shots) > MaxShots {
		shots = shots[:MaxShots]
	}

	used := make(map[string]bool)
	out := make([]types.Shot, 0, len(shots))
	for _, s := range shots {
		desc := closeHandles(s.Description, refs, used)
		if strings.TrimSpace(desc) == "" {
			continue
		}
		shot := types.Shot{Description: desc}
		if g.cfg.CameraLanguage {
			shot.Camera = strings.TrimSpace(s.Camera)
		}
		if g.cfg.PaletteLanguage {
			shot.Palette = strings.TrimSpace(s.Palette)
		}
		out = append(out, shot)
	}

	handles := make([]string, 0, len(used))
	for h := range used {
		handles = append(handles, h)
	}
	sortHandles(handles)

	opportunities := resp.AdditionalOpportunities
	if len(opportunities) > types.MaxAdditionalShots {
		opportunities = opportunities[:types.MaxAdditionalShots]
	}

	return types.UnitBreakdown{
		UnitID:                  unit.ID,
		HandlesUsed:             handles,
		Shots:                   out,
		Coverage:                strings.TrimSpace(resp.Coverage),
		AdditionalOpportunities: opportunities,
	}
}

// closeHandles rewrites @handle tokens in text: handles present in refs
// are kept and recorded in used, unknown handles are demoted to the bare
// word so no stored shot references an entity the run does not know.
func closeHandles(text string, refs *types.ReferenceSet, used map[string]bool) string {
	return handleToken.ReplaceAllStringFunc(text, func(tok string) string {
		if refs != nil && refs.Has(tok) {
			used[tok] = true
			return tok
		}
		return strings.ReplaceAll(strings.TrimPrefix(tok, "@"), "_", " ")
	})
}

func sortHandles(handles []string) {
	for i := 1; i < len(handles); i++ {
		for j := i; j > 0 && handles[j] < handles[j-1]; j-- {
			handles[j], handles[j-1] = handles[j-1], handles[j]
		}
	}
}

// systemPrompt builds the instruction for one breakdown call.
func (g *Generator) systemPrompt(unit types.NarrativeUnit, target int, refs *types.ReferenceSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Break the passage provided by the user into about %d production shots in order.\n", target)
	b.WriteString("For each shot return a visual description.\n")

	if g.cfg.Style != "" {
		fmt.Fprintf(&b, "Overall visual style: %s.\n", g.cfg.Style)
	}
	if g.cfg.CameraLanguage {
		b.WriteString("Include a camera note per shot using framing and movement vocabulary (wide, close-up, dolly, pan, handheld).\n")
	}
	if g.cfg.PaletteLanguage {
		b.WriteString("Include a palette note per shot naming the dominant colors and lighting mood.\n")
	}
	if unit.Beat != "" {
		fmt.Fprintf(&b, "This passage is the %s of the piece.\n", unit.Beat)
	}
	if unit.Energy != "" {
		fmt.Fprintf(&b, "Energy: %s.\n", unit.Energy)
	}

	if refs != nil && !refs.IsEmpty() {
		b.WriteString("Refer to known entities by these handles, exactly as written:\n")
		b.WriteString(refs.Describe())
		b.WriteString("Do not use @handles that are not in the list above.\n")
	}

	b.WriteString("Also return coverage, one sentence on what the shot list covers and omits, and additional_opportunities, shot ideas you considered but left out.\n")
	return b.String()
}
