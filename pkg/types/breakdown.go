// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// MaxAdditionalShots caps the "additional opportunities" list kept on a
// breakdown to bound later add-more-shots requests.
const MaxAdditionalShots = 20

// Shot is one entry in a unit's shot list. Description is free text and
// may embed @handle tokens tying the shot to references.
type Shot struct {
	Description string `json:"description" yaml:"description"`
	Camera      string `json:"camera,omitempty" yaml:"camera,omitempty"`
	Palette     string `json:"palette,omitempty" yaml:"palette,omitempty"`
}

// UnitBreakdown is the generated output for one NarrativeUnit. A
// regeneration replaces the whole record; breakdowns are never patched
// in place.
type UnitBreakdown struct {
	UnitID string `json:"unit_id" yaml:"unit_id"`

	// HandlesUsed is the subset of the run's reference handles that
	// appear in the shot list.
	HandlesUsed []string `json:"handles_used,omitempty" yaml:"handles_used,omitempty"`

	Shots []Shot `json:"shots" yaml:"shots"`

	// Coverage summarizes what the shot list does and does not cover.
	Coverage string `json:"coverage,omitempty" yaml:"coverage,omitempty"`

	// AdditionalOpportunities holds shot ideas the generator considered
	// but excluded, capped at MaxAdditionalShots.
	AdditionalOpportunities []string `json:"additional_opportunities,omitempty" yaml:"additional_opportunities,omitempty"`

	// StillURL is set when a reference still was rendered for the unit.
	StillURL string `json:"still_url,omitempty" yaml:"still_url,omitempty"`
}
