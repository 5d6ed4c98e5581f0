// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package refs derives the canonical set of named references (characters,
// locations, props, wardrobe) from an input document. Extraction is
// grounded in the source text: entities the model names but the document
// never mentions are dropped, not stored.
package refs

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// extractedEntity is a single entity as returned by the generation backend.
type extractedEntity struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
}

// extractionResponse is the declared output shape for one extraction call.
type extractionResponse struct {
	Entities []extractedEntity `json:"entities"`
}

var extractionSchema = genai.GenerateSchema[extractionResponse]()

// Extractor calls the generation backend to build a ReferenceSet.
type Extractor struct {
	backend genai.Backend
	cfg     types.ReferenceConfig
}

// NewExtractor returns an Extractor over the given backend.
func NewExtractor(backend genai.Backend, cfg types.ReferenceConfig) *Extractor {
	return &Extractor{backend: backend, cfg: cfg}
}

// Extract identifies entities explicitly present in doc and returns them
// as a ReferenceSet with unique handles. When the generator call degrades
// to defaults the result is an empty set, not an error; the caller may
// supply references manually. The returned error is transport exhaustion
// only.
func (e *Extractor) Extract(ctx context.Context, doc string, kind types.DocumentKind) (*types.ReferenceSet, error) {
	req := genai.Request{
		System:     extractionSystem(kind, e.cfg.Style),
		Prompt:     doc,
		Schema:     extractionSchema,
		SchemaName: "reference_extraction",
	}

	resp, outcome, err := genai.CallStructured(ctx, e.backend, e.cfg.AIConfig, req, extractionResponse{Entities: []extractedEntity{}})
	if err != nil {
		return nil, fmt.Errorf("extracting references: %w", err)
	}
	if outcome == genai.DecodeDefaults {
		return types.NewReferenceSet(), nil
	}

	return buildSet(resp.Entities, doc), nil
}

// buildSet validates extracted entities against the source document and
// assigns unique handles. Entities whose name never occurs in the text
// are hallucinations and are dropped.
func buildSet(entities []extractedEntity, doc string) *types.ReferenceSet {
	set := types.NewReferenceSet()
	taken := make(map[string]bool)

	for _, ent := range entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		kind := types.ReferenceKind(strings.ToLower(strings.TrimSpace(ent.Kind)))
		if !types.ValidReferenceKinds[kind] {
			continue
		}
		if !mentionedIn(doc, name) {
			continue
		}

		handle := UniqueHandle(name, taken)
		taken[handle] = true

		// Add can only fail on a duplicate handle, which UniqueHandle
		// has already excluded.
		_ = set.Add(types.Reference{
			Handle:      handle,
			Name:        name,
			Description: strings.TrimSpace(ent.Description),
			Kind:        kind,
		})
	}
	return set
}

// mentionedIn reports whether any substantial word of name occurs in doc,
// case-insensitively. Articles and other short tokens are ignored so
// "the warehouse" matches a document that says "warehouse".
func mentionedIn(doc, name string) bool {
	lowerDoc := strings.ToLower(doc)
	for _, word := range strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(word) < 3 {
			continue
		}
		if strings.Contains(lowerDoc, word) {
			return true
		}
	}
	return false
}

// extractionSystem builds the system instruction for one extraction call.
// The style hint biases description phrasing only; inventing entities is
// forbidden regardless.
func extractionSystem(kind types.DocumentKind, style string) string {
	var b strings.Builder
	b.WriteString("You are a film pre-production assistant. Identify the visual references in the ")
	if kind == types.DocLyrics {
		b.WriteString("song lyrics")
	} else {
		b.WriteString("story")
	}
	b.WriteString(" provided by the user: characters who are named or clearly referenced, distinct locations, and salient props or wardrobe items.\n")
	b.WriteString("Only list entities explicitly present in the text. Never invent characters, places, or objects that the text does not mention.\n")
	b.WriteString("For each entity return its name, its kind (character, location, prop, or wardrobe), and a one-sentence visual description.\n")
	if style != "" {
		fmt.Fprintf(&b, "Phrase descriptions in the visual style of %s, but do not let the style add entities.\n", style)
	}
	return b.String()
}
