// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// aiUnit is one proposed unit as returned by the generation backend. The
// model anchors each unit by quoting its opening words; spans are derived
// by locating those anchors in the document.
type aiUnit struct {
	Title     string `json:"title"`
	OpensWith string `json:"opens_with"`
	Beat      string `json:"beat,omitempty"`
	Energy    string `json:"energy,omitempty"`
}

// aiSegmentation is the declared output shape for one segmentation call.
type aiSegmentation struct {
	Units []aiUnit `json:"units"`
}

var segmentationSchema = genai.GenerateSchema[aiSegmentation]()

// aiSegment asks the backend for a partition of doc into roughly the
// configured target number of units.
func (s *Segmenter) aiSegment(ctx context.Context, doc string, kind types.DocumentKind) ([]types.NarrativeUnit, error) {
	minUnits, maxUnits := s.bounds()
	target := s.cfg.TargetUnits
	if target <= 0 {
		target = len(doc)/1500 + 1
	}
	if target < minUnits {
		target = minUnits
	}
	if target > maxUnits {
		target = maxUnits
	}

	req := genai.Request{
		System:     segmentationSystem(kind, target),
		Prompt:     doc,
		Schema:     segmentationSchema,
		SchemaName: "narrative_segmentation",
	}

	resp, outcome, err := genai.CallStructured(ctx, s.backend, s.cfg.AIConfig, req, aiSegmentation{Units: []aiUnit{}})
	if err != nil {
		return nil, fmt.Errorf("ai segmentation: %w", err)
	}
	if outcome == genai.DecodeDefaults || len(resp.Units) == 0 {
		return nil, ErrNoUnits
	}

	return anchorUnits(doc, resp.Units), nil
}

// anchorUnits derives spans by locating each unit's opening words in the
// document, scanning forward so boundaries stay ordered. When anchors
// cannot be located the document is partitioned evenly at paragraph
// boundaries instead.
func anchorUnits(doc string, proposed []aiUnit) []types.NarrativeUnit {
	starts := make([]int, 0, len(proposed))
	searchFrom := 0
	located := true
	for _, u := range proposed {
		anchor := anchorText(u.OpensWith)
		if anchor == "" {
			located = false
			break
		}
		idx := strings.Index(doc[searchFrom:], anchor)
		if idx < 0 {
			located = false
			break
		}
		starts = append(starts, searchFrom+idx)
		searchFrom += idx + len(anchor)
	}

	if !located || len(starts) == 0 {
		starts = evenStarts(doc, len(proposed))
	}
	starts[0] = 0

	units := make([]types.NarrativeUnit, 0, len(starts))
	for i, start := range starts {
		end := len(doc)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		u := types.NarrativeUnit{
			Span:        types.Span{Start: start, End: end},
			AISuggested: true,
		}
		if i < len(proposed) {
			u.Title = strings.TrimSpace(proposed[i].Title)
			u.Beat = strings.TrimSpace(proposed[i].Beat)
			u.Energy = strings.TrimSpace(proposed[i].Energy)
		}
		units = append(units, u)
	}
	return units
}

// anchorText trims an opens_with quote to a short, literally-searchable
// prefix.
func anchorText(opensWith string) string {
	s := strings.TrimSpace(opensWith)
	if len(s) > 60 {
		s = s[:60]
		if i := strings.LastIndexByte(s, ' '); i > 20 {
			s = s[:i]
		}
	}
	return s
}

// evenStarts partitions doc into n pieces, snapping each boundary forward
// to the next paragraph break when one is close.
func evenStarts(doc string, n int) []int {
	if n < 1 {
		n = 1
	}
	starts := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pos := i * len(doc) / n
		if i > 0 {
			if brk := strings.Index(doc[pos:min(pos+200, len(doc))], "\n\n"); brk >= 0 {
				pos += brk + 2
			}
		}
		if len(starts) > 0 && pos <= starts[len(starts)-1] {
			continue
		}
		starts = append(starts, pos)
	}
	return starts
}

// segmentationSystem builds the system instruction for one segmentation call.
func segmentationSystem(kind types.DocumentKind, target int) string {
	var b strings.Builder
	if kind == types.DocLyrics {
		fmt.Fprintf(&b, "Split the song lyrics provided by the user into about %d sections (verse, chorus, bridge, and so on).\n", target)
		b.WriteString("For each section return a short title, its section type as beat, an energy note, and opens_with: the exact first few words of the section, quoted verbatim from the lyrics.\n")
	} else {
		fmt.Fprintf(&b, "Split the story provided by the user into about %d narrative chapters that partition the full text in order.\n", target)
		b.WriteString("For each chapter return a short title, its narrative beat (setup, inciting incident, rising action, climax, resolution, ...), and opens_with: the exact first few words of the chapter, quoted verbatim from the story.\n")
	}
	b.WriteString("Sections must appear in document order and jointly cover the whole text.\n")
	return b.String()
}
