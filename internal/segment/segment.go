// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package segment splits an input document into ordered narrative units:
// chapters for prose, sections for lyrics. Boundaries come from explicit
// markers, from the generation backend, or from a hybrid of both; unit
// spans are contiguous, non-empty, and in document order.
package segment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/storyboard-engine/internal/genai"
	"github.com/pdiddy/storyboard-engine/pkg/types"
)

const (
	// DefaultMinUnits and DefaultMaxUnits bound the unit count when the
	// caller leaves the limits unset.
	DefaultMinUnits = 1
	DefaultMaxUnits = 20

	// preambleSubdivideLen is the minimum unlabeled-preamble length, in
	// bytes, worth AI-subdividing in hybrid mode.
	preambleSubdivideLen = 400
)

// ErrNoUnits is returned when segmentation produces nothing usable: no
// markers, and the generator proposed no units.
var ErrNoUnits = errors.New("segmentation produced no units")

// Segmenter splits documents into narrative units.
type Segmenter struct {
	backend genai.Backend
	cfg     types.SegmentationConfig
}

// New returns a Segmenter over the given backend.
func New(backend genai.Backend, cfg types.SegmentationConfig) *Segmenter {
	return &Segmenter{backend: backend, cfg: cfg}
}

// Segment splits doc according to the configured detection mode. The
// returned units are ordered by position; in existing mode their spans
// tile the document with no gaps or overlaps.
func (s *Segmenter) Segment(ctx context.Context, doc string, kind types.DocumentKind) ([]types.NarrativeUnit, error) {
	if strings.TrimSpace(doc) == "" {
		return nil, ErrNoUnits
	}

	minUnits, maxUnits := s.bounds()

	mode := s.cfg.Mode
	if mode == "" {
		mode = types.ModeExisting
	}

	var units []types.NarrativeUnit
	var err error

	switch mode {
	case types.ModeExisting:
		units = markersToUnits(doc, detectMarkers(doc))
		if len(units) == 0 {
			// No structural markers: fall back to AI-suggested boundaries.
			units, err = s.aiSegment(ctx, doc, kind)
		}
	case types.ModeAI:
		units, err = s.aiSegment(ctx, doc, kind)
	case types.ModeHybrid:
		units, err = s.hybridSegment(ctx, doc, kind)
	default:
		return nil, fmt.Errorf("unknown detection mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	units = mergeDegenerate(doc, units)
	units = clampCount(units, maxUnits)
	units = padCount(doc, units, minUnits)
	if len(units) == 0 {
		return nil, ErrNoUnits
	}

	renumber(units)
	return units, nil
}

func (s *Segmenter) bounds() (int, int) {
	minUnits := s.cfg.MinUnits
	if minUnits <= 0 {
		minUnits = DefaultMinUnits
	}
	maxUnits := s.cfg.MaxUnits
	if maxUnits <= 0 {
		maxUnits = DefaultMaxUnits
	}
	if maxUnits < minUnits {
		maxUnits = minUnits
	}
	return minUnits, maxUnits
}

// hybridSegment keeps explicit markers as authoritative boundaries and
// asks the generator to subdivide only the unlabeled preamble, when one
// exists and is long enough to matter.
func (s *Segmenter) hybridSegment(ctx context.Context, doc string, kind types.DocumentKind) ([]types.NarrativeUnit, error) {
	markers := detectMarkers(doc)
	if len(markers) == 0 {
		return s.aiSegment(ctx, doc, kind)
	}

	units := markersToUnits(doc, markers)
	if len(units) == 0 || units[0].Title != "" || units[0].Span.Len() < preambleSubdivideLen {
		return units, nil
	}

	preamble := units[0]
	sub, err := s.aiSegment(ctx, preamble.Text(doc), kind)
	if err != nil || len(sub) == 0 {
		// Preamble subdivision is best-effort; keep the single unit.
		return units, nil
	}
	for i := range sub {
		sub[i].Span.Start += preamble.Span.Start
		sub[i].Span.End += preamble.Span.Start
	}
	return append(sub, units[1:]...), nil
}

// markersToUnits converts detected markers into units whose spans tile
// the document. Unlabeled text before the first marker becomes a
// title-less preamble unit; blank-only preambles are folded into the
// first marked unit so coverage holds.
func markersToUnits(doc string, markers []marker) []types.NarrativeUnit {
	if len(markers) == 0 {
		return nil
	}

	var units []types.NarrativeUnit
	first := markers[0].pos
	if strings.TrimSpace(doc[:first]) != "" {
		units = append(units, types.NarrativeUnit{Span: types.Span{Start: 0, End: first}})
	} else {
		markers[0].pos = 0
	}

	for i, m := range markers {
		end := len(doc)
		if i+1 < len(markers) {
			end = markers[i+1].pos
		}
		units = append(units, types.NarrativeUnit{
			Title: m.title,
			Beat:  m.beat,
			Span:  types.Span{Start: m.pos, End: end},
		})
	}
	return units
}

// mergeDegenerate folds units with empty visible text into a neighbor so
// every surviving unit covers a non-empty span.
func mergeDegenerate(doc string, units []types.NarrativeUnit) []types.NarrativeUnit {
	var out []types.NarrativeUnit
	carryStart := -1
	for _, u := range units {
		if u.Span.Len() > 0 && strings.TrimSpace(u.Text(doc)) != "" {
			if carryStart >= 0 {
				u.Span.Start = carryStart
				carryStart = -1
			}
			out = append(out, u)
			continue
		}
		if len(out) > 0 {
			out[len(out)-1].Span.End = u.Span.End
		} else if carryStart < 0 {
			// Degenerate leading unit: its span is carried into the
			// first real unit so coverage holds.
			carryStart = u.Span.Start
		}
	}
	return out
}

// clampCount merges the smallest adjacent pair until the unit count fits
// under maxUnits.
func clampCount(units []types.NarrativeUnit, maxUnits int) []types.NarrativeUnit {
	for len(units) > maxUnits {
		best := 0
		bestLen := -1
		for i := 0; i+1 < len(units); i++ {
			combined := units[i].Span.Len() + units[i+1].Span.Len()
			if bestLen < 0 || combined < bestLen {
				best, bestLen = i, combined
			}
		}
		units[best].Span.End = units[best+1].Span.End
		if units[best].Title == "" {
			units[best].Title = units[best+1].Title
		}
		units = append(units[:best+1], units[best+2:]...)
	}
	return units
}

// padCount splits the largest units until the count reaches minUnits.
// A unit with no usable interior boundary is left whole, so a very
// short document may still come back under the minimum.
func padCount(doc string, units []types.NarrativeUnit, minUnits int) []types.NarrativeUnit {
	for len(units) < minUnits {
		best, at := -1, 0
		for i, u := range units {
			if best >= 0 && u.Span.Len() <= units[best].Span.Len() {
				continue
			}
			if p := splitPoint(doc, u.Span); p > 0 {
				best, at = i, p
			}
		}
		if best < 0 {
			break
		}

		head := units[best]
		tail := types.NarrativeUnit{
			Span:        types.Span{Start: at, End: head.Span.End},
			AISuggested: head.AISuggested,
		}
		head.Span.End = at
		units = append(units[:best+1], append([]types.NarrativeUnit{tail}, units[best+1:]...)...)
		units[best] = head
	}
	return units
}

// splitPoint returns a position strictly inside span that leaves
// non-blank text on both sides, preferring a paragraph break near the
// middle, then a line break, then a word break. Returns 0 when the
// span has no usable interior boundary.
func splitPoint(doc string, span types.Span) int {
	text := doc[span.Start:span.End]
	mid := len(text) / 2
	for _, sep := range []string{"\n\n", "\n", " "} {
		at := -1
		if i := strings.Index(text[mid:], sep); i >= 0 {
			at = mid + i + len(sep)
		} else if i := strings.LastIndex(text[:mid], sep); i >= 0 {
			at = i + len(sep)
		}
		if at <= 0 || at >= len(text) {
			continue
		}
		if strings.TrimSpace(text[:at]) == "" || strings.TrimSpace(text[at:]) == "" {
			continue
		}
		return span.Start + at
	}
	return 0
}

// renumber assigns ordinals and stable IDs in document order.
func renumber(units []types.NarrativeUnit) {
	for i := range units {
		units[i].Ordinal = i
		units[i].ID = fmt.Sprintf("unit-%03d", i+1)
	}
}
