// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// DocumentKind distinguishes prose stories from song lyrics.
type DocumentKind string

const (
	DocStory  DocumentKind = "story"
	DocLyrics DocumentKind = "lyrics"
)

// DetectionMode selects how the segmenter finds unit boundaries.
type DetectionMode string

const (
	// ModeExisting uses structural markers already present in the text
	// (headings, "Chapter N", "[Verse 1]"). Falls back to ModeAI when
	// none are found.
	ModeExisting DetectionMode = "existing"

	// ModeAI asks the generator to propose a partition of the document.
	ModeAI DetectionMode = "ai-generated"

	// ModeHybrid keeps explicit markers and AI-fills only unlabeled spans.
	ModeHybrid DetectionMode = "hybrid"
)

// Span is a contiguous byte range [Start, End) of the input document.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// NarrativeUnit is one segment of the input document: a chapter of a story
// or a section of a song. Units are totally ordered by Ordinal. Spans are
// non-overlapping and tile the document when detection mode is "existing".
type NarrativeUnit struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
	Span    Span   `json:"span" yaml:"span"`

	// Beat is the narrative beat for story chapters (e.g. "inciting
	// incident") or the section type for lyrics (e.g. "chorus").
	Beat string `json:"beat,omitempty" yaml:"beat,omitempty"`

	// Energy is a free-form intensity note for music sections.
	Energy string `json:"energy,omitempty" yaml:"energy,omitempty"`

	// AISuggested marks units proposed by the generator rather than
	// detected from explicit markers.
	AISuggested bool `json:"ai_suggested,omitempty" yaml:"ai_suggested,omitempty"`
}

// Text returns the substring of doc the unit covers. Out-of-range spans
// are clamped rather than panicking.
func (u NarrativeUnit) Text(doc string) string {
	start, end := u.Span.Start, u.Span.End
	if start < 0 {
		start = 0
	}
	if end > len(doc) {
		end = len(doc)
	}
	if start >= end {
		return ""
	}
	return doc[start:end]
}
