// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package segment

import (
	"regexp"
	"strings"
)

// marker is one explicit structural boundary found in the document.
type marker struct {
	pos   int    // byte offset of the marker line
	title string // heading text or section label
	beat  string // section type for lyrics labels ("verse", "chorus", ...)
}

var (
	headingPattern = regexp.MustCompile(`(?m)^#{1,3}[ \t]+(.+)$`)
	chapterPattern = regexp.MustCompile(`(?mi)^chapter[ \t]+([0-9ivxlc]+|\w+)[.:]?[ \t]*(.*)$`)
	labelPattern   = regexp.MustCompile(`(?m)^\[([^\[\]\n]+)\][ \t]*$`)
)

// detectMarkers finds explicit structural markers already present in the
// text: Markdown headings, "Chapter N" lines, and bracketed section
// labels like "[Verse 1]". Results are in document order.
func detectMarkers(doc string) []marker {
	var markers []marker

	for _, m := range headingPattern.FindAllStringSubmatchIndex(doc, -1) {
		markers = append(markers, marker{
			pos:   m[0],
			title: strings.TrimSpace(doc[m[2]:m[3]]),
		})
	}
	for _, m := range chapterPattern.FindAllStringSubmatchIndex(doc, -1) {
		title := strings.TrimSpace(doc[m[0]:m[1]])
		if sub := strings.TrimSpace(doc[m[4]:m[5]]); sub != "" {
			title = sub
		}
		markers = append(markers, marker{pos: m[0], title: title})
	}
	for _, m := range labelPattern.FindAllStringSubmatchIndex(doc, -1) {
		label := strings.TrimSpace(doc[m[2]:m[3]])
		markers = append(markers, marker{
			pos:   m[0],
			title: label,
			beat:  labelBeat(label),
		})
	}

	sortMarkers(markers)
	return dedupeMarkers(markers)
}

// labelBeat maps a bracket label to a section type: "[Verse 1]" → "verse".
func labelBeat(label string) string {
	fields := strings.Fields(strings.ToLower(label))
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "verse", "chorus", "bridge", "intro", "outro", "pre-chorus", "hook", "refrain", "interlude", "drop", "breakdown":
		return fields[0]
	}
	return ""
}

func sortMarkers(markers []marker) {
	// Insertion sort; marker counts are tiny.
	for i := 1; i < len(markers); i++ {
		for j := i; j > 0 && markers[j].pos < markers[j-1].pos; j-- {
			markers[j], markers[j-1] = markers[j-1], markers[j]
		}
	}
}

// dedupeMarkers drops markers that matched more than one pattern at the
// same offset.
func dedupeMarkers(markers []marker) []marker {
	var out []marker
	for _, m := range markers {
		if len(out) > 0 && out[len(out)-1].pos == m.pos {
			continue
		}
		out = append(out, m)
	}
	return out
}
