// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"fmt"
	"strings"
)

// NormalizeHandle derives a stable @handle from a display name: lowercase,
// runs of non-alphanumeric characters collapsed to a single underscore,
// leading and trailing underscores stripped, single leading @. An empty
// result falls back to "ref".
func NormalizeHandle(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	h := strings.Trim(b.String(), "_")
	if h == "" {
		h = "ref"
	}
	return "@" + h
}

// UniqueHandle returns NormalizeHandle(name), disambiguated with a numeric
// suffix when the handle is already taken.
func UniqueHandle(name string, taken map[string]bool) string {
	h := NormalizeHandle(name)
	if !taken[h] {
		return h
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", h, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
