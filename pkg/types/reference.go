// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"sort"
	"strings"
)

// ReferenceKind classifies a visual reference.
type ReferenceKind string

const (
	KindCharacter ReferenceKind = "character"
	KindLocation  ReferenceKind = "location"
	KindProp      ReferenceKind = "prop"
	KindWardrobe  ReferenceKind = "wardrobe"
)

// ValidReferenceKinds is the set of accepted ReferenceKind values.
var ValidReferenceKinds = map[ReferenceKind]bool{
	KindCharacter: true,
	KindLocation:  true,
	KindProp:      true,
	KindWardrobe:  true,
}

// Reference is one named entity reused across shots for visual consistency.
// The Handle is a stable @token (lowercase, alphanumeric and underscores,
// single leading @) unique within its ReferenceSet regardless of kind.
type Reference struct {
	Handle      string        `json:"handle" yaml:"handle"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        ReferenceKind `json:"kind" yaml:"kind"`
}

// ReferenceSet groups references by kind. It is immutable for the duration
// of one pipeline run; callers may edit it between runs.
type ReferenceSet struct {
	ByKind map[ReferenceKind][]Reference `json:"by_kind" yaml:"by_kind"`
}

// NewReferenceSet returns an empty ReferenceSet.
func NewReferenceSet() *ReferenceSet {
	return &ReferenceSet{ByKind: make(map[ReferenceKind][]Reference)}
}

// Add appends a reference under its kind. It returns an error if the kind
// is unknown or the handle already exists in the set.
func (rs *ReferenceSet) Add(ref Reference) error {
	if !ValidReferenceKinds[ref.Kind] {
		return fmt.Errorf("unknown reference kind %q", ref.Kind)
	}
	if rs.Has(ref.Handle) {
		return fmt.Errorf("duplicate handle %s", ref.Handle)
	}
	if rs.ByKind == nil {
		rs.ByKind = make(map[ReferenceKind][]Reference)
	}
	rs.ByKind[ref.Kind] = append(rs.ByKind[ref.Kind], ref)
	return nil
}

// Has reports whether handle exists in the set, in any kind.
func (rs *ReferenceSet) Has(handle string) bool {
	for _, refs := range rs.ByKind {
		for _, r := range refs {
			if r.Handle == handle {
				return true
			}
		}
	}
	return false
}

// Handles returns all handles in the set, sorted.
func (rs *ReferenceSet) Handles() []string {
	var handles []string
	for _, refs := range rs.ByKind {
		for _, r := range refs {
			handles = append(handles, r.Handle)
		}
	}
	sort.Strings(handles)
	return handles
}

// Len returns the total number of references across all kinds.
func (rs *ReferenceSet) Len() int {
	n := 0
	for _, refs := range rs.ByKind {
		n += len(refs)
	}
	return n
}

// IsEmpty reports whether the set contains no references.
func (rs *ReferenceSet) IsEmpty() bool {
	return rs == nil || rs.Len() == 0
}

// Describe renders the set as a compact listing for inclusion in prompts,
// one reference per line grouped by kind.
func (rs *ReferenceSet) Describe() string {
	var b strings.Builder
	for _, kind := range []ReferenceKind{KindCharacter, KindLocation, KindProp, KindWardrobe} {
		for _, r := range rs.ByKind[kind] {
			fmt.Fprintf(&b, "%s (%s): %s. %s\n", r.Handle, kind, r.Name, r.Description)
		}
	}
	return b.String()
}
