// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package refs

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/storyboard-engine/pkg/types"
)

// LoadSet reads a ReferenceSet from a YAML file, validating kinds and
// handle uniqueness so a hand-edited file cannot smuggle duplicates into
// a run.
func LoadSet(path string) (*types.ReferenceSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading reference set: %w", err)
	}

	var raw types.ReferenceSet
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing reference set: %w", err)
	}

	set := types.NewReferenceSet()
	for kind, refs := range raw.ByKind {
		for _, r := range refs {
			if r.Kind == "" {
				r.Kind = kind
			}
			if r.Handle == "" {
				r.Handle = NormalizeHandle(r.Name)
			}
			if err := set.Add(r); err != nil {
				return nil, fmt.Errorf("reference set %s: %w", path, err)
			}
		}
	}
	return set, nil
}

// SaveSet writes a ReferenceSet to a YAML file so it can be edited
// between runs.
func SaveSet(path string, set *types.ReferenceSet) error {
	data, err := yaml.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshaling reference set: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
