// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// ExportYAML writes one run to w as YAML, suitable for hand editing or
// feeding downstream tooling.
func (s *Store) ExportYAML(ctx context.Context, id string, w io.Writer) error {
	run, err := s.Load(ctx, id)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", id, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}
