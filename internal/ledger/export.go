// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// ExportEntry holds a run with its violations and counts for export.
type ExportEntry struct {
	Run      `yaml:",inline"`
	Details  []types.Violation     `json:"details,omitempty" yaml:"details,omitempty"`
	Snapshot *types.StatusSnapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

// ExportYAML writes the most recent runs to w as YAML. A limit <= 0 exports
// every run.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer, limit int) error {
	entries, err := s.exportEntries(ctx, limit)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the most recent runs to w as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, limit int) error {
	entries, err := s.exportEntries(ctx, limit)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

func (s *Store) exportEntries(ctx context.Context, limit int) ([]ExportEntry, error) {
	runs, err := s.Runs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	entries := make([]ExportEntry, len(runs))
	for i, r := range runs {
		vs, err := s.Violations(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		snap, err := s.Snapshot(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		entries[i] = ExportEntry{Run: r, Details: vs, Snapshot: &snap}
	}
	return entries, nil
}
