// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package status

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Marshal renders s as the status.yaml document.
func Marshal(s types.StatusSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&s); err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes s to path.
func WriteFile(path string, s types.StatusSnapshot) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// ReadFile reads a status.yaml written by WriteFile.
func ReadFile(path string) (types.StatusSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.StatusSnapshot{}, fmt.Errorf("reading status file: %w", err)
	}
	var s types.StatusSnapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return types.StatusSnapshot{}, fmt.Errorf("parsing status file: %w", err)
	}
	return s, nil
}

// Stale reports whether the file at path differs from s. A missing file is
// stale.
func Stale(path string, s types.StatusSnapshot) (bool, error) {
	want, err := Marshal(s)
	if err != nil {
		return false, err
	}
	got, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading status file: %w", err)
	}
	return !bytes.Equal(got, want), nil
}
