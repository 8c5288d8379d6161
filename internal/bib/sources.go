// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package bib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/review-engine/pkg/types"
)

// SourceIndex enumerates the origin-matchable entries of the registered
// search-result files. Origins are formatted as <file name>/<entry key>.
type SourceIndex struct {
	root    string
	sources []types.SearchSource
}

// NewSourceIndex returns an index over sources, whose filenames are
// resolved against the project root.
func NewSourceIndex(root string, sources []types.SearchSource) *SourceIndex {
	return &SourceIndex{root: root, sources: sources}
}

// Path returns the absolute path of a registered source file.
func (s *SourceIndex) Path(src types.SearchSource) string {
	if filepath.IsAbs(src.Filename) {
		return src.Filename
	}
	return filepath.Join(s.root, src.Filename)
}

// OriginKeys returns the set of origin strings available across all
// registered source files. Missing files contribute nothing; they are
// reported separately by the source setup check.
func (s *SourceIndex) OriginKeys() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	for _, src := range s.sources {
		ids, err := s.entryIDs(src)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(src.Filename)
		for _, id := range ids {
			keys[base+"/"+id] = struct{}{}
		}
	}
	return keys, nil
}

// EntryCount returns the number of entries across all registered source
// files: the number of records retrieved by the searches.
func (s *SourceIndex) EntryCount() (int, error) {
	n := 0
	for _, src := range s.sources {
		ids, err := s.entryIDs(src)
		if err != nil {
			return 0, err
		}
		n += len(ids)
	}
	return n, nil
}

func (s *SourceIndex) entryIDs(src types.SearchSource) ([]string, error) {
	f, err := os.Open(s.Path(src))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening search source %s: %w", src.Filename, err)
	}
	defer f.Close()

	ids, err := EntryKeys(f)
	if err != nil {
		return nil, fmt.Errorf("reading search source %s: %w", src.Filename, err)
	}
	return ids, nil
}
