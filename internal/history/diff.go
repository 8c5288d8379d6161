// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/pdiddy/review-engine/internal/bib"
)

// Diff returns the unified diff of path between HEAD and the work tree, or
// nil when the file is unchanged.
func (g *Git) Diff(ctx context.Context, path string) (*diff.FileDiff, error) {
	out, err := g.run(ctx, "diff", "--no-color", "--no-ext-diff", "-U0", "HEAD", "--", gitPath(path))
	if err != nil {
		return nil, fmt.Errorf("diffing %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil, nil
	}
	fd, err := diff.ParseFileDiff(out)
	if err != nil {
		return nil, fmt.Errorf("parsing diff of %s: %w", path, err)
	}
	return fd, nil
}

// ChangedRecordIDs returns the sorted keys of the entries of the records
// file that were added, removed or edited since HEAD. Without history every
// entry counts as changed.
func (g *Git) ChangedRecordIDs(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(filepath.Join(g.root, path))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	headers, err := bib.EntryHeaders(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	if _, err := g.HeadCommit(ctx); err != nil {
		if !errors.Is(err, ErrNoHistory) {
			return nil, err
		}
		keys := make([]string, 0, len(headers))
		for _, h := range headers {
			keys = append(keys, h.Key)
		}
		return uniqueSorted(keys), nil
	}

	fd, err := g.Diff(ctx, path)
	if err != nil || fd == nil {
		return nil, err
	}
	return changedKeys(fd, headers), nil
}

// changedKeys maps hunks onto the entries enclosing the touched lines of
// the new file, plus the keys of entry headers appearing in removed lines.
func changedKeys(fd *diff.FileDiff, headers []bib.Header) []string {
	enclosing := func(line int) (string, bool) {
		i := sort.Search(len(headers), func(i int) bool { return headers[i].Line > line })
		if i == 0 {
			return "", false
		}
		return headers[i-1].Key, true
	}

	var keys []string
	for _, h := range fd.Hunks {
		start := int(h.NewStartLine)
		end := start + int(h.NewLines) - 1
		if h.NewLines == 0 {
			end = start
		}
		for l := start; l <= end; l++ {
			if k, ok := enclosing(l); ok {
				keys = append(keys, k)
			}
		}
		for _, line := range strings.Split(string(h.Body), "\n") {
			if !strings.HasPrefix(line, "-") {
				continue
			}
			if hd, ok := bib.ParseHeader(strings.TrimPrefix(line, "-")); ok {
				keys = append(keys, hd.Key)
			}
		}
	}
	return uniqueSorted(keys)
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
