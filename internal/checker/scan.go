// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checker

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/bib"
)

// scanForID walks the project tree for places that still mention oldID:
// file and directory names, entry keys of .bib files and lines of other text
// files. Paths containing an ignore fragment and the records file are
// skipped.
func (k *Checker) scanForID(oldID, newID string) ([]string, error) {
	if k.opts.Root == "" {
		return nil, nil
	}
	var notes []string
	note := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		if !slices.Contains(notes, msg) {
			notes = append(notes, msg)
		}
	}

	err := filepath.WalkDir(k.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(k.opts.Root, path)
		if err != nil || rel == "." {
			return err
		}
		if k.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.Contains(d.Name(), oldID) {
				note("Old ID (%s, changed to %s in the records file) found in filepath: %s", oldID, newID, rel)
			}
			return nil
		}
		if k.opts.RecordsFile != "" && filepath.Clean(rel) == filepath.Clean(k.opts.RecordsFile) {
			return nil
		}
		if strings.Contains(d.Name(), oldID) {
			note("Old ID (%s, changed to %s in the records file) found in filepath: %s", oldID, newID, rel)
		}
		if !k.textFile(d.Name()) {
			k.logger.Debug("skipping", zap.String("path", rel))
			return nil
		}
		found, err := fileMentions(path, oldID)
		if err != nil {
			k.logger.Warn("skipping unreadable file in id scan", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if found {
			note("Old ID (%s, changed to %s in the records file) found in file: %s", oldID, newID, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning project for %s: %w", oldID, err)
	}
	return notes, nil
}

func (k *Checker) ignored(rel string) bool {
	for _, frag := range k.opts.ScanIgnore {
		if frag != "" && strings.Contains(rel, frag) {
			return true
		}
	}
	return false
}

func (k *Checker) textFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(k.opts.TextFormats, ext)
}

// fileMentions reports whether path mentions id. For .bib files only entry
// keys count.
func fileMentions(path, id string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".bib") {
		keys, err := bib.EntryKeys(f)
		if err != nil {
			return false, err
		}
		return slices.Contains(keys, id), nil
	}

	return streamContains(bufio.NewReader(f), id)
}

// streamContains searches r for id in fixed-size chunks, carrying the tail
// of each chunk over so matches across chunk boundaries are found. Line
// length does not matter.
func streamContains(r io.Reader, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	buf := make([]byte, 64*1024)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			window := append(carry, buf[:n]...)
			if bytes.Contains(window, []byte(id)) {
				return true, nil
			}
			keep := min(len(id)-1, len(window))
			carry = append(carry[:0], window[len(window)-keep:]...)
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
