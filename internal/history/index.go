// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"sort"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Entry is what the prior snapshot knew about one origin.
type Entry struct {
	Origin string
	Status types.RecordState
	ID     string
}

// Index maps each origin of the prior snapshot to the status and id of the
// record that carried it. A nil *Index behaves as an empty one.
type Index struct {
	byOrigin map[string]Entry
	order    []string
}

// NewIndex builds the origin index of prior. When two prior records share an
// origin the first one is kept.
func NewIndex(prior types.RecordCollection) *Index {
	x := &Index{byOrigin: make(map[string]Entry)}
	for _, r := range prior.Records {
		for _, o := range r.Origin {
			if _, ok := x.byOrigin[o]; ok {
				continue
			}
			x.byOrigin[o] = Entry{Origin: o, Status: r.Status, ID: r.ID}
			x.order = append(x.order, o)
		}
	}
	return x
}

// Len returns the number of indexed origins.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.order)
}

// Get returns the prior entry for a single origin.
func (x *Index) Get(origin string) (Entry, bool) {
	if x == nil {
		return Entry{}, false
	}
	e, ok := x.byOrigin[origin]
	return e, ok
}

// Lookup returns the prior entry for a record with the given origins. When
// the origins map to different prior records, the most advanced prior stage
// wins; among equal stages the first origin in record order is kept.
func (x *Index) Lookup(origins []string) (Entry, bool) {
	var best Entry
	found := false
	for _, o := range origins {
		e, ok := x.Get(o)
		if !ok {
			continue
		}
		if !found || e.Status.Stage() > best.Status.Stage() {
			best = e
			found = true
		}
	}
	return best, found
}

// PersistedIDs returns the entries whose prior status is at or beyond
// md_processed, sorted by origin. From that stage on the record id is
// referenced outside the records file and must not change.
func (x *Index) PersistedIDs() []Entry {
	if x == nil {
		return nil
	}
	var out []Entry
	for _, o := range x.order {
		e := x.byOrigin[o]
		if e.Status.AtOrBeyond(types.MdProcessed) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}
