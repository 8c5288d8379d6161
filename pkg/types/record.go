// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the review pipeline:
// records and their states, violations reported by the consistency checker,
// status snapshots, and project settings.
package types

import (
	"sort"
	"strings"
)

// NotApplicable is the sentinel stored in screening_criteria when no
// screening decision applies to a record.
const NotApplicable = "NA"

// curatedPrefix marks masterdata taken from a curated source.
const curatedPrefix = "CURATED:"

// Provenance records where a field value came from and any quality note
// attached to it.
type Provenance struct {
	Source string `json:"source" yaml:"source"`
	Note   string `json:"note,omitempty" yaml:"note,omitempty"`
}

// Record is one bibliographic item tracked through the review pipeline.
type Record struct {
	// ID is the citation key. It must stay stable once the record reaches
	// md_processed.
	ID string `json:"id" yaml:"id"`

	// EntryType is the BibTeX entry type (article, inproceedings, ...).
	EntryType string `json:"entry_type" yaml:"entry_type"`

	// Status is kept as read, even when it is not a valid state, so the
	// checker can report it.
	Status RecordState `json:"status" yaml:"status"`

	// Origin lists the search-result entries this record was merged from,
	// each formatted as sourcefile.bib/entry_key.
	Origin []string `json:"origin" yaml:"origin"`

	MasterdataProvenance map[string]Provenance `json:"masterdata_provenance,omitempty" yaml:"masterdata_provenance,omitempty"`
	DataProvenance       map[string]Provenance `json:"data_provenance,omitempty" yaml:"data_provenance,omitempty"`

	// ScreeningCriteria holds name=in|out decisions joined by ";", or NA.
	ScreeningCriteria string `json:"screening_criteria,omitempty" yaml:"screening_criteria,omitempty"`

	// File is the path of the attached PDF, if any.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
	Author string `json:"author,omitempty" yaml:"author,omitempty"`
	Year   string `json:"year,omitempty" yaml:"year,omitempty"`

	// Extra holds every other bibliographic field.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// HasOrigin reports whether the record carries at least one non-empty origin.
func (r Record) HasOrigin() bool {
	for _, o := range r.Origin {
		if strings.TrimSpace(o) != "" {
			return true
		}
	}
	return false
}

// HasScreeningCriteria reports whether a screening decision is recorded.
func (r Record) HasScreeningCriteria() bool {
	c := strings.TrimSpace(r.ScreeningCriteria)
	return c != "" && c != NotApplicable
}

// ScreeningDecisions parses the screening_criteria field into
// criterion → decision pairs. Malformed parts are skipped.
func (r Record) ScreeningDecisions() map[string]string {
	out := make(map[string]string)
	if !r.HasScreeningCriteria() {
		return out
	}
	for _, part := range strings.Split(r.ScreeningCriteria, ";") {
		name, decision, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" {
			continue
		}
		out[name] = decision
	}
	return out
}

// IsCurated reports whether any masterdata field was taken from a curated
// source.
func (r Record) IsCurated() bool {
	for _, p := range r.MasterdataProvenance {
		if strings.HasPrefix(p.Source, curatedPrefix) {
			return true
		}
	}
	return false
}

// RecordCollection is the full set of records of a project at one point in
// time, in file order.
type RecordCollection struct {
	Records []Record `json:"records" yaml:"records"`
}

// Len returns the number of records.
func (c RecordCollection) Len() int {
	return len(c.Records)
}

// IDs returns the record ids in file order.
func (c RecordCollection) IDs() []string {
	ids := make([]string, len(c.Records))
	for i, r := range c.Records {
		ids[i] = r.ID
	}
	return ids
}

// OriginCount returns the total number of origin links across all records.
func (c RecordCollection) OriginCount() int {
	n := 0
	for _, r := range c.Records {
		n += len(r.Origin)
	}
	return n
}

// DuplicatesRemoved returns the number of input records that were merged
// into another record during deduplication.
func (c RecordCollection) DuplicatesRemoved() int {
	n := 0
	for _, r := range c.Records {
		if len(r.Origin) > 1 {
			n += len(r.Origin) - 1
		}
	}
	return n
}

// Statuses returns the distinct status values present, sorted.
func (c RecordCollection) Statuses() []RecordState {
	seen := make(map[RecordState]bool)
	for _, r := range c.Records {
		seen[r.Status] = true
	}
	out := make([]RecordState, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
