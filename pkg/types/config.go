// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TransitionPolicy decides how invalid state transitions affect a commit.
type TransitionPolicy string

const (
	// TransitionWarn reports invalid transitions without blocking.
	TransitionWarn TransitionPolicy = "warn"
	// TransitionBlock treats invalid transitions as blocking errors.
	TransitionBlock TransitionPolicy = "block"
)

// ProjectConfig holds the file layout of a review project.
type ProjectConfig struct {
	// Title is the review title shown in reports.
	Title string `json:"title" yaml:"title"`

	// RecordsFile is the BibTeX file holding the record collection (default records.bib).
	RecordsFile string `json:"records_file" yaml:"records_file" validate:"required"`

	// StatusFile is the status summary written alongside every commit (default status.yaml).
	StatusFile string `json:"status_file" yaml:"status_file" validate:"required"`

	// SearchDir is the directory holding raw search results (default search).
	SearchDir string `json:"search_dir" yaml:"search_dir" validate:"required"`

	// CuratedMasterdata marks a curated project: every processed record
	// counts as curated.
	CuratedMasterdata bool `json:"curated_masterdata" yaml:"curated_masterdata"`
}

// SearchSource is a registered raw search-result file.
type SearchSource struct {
	// Filename is the path of the .bib file relative to the project root
	// (e.g. "search/scopus.bib").
	Filename string `json:"filename" yaml:"filename" validate:"required"`

	// Endpoint names the connector that produced the file.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// SearchType is DB, TOC, BACKWARD_SEARCH, FORWARD_SEARCH or OTHER.
	SearchType string `json:"search_type,omitempty" yaml:"search_type,omitempty" validate:"omitempty,oneof=DB TOC BACKWARD_SEARCH FORWARD_SEARCH OTHER"`
}

// ScreenCriterion is one named inclusion dimension applied during screen.
type ScreenCriterion struct {
	Name        string `json:"name" yaml:"name" validate:"required,criterion"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// ScreenConfig holds the screening criteria in their configured order.
type ScreenConfig struct {
	Criteria []ScreenCriterion `json:"criteria" yaml:"criteria" validate:"unique=Name,dive"`
}

// CheckConfig holds settings for the consistency checker.
type CheckConfig struct {
	// TransitionPolicy is warn (default) or block.
	TransitionPolicy TransitionPolicy `json:"transition_policy" yaml:"transition_policy" validate:"oneof=warn block"`

	// ScanIgnore lists path fragments skipped by the propagated-id scan.
	ScanIgnore []string `json:"scan_ignore" yaml:"scan_ignore"`

	// TextFormats lists the file extensions whose content is scanned.
	TextFormats []string `json:"text_formats" yaml:"text_formats"`
}

// LedgerConfig holds settings for the run ledger.
type LedgerConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" validate:"required_if=Enabled true"`
}

// Settings groups the configuration of a review project, read from
// settings.yaml at the project root.
type Settings struct {
	Project ProjectConfig  `json:"project" yaml:"project"`
	Sources []SearchSource `json:"sources" yaml:"sources" validate:"dive"`
	Screen  ScreenConfig   `json:"screen" yaml:"screen"`
	Check   CheckConfig    `json:"check" yaml:"check"`
	Ledger  LedgerConfig   `json:"ledger" yaml:"ledger"`
}

// CriteriaNames returns the screening criterion names in configured order.
func (s Settings) CriteriaNames() []string {
	names := make([]string, len(s.Screen.Criteria))
	for i, c := range s.Screen.Criteria {
		names[i] = c.Name
	}
	return names
}
