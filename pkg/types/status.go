// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Keys added to StatusSnapshot.Currently and StatusSnapshot.Overall in
// addition to the state names.
const (
	KeyNonCompleted      = "non_completed"
	KeyNonProcessed      = "non_processed"
	KeyDuplicatesRemoved = "md_duplicates_removed"
	KeyPdfNeedsRetrieval = "pdf_needs_retrieval"
	KeyRevScreen         = "rev_screen"
	KeyRevPrescreen      = "rev_prescreen"
)

// StatusSnapshot aggregates the state distribution of a record collection.
// It is recomputed on demand; the copy written to status.yaml is a cache for
// external inspection.
type StatusSnapshot struct {
	// Currently counts records sitting in each state.
	Currently map[string]int `json:"currently" yaml:"currently"`

	// Overall counts records that reached or passed each state.
	Overall map[string]int `json:"overall" yaml:"overall"`

	// Exclusion counts, per screening criterion, the records excluded by it.
	Exclusion map[string]int `json:"exclusion" yaml:"exclusion"`

	CuratedRecords       int `json:"curated_records" yaml:"curated_records"`
	AtomicSteps          int `json:"atomic_steps" yaml:"atomic_steps"`
	CompletedAtomicSteps int `json:"completed_atomic_steps" yaml:"completed_atomic_steps"`

	// CompletenessCondition is true when no stage has records left behind
	// and no retrieved search result is still waiting to be loaded.
	CompletenessCondition bool `json:"completeness_condition" yaml:"completeness_condition"`
}
