// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// RecordState is the processing status of a record in the review pipeline.
// The set of values is closed; anything else found in a records file is a
// data-integrity error.
type RecordState string

const (
	MdRetrieved               RecordState = "md_retrieved"
	MdImported                RecordState = "md_imported"
	MdNeedsManualPreparation  RecordState = "md_needs_manual_preparation"
	MdPrepared                RecordState = "md_prepared"
	MdProcessed               RecordState = "md_processed"
	RevPrescreenExcluded      RecordState = "rev_prescreen_excluded"
	RevPrescreenIncluded      RecordState = "rev_prescreen_included"
	PdfNeedsManualRetrieval   RecordState = "pdf_needs_manual_retrieval"
	PdfImported               RecordState = "pdf_imported"
	PdfNotAvailable           RecordState = "pdf_not_available"
	PdfNeedsManualPreparation RecordState = "pdf_needs_manual_preparation"
	PdfPrepared               RecordState = "pdf_prepared"
	RevExcluded               RecordState = "rev_excluded"
	RevIncluded               RecordState = "rev_included"
	RevSynthesized            RecordState = "rev_synthesized"
)

// stages ranks each state along the pipeline. Alternative outcomes of the
// same operation share a rank.
var stages = map[RecordState]int{
	MdRetrieved:               0,
	MdImported:                1,
	MdNeedsManualPreparation:  2,
	MdPrepared:                3,
	MdProcessed:               4,
	RevPrescreenExcluded:      5,
	RevPrescreenIncluded:      5,
	PdfNeedsManualRetrieval:   6,
	PdfImported:               7,
	PdfNotAvailable:           7,
	PdfNeedsManualPreparation: 8,
	PdfPrepared:               9,
	RevExcluded:               10,
	RevIncluded:               10,
	RevSynthesized:            11,
}

// AllRecordStates returns every state in pipeline order.
func AllRecordStates() []RecordState {
	return []RecordState{
		MdRetrieved,
		MdImported,
		MdNeedsManualPreparation,
		MdPrepared,
		MdProcessed,
		RevPrescreenExcluded,
		RevPrescreenIncluded,
		PdfNeedsManualRetrieval,
		PdfImported,
		PdfNotAvailable,
		PdfNeedsManualPreparation,
		PdfPrepared,
		RevExcluded,
		RevIncluded,
		RevSynthesized,
	}
}

// Valid reports whether s is a member of the enumeration.
func (s RecordState) Valid() bool {
	_, ok := stages[s]
	return ok
}

// Stage returns the pipeline rank of s, or -1 for an invalid state.
func (s RecordState) Stage() int {
	if r, ok := stages[s]; ok {
		return r
	}
	return -1
}

// AtOrBeyond reports whether s has reached the stage of other. Invalid
// states are never at or beyond anything.
func (s RecordState) AtOrBeyond(other RecordState) bool {
	if !s.Valid() || !other.Valid() {
		return false
	}
	return s.Stage() >= other.Stage()
}


