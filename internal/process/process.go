// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package process defines the transition table of the review pipeline and
// the graph views over it used by the consistency checker and the status
// aggregator. The table is data: every operation-driven move of a record is
// one {trigger, source, dest} entry.
package process

import (
	"fmt"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Trigger names the operation that moves a record between two states.
type Trigger string

const (
	TriggerLoad       Trigger = "load"
	TriggerPrep       Trigger = "prep"
	TriggerPrepMan    Trigger = "prep_man"
	TriggerDedupe     Trigger = "dedupe"
	TriggerPrescreen  Trigger = "prescreen"
	TriggerPdfGet     Trigger = "pdf_get"
	TriggerPdfGetMan  Trigger = "pdf_get_man"
	TriggerPdfPrep    Trigger = "pdf_prep"
	TriggerPdfPrepMan Trigger = "pdf_prep_man"
	TriggerScreen     Trigger = "screen"
	TriggerData       Trigger = "data"
)

// Transition is one edge of the pipeline.
type Transition struct {
	Trigger Trigger
	Source  types.RecordState
	Dest    types.RecordState
}

func (t Transition) String() string {
	return fmt.Sprintf("%s: %s -> %s", t.Trigger, t.Source, t.Dest)
}

// Transitions is the pipeline table. Order matters to Graph.Predecessor:
// the last registered edge into a state wins.
var Transitions = []Transition{
	{TriggerLoad, types.MdRetrieved, types.MdImported},
	{TriggerPrep, types.MdImported, types.MdNeedsManualPreparation},
	{TriggerPrep, types.MdImported, types.MdPrepared},
	{TriggerPrepMan, types.MdNeedsManualPreparation, types.MdPrepared},
	{TriggerDedupe, types.MdPrepared, types.MdProcessed},
	{TriggerPrescreen, types.MdProcessed, types.RevPrescreenExcluded},
	{TriggerPrescreen, types.MdProcessed, types.RevPrescreenIncluded},
	{TriggerPdfGet, types.RevPrescreenIncluded, types.PdfImported},
	{TriggerPdfGet, types.RevPrescreenIncluded, types.PdfNeedsManualRetrieval},
	{TriggerPdfGetMan, types.PdfNeedsManualRetrieval, types.PdfNotAvailable},
	{TriggerPdfGetMan, types.PdfNeedsManualRetrieval, types.PdfImported},
	{TriggerPdfPrep, types.PdfImported, types.PdfNeedsManualPreparation},
	{TriggerPdfPrep, types.PdfImported, types.PdfPrepared},
	{TriggerPdfPrepMan, types.PdfNeedsManualPreparation, types.PdfPrepared},
	{TriggerScreen, types.PdfPrepared, types.RevExcluded},
	{TriggerScreen, types.PdfPrepared, types.RevIncluded},
	{TriggerData, types.RevIncluded, types.RevSynthesized},
}

// FindTransition returns the trigger of the edge source → dest in the
// default table. It reports false when source equals dest or no edge exists.
func FindTransition(source, dest types.RecordState) (Trigger, bool) {
	return findIn(Transitions, source, dest)
}

func findIn(table []Transition, source, dest types.RecordState) (Trigger, bool) {
	if source == dest {
		return "", false
	}
	for _, t := range table {
		if t.Source == source && t.Dest == dest {
			return t.Trigger, true
		}
	}
	return "", false
}

// ValidateTable checks that every endpoint is a valid state and that no two
// entries share a (source, dest) pair.
func ValidateTable(table []Transition) error {
	type edge struct{ source, dest types.RecordState }
	seen := make(map[edge]Trigger, len(table))
	for _, t := range table {
		if !t.Source.Valid() {
			return fmt.Errorf("transition %s: invalid source state", t)
		}
		if !t.Dest.Valid() {
			return fmt.Errorf("transition %s: invalid destination state", t)
		}
		if t.Source == t.Dest {
			return fmt.Errorf("transition %s: self loop", t)
		}
		e := edge{t.Source, t.Dest}
		if prev, ok := seen[e]; ok {
			return fmt.Errorf("duplicate edge %s -> %s (triggers %s and %s)", t.Source, t.Dest, prev, t.Trigger)
		}
		seen[e] = t.Trigger
	}
	return nil
}
