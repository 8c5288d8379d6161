// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package status aggregates the state distribution of a record collection
// and maintains the status.yaml summary written alongside every commit.
package status

import (
	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/internal/process"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Atomic step weights: each record passes through ten steps, fewer when it
// leaves the pipeline early.
const (
	stepsPerRecord          = 10
	stepsSavedByDuplicate   = 8
	stepsSavedByPrescreen   = 7
	stepsSavedByUnavailable = 6
)

// Aggregator computes StatusSnapshots by walking the transition graph.
type Aggregator struct {
	logger *zap.Logger
	graph  *process.Graph
}

// NewAggregator returns an Aggregator over graph. A nil graph uses the
// default transition table.
func NewAggregator(logger *zap.Logger, graph *process.Graph) *Aggregator {
	if graph == nil {
		graph = process.DefaultGraph()
	}
	return &Aggregator{logger: logging.OrNop(logger), graph: graph}
}

// Aggregate computes the snapshot of records. retrieved is the number of
// entries across the search sources; criteria are the configured screening
// criterion names. When curatedMasterdata is set every processed record
// counts as curated.
func (a *Aggregator) Aggregate(records types.RecordCollection, retrieved int, criteria []string, curatedMasterdata bool) types.StatusSnapshot {
	currently := make(map[types.RecordState]int)
	overall := make(map[types.RecordState]int)
	for _, s := range types.AllRecordStates() {
		currently[s] = 0
		overall[s] = 0
	}
	for _, r := range records.Records {
		if !r.Status.Valid() {
			a.logger.Debug("ignoring record with invalid status",
				zap.String("id", r.ID), zap.String("status", string(r.Status)))
			continue
		}
		currently[r.Status]++
		overall[r.Status]++
	}

	duplicates := records.DuplicatesRemoved()
	w := a.walk(currently, overall, duplicates)

	snap := types.StatusSnapshot{
		Currently: make(map[string]int),
		Overall:   make(map[string]int),
		Exclusion: make(map[string]int),
	}
	nonProcessed := currently[types.MdImported] + currently[types.MdRetrieved] +
		currently[types.MdNeedsManualPreparation] + currently[types.MdPrepared]

	currently[types.MdRetrieved] = max(retrieved-records.OriginCount(), 0)
	overall[types.MdRetrieved] = retrieved

	for s, n := range currently {
		snap.Currently[string(s)] = n
	}
	for s, n := range overall {
		snap.Overall[string(s)] = n
	}
	snap.Currently[types.KeyNonCompleted] = w.nonCompleted
	snap.Currently[types.KeyNonProcessed] = nonProcessed
	snap.Currently[types.KeyDuplicatesRemoved] = duplicates
	snap.Currently[types.KeyPdfNeedsRetrieval] = currently[types.RevPrescreenIncluded]
	snap.Overall[types.KeyRevScreen] = overall[types.PdfPrepared]
	snap.Overall[types.KeyRevPrescreen] = overall[types.MdProcessed]

	snap.CompletenessCondition = w.incomplete == 0 && currently[types.MdRetrieved] == 0

	for _, c := range criteria {
		snap.Exclusion[c] = 0
	}
	for _, r := range records.Records {
		for name, decision := range r.ScreeningDecisions() {
			if decision != "out" {
				continue
			}
			if _, ok := snap.Exclusion[name]; !ok {
				a.logger.Debug("decision on unconfigured criterion",
					zap.String("id", r.ID), zap.String("criterion", name))
				continue
			}
			snap.Exclusion[name]++
		}
	}

	if curatedMasterdata {
		snap.CuratedRecords = overall[types.MdProcessed]
	} else {
		for _, r := range records.Records {
			if r.IsCurated() {
				snap.CuratedRecords++
			}
		}
	}

	snap.AtomicSteps = stepsPerRecord*overall[types.MdImported] -
		stepsSavedByDuplicate*duplicates -
		stepsSavedByPrescreen*currently[types.RevPrescreenExcluded] -
		stepsSavedByUnavailable*currently[types.PdfNotAvailable] -
		currently[types.RevExcluded] -
		currently[types.RevSynthesized]
	snap.CompletedAtomicSteps = w.completedSteps
	return snap
}

type walkResult struct {
	incomplete     int
	nonCompleted   int
	completedSteps int
}

// walk turns per-state counts in overall into cumulative counts. Starting at
// rev_synthesized and stepping back through Predecessor until md_imported,
// each state absorbs the overall counts of every state reachable from it
// that no earlier step has claimed. Merged duplicates are folded into
// md_prepared. Records sitting in the source of any edge into a visited
// state count as incomplete.
func (a *Aggregator) walk(currently, overall map[types.RecordState]int, duplicates int) walkResult {
	var res walkResult
	visited := make(map[types.RecordState]bool)
	state := types.RevSynthesized

	for range types.AllRecordStates() {
		if state == types.MdPrepared {
			overall[state] += duplicates
		}

		consider := map[types.RecordState]bool{state: true}
		for {
			var next []process.Transition
			for _, t := range a.graph.Transitions() {
				if consider[t.Source] && !visited[t.Dest] {
					next = append(next, t)
				}
			}
			if len(next) == 0 {
				break
			}
			for _, t := range next {
				a.logger.Debug("add successor count",
					zap.String("state", string(state)),
					zap.String("from", string(t.Dest)),
					zap.Int("count", overall[t.Dest]),
					zap.String("trigger", string(t.Trigger)))
				overall[state] += overall[t.Dest]
				visited[t.Dest] = true
				consider[t.Dest] = true
			}
			res.completedSteps += overall[next[len(next)-1].Dest]
		}

		for _, t := range a.graph.Incoming(state) {
			res.incomplete += currently[t.Source]
		}
		if state == types.MdImported {
			break
		}
		prev, ok := a.graph.Predecessor(state)
		if !ok {
			break
		}
		state = prev
		res.nonCompleted += currently[state]
	}
	return res
}
