// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package process

import (
	"fmt"

	"github.com/pdiddy/review-engine/pkg/types"
)

// Graph indexes a transition table by source and by destination so walks
// do not rescan the table at every step.
type Graph struct {
	table    []Transition
	outgoing map[types.RecordState][]Transition
	incoming map[types.RecordState][]Transition
}

// NewGraph validates table and builds its adjacency index.
func NewGraph(table []Transition) (*Graph, error) {
	if err := ValidateTable(table); err != nil {
		return nil, err
	}
	g := &Graph{
		table:    table,
		outgoing: make(map[types.RecordState][]Transition),
		incoming: make(map[types.RecordState][]Transition),
	}
	for _, t := range table {
		g.outgoing[t.Source] = append(g.outgoing[t.Source], t)
		g.incoming[t.Dest] = append(g.incoming[t.Dest], t)
	}
	return g, nil
}

// DefaultGraph returns the graph over Transitions.
func DefaultGraph() *Graph {
	g, err := NewGraph(Transitions)
	if err != nil {
		panic(fmt.Sprintf("process: invalid transition table: %v", err))
	}
	return g
}

// Find returns the trigger of the edge source → dest.
func (g *Graph) Find(source, dest types.RecordState) (Trigger, bool) {
	if source == dest {
		return "", false
	}
	for _, t := range g.outgoing[source] {
		if t.Dest == dest {
			return t.Trigger, true
		}
	}
	return "", false
}

// Transitions returns the edges in table order.
func (g *Graph) Transitions() []Transition {
	return g.table
}

// Incoming returns the edges entering s in table order.
func (g *Graph) Incoming(s types.RecordState) []Transition {
	return g.incoming[s]
}

// Predecessor returns the source of the last registered edge into s. For
// states with a manual-handling branch this is the manual state, so a
// backward walk passes through it.
func (g *Graph) Predecessor(s types.RecordState) (types.RecordState, bool) {
	in := g.incoming[s]
	if len(in) == 0 {
		return "", false
	}
	return in[len(in)-1].Source, true
}
