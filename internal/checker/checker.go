// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package checker validates a record collection against the invariants of
// a review project and reports every violation it finds.
package checker

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/history"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/internal/process"
	"github.com/pdiddy/review-engine/pkg/types"
)

// SourceIndex enumerates the origins available in the registered search
// sources.
type SourceIndex interface {
	OriginKeys() (map[string]struct{}, error)
}

// Options is the environment a Checker runs in. Zero values disable the
// rules that depend on them: a nil Sources skips broken-origin detection and
// an empty Root skips the project scan and the source file checks.
type Options struct {
	Logger *zap.Logger

	// Criteria are the screening criterion names in configured order.
	Criteria []string

	Sources SourceIndex

	// Registered are the configured search sources, checked against
	// SearchDir.
	Registered []types.SearchSource
	SearchDir  string

	// Root is the project directory scanned for stale ids.
	Root string

	// RecordsFile is excluded from the stale id scan.
	RecordsFile string

	// Graph is the transition graph; nil uses the default table.
	Graph *process.Graph

	Policy      types.TransitionPolicy
	ScanIgnore  []string
	TextFormats []string
}

// Checker runs the rule battery over a record collection.
type Checker struct {
	opts   Options
	logger *zap.Logger
	graph  *process.Graph
}

// New returns a Checker for opts.
func New(opts Options) *Checker {
	if opts.Policy == "" {
		opts.Policy = types.TransitionWarn
	}
	graph := opts.Graph
	if graph == nil {
		graph = process.DefaultGraph()
	}
	return &Checker{opts: opts, logger: logging.OrNop(opts.Logger), graph: graph}
}

// rule inspects the collection and appends what it finds.
type rule struct {
	name string
	run  func(c *run) error
}

// run carries the state of one Check invocation.
type run struct {
	current    types.RecordCollection
	prior      *history.Index
	violations []types.Violation
	seen       map[string]struct{}
}

func (r *run) add(v types.Violation) {
	key := string(v.Kind) + "\x00" + v.Detail
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.violations = append(r.violations, v)
}

// Check runs every rule over current and returns all violations found. A nil
// prior skips the rules that compare against history. The error is reserved
// for setup failures such as unreadable search sources.
func (k *Checker) Check(current types.RecordCollection, prior *history.Index) ([]types.Violation, error) {
	rules := []rule{
		{"origins", k.checkOrigins},
		{"duplicate ids", k.checkDuplicateIDs},
		{"status vocabulary", k.checkStatusVocabulary},
		{"transitions", k.checkTransitions},
		{"screening criteria", k.checkScreeningCriteria},
		{"propagated ids", k.checkPropagatedIDs},
		{"sources", k.checkSources},
	}

	r := &run{current: current, prior: prior, seen: make(map[string]struct{})}
	for _, rl := range rules {
		before := len(r.violations)
		if err := rl.run(r); err != nil {
			return nil, fmt.Errorf("checking %s: %w", rl.name, err)
		}
		k.logger.Debug("rule checked",
			zap.String("rule", rl.name),
			zap.Int("violations", len(r.violations)-before))
	}
	return r.violations, nil
}

// Blocking returns the violations that prevent a commit.
func Blocking(vs []types.Violation) []types.Violation {
	var out []types.Violation
	for _, v := range vs {
		if v.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// PropagatedIDChangeError aborts an operation because the id of a processed
// record changed. Notifications list every place that still mentions an old
// id.
type PropagatedIDChangeError struct {
	Violations    []types.Violation
	Notifications []string
}

func (e *PropagatedIDChangeError) Error() string {
	return "propagated id changed:\n  " + strings.Join(e.Notifications, "\n  ")
}

// FatalError returns a *PropagatedIDChangeError when vs holds a fatal
// violation, and nil otherwise.
func FatalError(vs []types.Violation) error {
	var e *PropagatedIDChangeError
	for _, v := range vs {
		if v.Severity != types.SeverityFatal {
			continue
		}
		if e == nil {
			e = &PropagatedIDChangeError{}
		}
		e.Violations = append(e.Violations, v)
		e.Notifications = append(e.Notifications, v.Notifications...)
	}
	if e == nil {
		return nil
	}
	return e
}
