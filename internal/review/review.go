// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review runs the repository gate of a review project: it verifies
// the git preconditions, loads the current and prior record collections,
// checks them, refreshes the status artifact and records the run.
package review

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/checker"
	"github.com/pdiddy/review-engine/internal/history"
	"github.com/pdiddy/review-engine/internal/ledger"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/internal/process"
	"github.com/pdiddy/review-engine/internal/status"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Mode selects how strict the gate is about the work tree.
type Mode string

const (
	// ModePreCommit runs against the staged state and re-stages the status
	// artifact. Unstaged changes are refused.
	ModePreCommit Mode = "pre-commit"

	// ModeDoctor runs on demand against the work tree and lists the records
	// changed since HEAD.
	ModeDoctor Mode = "doctor"
)

// Ledger records finished runs. *ledger.Store implements it.
type Ledger interface {
	RecordRun(ctx context.Context, in ledger.RunInput) (ledger.Run, error)
}

// Env is the context of one gate invocation.
type Env struct {
	// Root is the project directory, the root of the git work tree.
	Root     string
	Settings types.Settings
	Logger   *zap.Logger
	Git      *history.Git

	// Ledger is nil when run recording is disabled.
	Ledger Ledger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Gate runs checks for one project.
type Gate struct {
	env        Env
	logger     *zap.Logger
	graph      *process.Graph
	aggregator *status.Aggregator
}

// New returns a gate for env.
func New(env Env) *Gate {
	logger := logging.OrNop(env.Logger)
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Git == nil {
		env.Git = history.NewGit(env.Root, 0)
	}
	graph := process.DefaultGraph()
	return &Gate{
		env:        env,
		logger:     logger,
		graph:      graph,
		aggregator: status.NewAggregator(logger, graph),
	}
}

// Result is the outcome of a gate run.
type Result struct {
	Mode       Mode
	Violations []types.Violation
	Snapshot   types.StatusSnapshot

	// StatusWritten is true when the status artifact was out of date and
	// has been regenerated. A blocked pre-commit run never writes it.
	StatusWritten bool

	// ChangedIDs lists the records changed since HEAD. Doctor mode only.
	ChangedIDs []string

	// Run is the ledger entry, nil when the ledger is disabled.
	Run *ledger.Run
}

// Passed reports whether no violation blocks a commit.
func (r Result) Passed() bool {
	return len(checker.Blocking(r.Violations)) == 0
}

// Err returns the error the caller should exit with: a
// *checker.PropagatedIDChangeError when a processed record changed its id,
// otherwise a *BlockingError when any violation blocks the commit.
func (r Result) Err() error {
	if err := checker.FatalError(r.Violations); err != nil {
		return err
	}
	if blocking := checker.Blocking(r.Violations); len(blocking) > 0 {
		return &BlockingError{Violations: blocking}
	}
	return nil
}

// BlockingError reports error-severity violations.
type BlockingError struct {
	Violations []types.Violation
}

func (e *BlockingError) Error() string {
	if len(e.Violations) == 1 {
		return "commit blocked: " + e.Violations[0].String()
	}
	return fmt.Sprintf("commit blocked by %d violations", len(e.Violations))
}

// Run executes the gate in mode. The returned error covers failed
// preconditions and I/O; integrity problems are reported in
// Result.Violations and surfaced through Result.Err.
func (g *Gate) Run(ctx context.Context, mode Mode) (Result, error) {
	started := g.env.Now()
	proj := g.env.Settings.Project

	if err := g.env.Git.CheckPreconditions(ctx, mode == ModePreCommit); err != nil {
		return Result{}, err
	}

	current, prior, err := g.load(ctx)
	if err != nil {
		return Result{}, err
	}

	sources := bib.NewSourceIndex(g.env.Root, g.env.Settings.Sources)
	k := checker.New(checker.Options{
		Logger:      g.logger,
		Criteria:    g.env.Settings.CriteriaNames(),
		Sources:     sources,
		Registered:  g.env.Settings.Sources,
		SearchDir:   proj.SearchDir,
		Root:        g.env.Root,
		RecordsFile: proj.RecordsFile,
		Graph:       g.graph,
		Policy:      g.env.Settings.Check.TransitionPolicy,
		ScanIgnore:  g.env.Settings.Check.ScanIgnore,
		TextFormats: g.env.Settings.Check.TextFormats,
	})
	violations, err := k.Check(current, prior)
	if err != nil {
		return Result{}, err
	}

	snap, err := g.aggregate(current, sources)
	if err != nil {
		return Result{}, err
	}

	res := Result{Mode: mode, Violations: violations, Snapshot: snap}

	// A blocked commit leaves the index and the status file untouched.
	if mode != ModePreCommit || res.Err() == nil {
		res.StatusWritten, err = g.refreshStatus(ctx, mode, snap)
		if err != nil {
			return Result{}, err
		}
	}

	if mode == ModeDoctor && current.Len() > 0 {
		res.ChangedIDs, err = g.env.Git.ChangedRecordIDs(ctx, proj.RecordsFile)
		if err != nil {
			return Result{}, err
		}
	}

	g.record(ctx, &res, started)

	g.logger.Info("review gate finished",
		zap.String("mode", string(mode)),
		zap.Int("records", current.Len()),
		zap.Int("violations", len(violations)),
		zap.Bool("passed", res.Passed()),
		zap.Bool("status_written", res.StatusWritten),
		zap.Duration("elapsed", g.env.Now().Sub(started)))
	return res, nil
}

// load reads the current records file and the last committed version of it
// concurrently. The index is nil when the file has no history.
func (g *Gate) load(ctx context.Context) (types.RecordCollection, *history.Index, error) {
	recordsFile := g.env.Settings.Project.RecordsFile
	var (
		current  types.RecordCollection
		prior    types.RecordCollection
		hasPrior bool
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		c, err := g.readCurrent()
		if err != nil {
			return err
		}
		current = c
		return nil
	})
	eg.Go(func() error {
		p, ok, err := history.NewReconciler(g.env.Git, recordsFile, g.logger).LoadPrior(egCtx)
		if err != nil {
			return err
		}
		prior, hasPrior = p, ok
		return nil
	})
	if err := eg.Wait(); err != nil {
		return types.RecordCollection{}, nil, fmt.Errorf("loading records: %w", err)
	}

	if !hasPrior {
		return current, nil, nil
	}
	return current, history.NewIndex(prior), nil
}

// Status aggregates the records file of the work tree without consulting
// git or writing anything.
func (g *Gate) Status() (types.StatusSnapshot, error) {
	current, err := g.readCurrent()
	if err != nil {
		return types.StatusSnapshot{}, err
	}
	return g.aggregate(current, bib.NewSourceIndex(g.env.Root, g.env.Settings.Sources))
}

// readCurrent parses the records file of the work tree. A project without
// one has no records yet.
func (g *Gate) readCurrent() (types.RecordCollection, error) {
	recordsFile := g.env.Settings.Project.RecordsFile
	c, err := bib.ReadFile(filepath.Join(g.env.Root, recordsFile))
	if errors.Is(err, os.ErrNotExist) {
		g.logger.Debug("no records file", zap.String("file", recordsFile))
		return types.RecordCollection{}, nil
	}
	return c, err
}

func (g *Gate) aggregate(current types.RecordCollection, sources *bib.SourceIndex) (types.StatusSnapshot, error) {
	retrieved, err := sources.EntryCount()
	if err != nil {
		return types.StatusSnapshot{}, err
	}
	return g.aggregator.Aggregate(current, retrieved,
		g.env.Settings.CriteriaNames(), g.env.Settings.Project.CuratedMasterdata), nil
}

// refreshStatus rewrites the status artifact when it differs from snap. In
// pre-commit mode the regenerated file is staged so it lands in the commit
// being checked.
func (g *Gate) refreshStatus(ctx context.Context, mode Mode, snap types.StatusSnapshot) (bool, error) {
	statusFile := g.env.Settings.Project.StatusFile
	path := filepath.Join(g.env.Root, statusFile)

	stale, err := status.Stale(path, snap)
	if err != nil {
		return false, err
	}
	if !stale {
		return false, nil
	}
	if err := status.WriteFile(path, snap); err != nil {
		return false, err
	}
	if mode == ModePreCommit {
		if err := g.env.Git.Add(ctx, statusFile); err != nil {
			return true, err
		}
	}
	g.logger.Debug("status file regenerated", zap.String("file", statusFile))
	return true, nil
}

// record stores the run in the ledger. A failing ledger never fails the
// gate.
func (g *Gate) record(ctx context.Context, res *Result, started time.Time) {
	if g.env.Ledger == nil {
		return
	}
	commit, err := g.env.Git.HeadCommit(ctx)
	if err != nil {
		commit = ""
	}
	run, err := g.env.Ledger.RecordRun(ctx, ledger.RunInput{
		Commit:     commit,
		Mode:       string(res.Mode),
		StartedAt:  started,
		Passed:     res.Passed(),
		Violations: res.Violations,
		Snapshot:   res.Snapshot,
	})
	if err != nil {
		g.logger.Warn("recording run in ledger", zap.Error(err))
		return
	}
	res.Run = &run
}
