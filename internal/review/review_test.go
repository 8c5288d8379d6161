// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/checker"
	"github.com/pdiddy/review-engine/internal/history"
	"github.com/pdiddy/review-engine/internal/ledger"
	"github.com/pdiddy/review-engine/internal/settings"
	"github.com/pdiddy/review-engine/internal/status"
	"github.com/pdiddy/review-engine/pkg/types"
)

const (
	cmdIsRepo = "git rev-parse --is-inside-work-tree"
	cmdHead   = "git rev-parse --verify --quiet HEAD"
	cmdStatus = "git status --porcelain=v1 -z"
	cmdLog    = "git log -1 --format=%H -- records.bib"
	cmdShow   = "git show abc123:records.bib"
	cmdAdd    = "git add -- status.yaml"
	cmdDiff   = "git diff --no-color --no-ext-diff -U0 HEAD -- records.bib"
)

// noHead is how `git rev-parse --verify --quiet HEAD` fails in a
// repository without commits.
type noHead struct{}

func (noHead) Error() string { return "exit status 1" }
func (noHead) ExitCode() int { return 1 }

// fakeGit answers git invocations from a table keyed by the joined argument
// list. HEAD is unborn unless answered; other unknown commands fail.
type fakeGit struct {
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func (f *fakeGit) Run(_ context.Context, _ string, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	if out, ok := f.responses[key]; ok {
		return []byte(out), nil
	}
	if key == cmdHead {
		return nil, noHead{}
	}
	return nil, errors.New("unexpected command: " + key)
}

func (f *fakeGit) called(cmd string) bool {
	for _, c := range f.calls {
		if c == cmd {
			return true
		}
	}
	return false
}

type fakeLedger struct {
	inputs []ledger.RunInput
	err    error
}

func (l *fakeLedger) RecordRun(_ context.Context, in ledger.RunInput) (ledger.Run, error) {
	if l.err != nil {
		return ledger.Run{}, l.err
	}
	l.inputs = append(l.inputs, in)
	return ledger.Run{ID: "run-1", Commit: in.Commit, Mode: in.Mode, Passed: in.Passed}, nil
}

// project lays out a review project with one registered search source
// holding r1 and r2.
func project(t *testing.T, records string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "search"), 0o755))
	writeFile(t, filepath.Join(root, "search", "s1.bib"), "@article{r1,\n title={a}}\n@article{r2,\n title={b}}\n")
	if records != "" {
		writeFile(t, filepath.Join(root, "records.bib"), records)
	}
	return root
}

func newGate(t *testing.T, root string, responses map[string]string, l Ledger) (*Gate, *fakeGit) {
	t.Helper()
	s := settings.Default()
	s.Sources = []types.SearchSource{{Filename: "search/s1.bib", SearchType: "DB"}}
	fg := &fakeGit{responses: responses, failures: map[string]error{}}
	env := Env{
		Root:     root,
		Settings: s,
		Git:      history.NewGitWithExecutor(root, time.Second, fg),
		Now:      func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	}
	if l != nil {
		env.Ledger = l
	}
	return New(env), fg
}

func cleanRepo() map[string]string {
	return map[string]string{
		cmdIsRepo: "true\n",
		cmdStatus: "",
		cmdAdd:    "",
	}
}

const importedRecords = `@article{Smith2020,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_imported},
  title = {A}
}

@article{Lee2021,
  colrev_origin = {s1.bib/r2},
  colrev_status = {md_imported},
  title = {B}
}
`

func TestPreCommitFreshProject(t *testing.T) {
	root := project(t, importedRecords)
	l := &fakeLedger{}
	g, fg := newGate(t, root, cleanRepo(), l)

	res, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.True(t, res.Passed())
	assert.NoError(t, res.Err())
	assert.True(t, res.StatusWritten)
	assert.True(t, fg.called(cmdAdd), "regenerated status file is staged")
	assert.Nil(t, res.ChangedIDs)

	assert.Equal(t, 2, res.Snapshot.Currently[string(types.MdImported)])
	assert.Equal(t, 2, res.Snapshot.Overall[string(types.MdRetrieved)])

	onDisk, err := status.ReadFile(filepath.Join(root, "status.yaml"))
	require.NoError(t, err)
	assert.Equal(t, res.Snapshot.Overall, onDisk.Overall)

	require.Len(t, l.inputs, 1)
	assert.Equal(t, "pre-commit", l.inputs[0].Mode)
	assert.Empty(t, l.inputs[0].Commit)
	assert.True(t, l.inputs[0].Passed)
	require.NotNil(t, res.Run)
	assert.Equal(t, "run-1", res.Run.ID)
}

func TestPreCommitKeepsCurrentStatusFile(t *testing.T) {
	root := project(t, importedRecords)
	g, _ := newGate(t, root, cleanRepo(), nil)
	_, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)

	g, fg := newGate(t, root, cleanRepo(), nil)
	res, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)
	assert.False(t, res.StatusWritten)
	assert.False(t, fg.called(cmdAdd))
	assert.Nil(t, res.Run)
}

func TestPreCommitRefusesUnstagedChanges(t *testing.T) {
	root := project(t, importedRecords)
	responses := cleanRepo()
	responses[cmdStatus] = " M records.bib\x00"
	g, _ := newGate(t, root, responses, nil)

	_, err := g.Run(context.Background(), ModePreCommit)
	var unstaged *history.UnstagedChangesError
	require.ErrorAs(t, err, &unstaged)
	assert.Equal(t, []string{"records.bib"}, unstaged.Paths)
	_, statErr := os.Stat(filepath.Join(root, "status.yaml"))
	assert.True(t, os.IsNotExist(statErr), "nothing is written when preconditions fail")
}

func TestDoctorIgnoresUnstagedChanges(t *testing.T) {
	root := project(t, importedRecords)
	responses := cleanRepo()
	responses[cmdStatus] = " M records.bib\x00"
	g, fg := newGate(t, root, responses, nil)

	res, err := g.Run(context.Background(), ModeDoctor)
	require.NoError(t, err)
	assert.True(t, res.StatusWritten)
	assert.False(t, fg.called(cmdAdd), "doctor never stages")
	assert.Equal(t, []string{"Lee2021", "Smith2020"}, res.ChangedIDs)
}

func TestConflictsFailBothModes(t *testing.T) {
	root := project(t, importedRecords)
	responses := cleanRepo()
	responses[cmdStatus] = "UU records.bib\x00"

	for _, mode := range []Mode{ModePreCommit, ModeDoctor} {
		g, _ := newGate(t, root, responses, nil)
		_, err := g.Run(context.Background(), mode)
		var conflict *history.ConflictError
		assert.ErrorAs(t, err, &conflict, string(mode))
	}
}

func TestNotRepository(t *testing.T) {
	root := project(t, importedRecords)
	g, _ := newGate(t, root, map[string]string{}, nil)
	_, err := g.Run(context.Background(), ModeDoctor)
	assert.ErrorIs(t, err, history.ErrNotRepository)
}

func TestBlockingViolations(t *testing.T) {
	root := project(t, `@article{A,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_imported}
}

@article{B,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_imported}
}
`)
	l := &fakeLedger{}
	g, fg := newGate(t, root, cleanRepo(), l)

	res, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)
	assert.False(t, res.Passed())

	var blocking *BlockingError
	require.ErrorAs(t, res.Err(), &blocking)
	require.Len(t, blocking.Violations, 1)
	assert.Equal(t, types.KindNonUniqueOrigin, blocking.Violations[0].Kind)
	assert.Contains(t, blocking.Error(), "non_unique_origin")

	assert.False(t, res.StatusWritten)
	assert.False(t, fg.called(cmdAdd), "a blocked commit leaves the index alone")
	_, statErr := os.Stat(filepath.Join(root, "status.yaml"))
	assert.True(t, os.IsNotExist(statErr))

	require.Len(t, l.inputs, 1)
	assert.False(t, l.inputs[0].Passed)
}

func TestPropagatedIDChangeIsFatal(t *testing.T) {
	root := project(t, `@article{Smith2020a,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_processed}
}
`)
	writeFile(t, filepath.Join(root, "paper.md"), "As shown by Smith2020 ...\n")

	responses := cleanRepo()
	responses[cmdHead] = "abc123\n"
	responses[cmdLog] = "abc123\n"
	responses[cmdShow] = "@article{Smith2020,\n  colrev_origin = {s1.bib/r1},\n  colrev_status = {md_processed}\n}\n"
	l := &fakeLedger{}
	g, _ := newGate(t, root, responses, l)

	res, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)

	var fatal *checker.PropagatedIDChangeError
	require.ErrorAs(t, res.Err(), &fatal)
	assert.False(t, res.StatusWritten)
	assert.Contains(t, fatal.Notifications, "Old ID (Smith2020, changed to Smith2020a in the records file) found in file: paper.md")

	require.Len(t, l.inputs, 1)
	assert.Equal(t, "abc123", l.inputs[0].Commit)
}

func TestValidTransitionAgainstPrior(t *testing.T) {
	root := project(t, `@article{Smith2020,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_needs_manual_preparation}
}
`)
	responses := cleanRepo()
	responses[cmdHead] = "abc123\n"
	responses[cmdLog] = "abc123\n"
	responses[cmdShow] = "@article{Smith2020,\n  colrev_origin = {s1.bib/r1},\n  colrev_status = {md_imported}\n}\n"
	responses[cmdDiff] = ""
	g, _ := newGate(t, root, responses, nil)

	res, err := g.Run(context.Background(), ModeDoctor)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.Empty(t, res.ChangedIDs)
}

func TestBrokenHistoryFailsGate(t *testing.T) {
	root := project(t, `@article{Smith2020a,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_processed}
}
`)
	responses := cleanRepo()
	responses[cmdLog] = "abc123\n"
	responses[cmdShow] = "@article{Smith2020,\n  colrev_origin = {s1.bib/r1},\n  colrev_status = {md_processed}\n}\n"
	g, fg := newGate(t, root, responses, nil)
	fg.failures[cmdHead] = errors.New("exit status 128: fatal: bad object HEAD")

	_, err := g.Run(context.Background(), ModePreCommit)
	require.Error(t, err)
	assert.ErrorContains(t, err, "loading records")
	assert.False(t, fg.called(cmdAdd))
}

func TestMissingRecordsFileIsEmptyProject(t *testing.T) {
	root := project(t, "")
	g, _ := newGate(t, root, cleanRepo(), nil)

	res, err := g.Run(context.Background(), ModeDoctor)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.Equal(t, 2, res.Snapshot.Currently[string(types.MdRetrieved)])
	assert.False(t, res.Snapshot.CompletenessCondition)
}

func TestStatusWithoutGit(t *testing.T) {
	root := project(t, importedRecords)
	g, fg := newGate(t, root, map[string]string{}, nil)

	snap, err := g.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Currently[string(types.MdImported)])
	assert.Empty(t, fg.calls)
	_, statErr := os.Stat(filepath.Join(root, "status.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDoctorWritesStatusDespiteViolations(t *testing.T) {
	root := project(t, `@article{A,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_imported}
}

@article{B,
  colrev_origin = {s1.bib/r1},
  colrev_status = {md_imported}
}
`)
	g, fg := newGate(t, root, cleanRepo(), nil)

	res, err := g.Run(context.Background(), ModeDoctor)
	require.NoError(t, err)
	assert.Error(t, res.Err())
	assert.True(t, res.StatusWritten)
	assert.False(t, fg.called(cmdAdd))
}

func TestLedgerFailureDoesNotFailGate(t *testing.T) {
	root := project(t, importedRecords)
	g, _ := newGate(t, root, cleanRepo(), &fakeLedger{err: errors.New("disk full")})

	res, err := g.Run(context.Background(), ModePreCommit)
	require.NoError(t, err)
	assert.Nil(t, res.Run)
}

func TestMalformedRecordsFile(t *testing.T) {
	root := project(t, "@article{A,\n title = {x}\n")
	g, _ := newGate(t, root, cleanRepo(), nil)

	_, err := g.Run(context.Background(), ModeDoctor)
	assert.ErrorContains(t, err, "loading records")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
