// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checker

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/review-engine/internal/history"
	"github.com/pdiddy/review-engine/internal/process"
	"github.com/pdiddy/review-engine/pkg/types"
)

type fakeSources struct {
	keys []string
	err  error
}

func (f fakeSources) OriginKeys() (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]struct{}, len(f.keys))
	for _, k := range f.keys {
		out[k] = struct{}{}
	}
	return out, nil
}

func rec(id string, status types.RecordState, origins ...string) types.Record {
	return types.Record{ID: id, Status: status, Origin: origins}
}

func collection(records ...types.Record) types.RecordCollection {
	return types.RecordCollection{Records: records}
}

func ofKind(vs []types.Violation, kind types.ViolationKind) []types.Violation {
	var out []types.Violation
	for _, v := range vs {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

func TestScenarioFreshLoad(t *testing.T) {
	vs, err := New(Options{}).Check(collection(rec("A", types.MdImported, "s1.bib/r1")), nil)
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestScenarioNonUniqueOrigin(t *testing.T) {
	vs, err := New(Options{}).Check(collection(
		rec("A", types.MdImported, "s1.bib/r1"),
		rec("B", types.MdImported, "s1.bib/r1"),
	), nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, types.KindNonUniqueOrigin, vs[0].Kind)
	assert.Contains(t, vs[0].Detail, "s1.bib/r1")
	assert.Equal(t, []string{"A", "B"}, vs[0].RecordIDs)
	assert.True(t, vs[0].Blocking())
}

func TestScenarioExcludedWithoutCriteria(t *testing.T) {
	r := rec("A", types.RevExcluded, "s1.bib/r1")
	r.ScreeningCriteria = "NA"
	vs, err := New(Options{Criteria: []string{"relevance"}}).Check(collection(r), nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, types.KindScreeningCriteria, vs[0].Kind)
	assert.Contains(t, vs[0].Detail, "not matching pattern")
	assert.Contains(t, vs[0].Detail, "A")
}

func TestScenarioPropagatedIDChange(t *testing.T) {
	prior := history.NewIndex(collection(rec("Smith2020", types.MdProcessed, "s1.bib/r1")))
	current := collection(rec("Smith2020b", types.MdProcessed, "s1.bib/r1"))

	vs, err := New(Options{}).Check(current, prior)
	require.NoError(t, err)
	fatal := ofKind(vs, types.KindPropagatedIDChange)
	require.Len(t, fatal, 1)
	assert.Equal(t, types.SeverityFatal, fatal[0].Severity)

	err = FatalError(vs)
	var pe *PropagatedIDChangeError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "Smith2020")
	assert.Contains(t, err.Error(), "Smith2020b")
	assert.Contains(t, pe.Notifications, "ID of processed record changed from Smith2020 to Smith2020b")
}

func TestScenarioIncludedWithCriteria(t *testing.T) {
	r := rec("A", types.RevIncluded, "s1.bib/r1")
	r.ScreeningCriteria = "relevance=in"
	vs, err := New(Options{Criteria: []string{"relevance"}}).Check(collection(r), nil)
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestTransitionValidityOverAllPairs(t *testing.T) {
	states := types.AllRecordStates()
	for _, from := range states {
		for _, to := range states {
			if from == to {
				continue
			}
			prior := history.NewIndex(collection(rec("X", from, "s.bib/1")))
			vs, err := New(Options{}).Check(collection(rec("X", to, "s.bib/1")), prior)
			require.NoError(t, err)

			_, edge := process.FindTransition(from, to)
			got := ofKind(vs, types.KindInvalidTransition)
			if edge {
				assert.Empty(t, got, "%s -> %s is registered", from, to)
				continue
			}
			if assert.Len(t, got, 1, "%s -> %s is not registered", from, to) {
				assert.Equal(t, "X: "+string(from)+" to "+string(to), got[0].Detail)
			}
		}
	}
}

func TestTransitionPolicy(t *testing.T) {
	prior := history.NewIndex(collection(rec("X", types.MdImported, "s.bib/1")))
	current := collection(rec("X", types.RevSynthesized, "s.bib/1"))

	vs, err := New(Options{Policy: types.TransitionWarn}).Check(current, prior)
	require.NoError(t, err)
	got := ofKind(vs, types.KindInvalidTransition)
	require.Len(t, got, 1)
	assert.Equal(t, types.SeverityWarning, got[0].Severity)
	assert.False(t, got[0].Blocking())

	vs, err = New(Options{Policy: types.TransitionBlock}).Check(current, prior)
	require.NoError(t, err)
	got = ofKind(vs, types.KindInvalidTransition)
	require.Len(t, got, 1)
	assert.Equal(t, types.SeverityError, got[0].Severity)
}

func TestTransitionWithoutMatchingPriorIsLoad(t *testing.T) {
	prior := history.NewIndex(collection(rec("X", types.MdImported, "s.bib/1")))
	vs, err := New(Options{}).Check(collection(rec("Y", types.RevSynthesized, "s.bib/2")), prior)
	require.NoError(t, err)
	assert.Empty(t, ofKind(vs, types.KindInvalidTransition))
}

func TestMissingOrigin(t *testing.T) {
	vs, err := New(Options{}).Check(collection(
		rec("A", types.MdImported),
		rec("B", types.MdImported, "s.bib/1"),
		rec("C", types.MdImported, " "),
	), nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, types.KindMissingOrigin, vs[0].Kind)
	assert.Equal(t, []string{"A", "C"}, vs[0].RecordIDs)
}

func TestBrokenOrigins(t *testing.T) {
	k := New(Options{Sources: fakeSources{keys: []string{"s.bib/1", "s.bib/2"}}})
	vs, err := k.Check(collection(
		rec("A", types.MdImported, "s.bib/1"),
		rec("B", types.MdImported, "s.bib/9", "t.bib/3"),
		rec("C", types.MdImported, "s.bib/2"),
	), nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, types.KindBrokenOrigin, vs[0].Kind)
	assert.Equal(t, "broken origins: s.bib/9, t.bib/3", vs[0].Detail)
	assert.Equal(t, []string{"B"}, vs[0].RecordIDs)
}

func TestSourceIndexFailureIsSetupError(t *testing.T) {
	k := New(Options{Sources: fakeSources{err: errors.New("permission denied")}})
	_, err := k.Check(collection(rec("A", types.MdImported, "s.bib/1")), nil)
	assert.Error(t, err)
}

func TestDuplicateIDs(t *testing.T) {
	vs, err := New(Options{}).Check(collection(
		rec("A", types.MdImported, "s.bib/1"),
		rec("A", types.MdImported, "s.bib/2"),
		rec("A", types.MdImported, "s.bib/3"),
	), nil)
	require.NoError(t, err)
	got := ofKind(vs, types.KindDuplicateID)
	require.Len(t, got, 1)
	assert.Equal(t, "duplicate id A (3 records)", got[0].Detail)
}

func TestInvalidStatusReportedOnce(t *testing.T) {
	vs, err := New(Options{}).Check(collection(
		rec("A", "md_unknown", "s.bib/1"),
		rec("B", "bogus", "s.bib/2"),
		rec("C", "md_unknown", "s.bib/3"),
		rec("D", types.MdImported, "s.bib/4"),
	), nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, types.KindInvalidStatus, vs[0].Kind)
	assert.Equal(t, `status field(s) {"bogus", "md_unknown"} not in record states`, vs[0].Detail)
	assert.Equal(t, []string{"A", "B", "C"}, vs[0].RecordIDs)
}

func TestScreeningCriteria(t *testing.T) {
	criteria := []string{"relevance", "quality"}
	tests := []struct {
		name     string
		status   types.RecordState
		criteria string
		want     string
	}{
		{"included all in", types.RevIncluded, "relevance=in;quality=in", ""},
		{"synthesized all in", types.RevSynthesized, "relevance=in;quality=in", ""},
		{"excluded one out", types.RevExcluded, "relevance=in;quality=out", ""},
		{"excluded all in", types.RevExcluded, "relevance=in;quality=in", "excluded record with no screening criterion violated"},
		{"included one out", types.RevIncluded, "relevance=out;quality=in", "included record with screening criterion not satisfied"},
		{"wrong order", types.RevIncluded, "quality=in;relevance=in", "not matching pattern"},
		{"missing criterion", types.RevIncluded, "relevance=in", "not matching pattern"},
		{"empty after screen", types.RevExcluded, "", "not matching pattern"},
		{"before screen with NA", types.PdfPrepared, "NA", ""},
		{"before screen empty", types.MdProcessed, "", ""},
		{"before screen with decisions", types.PdfPrepared, "relevance=in;quality=in", "before screen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec("A", tt.status, "s.bib/1")
			r.ScreeningCriteria = tt.criteria
			vs, err := New(Options{Criteria: criteria}).Check(collection(r), nil)
			require.NoError(t, err)
			got := ofKind(vs, types.KindScreeningCriteria)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Contains(t, got[0].Detail, tt.want)
			assert.Equal(t, []string{"A"}, got[0].RecordIDs)
		})
	}
}

func TestScreeningCriteriaNotConfigured(t *testing.T) {
	tests := []struct {
		name     string
		status   types.RecordState
		criteria string
		wantErr  bool
	}{
		{"excluded NA", types.RevExcluded, "NA", false},
		{"included NA", types.RevIncluded, "NA", false},
		{"excluded with decision", types.RevExcluded, "relevance=out", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rec("A", tt.status, "s.bib/1")
			r.ScreeningCriteria = tt.criteria
			vs, err := New(Options{}).Check(collection(r), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantErr, len(ofKind(vs, types.KindScreeningCriteria)) > 0)
		})
	}
}

func TestScreeningCriteriaCollectsEveryRecord(t *testing.T) {
	a := rec("A", types.RevExcluded, "s.bib/1")
	a.ScreeningCriteria = "NA"
	b := rec("B", types.RevIncluded, "s.bib/2")
	b.ScreeningCriteria = "relevance=out"
	vs, err := New(Options{Criteria: []string{"relevance"}}).Check(collection(a, b), nil)
	require.NoError(t, err)
	assert.Len(t, ofKind(vs, types.KindScreeningCriteria), 2)
}

func TestOriginRemoved(t *testing.T) {
	prior := history.NewIndex(collection(
		rec("A", types.MdProcessed, "s.bib/1"),
		rec("B", types.MdPrepared, "s.bib/2"),
	))
	vs, err := New(Options{}).Check(collection(rec("C", types.MdImported, "s.bib/3")), prior)
	require.NoError(t, err)
	got := ofKind(vs, types.KindOriginRemoved)
	require.Len(t, got, 1, "origins removed before md_processed are not tracked")
	assert.Equal(t, "origin removed: s.bib/1", got[0].Detail)
}

func TestPropagatedIDRenameBeforeProcessingIsAllowed(t *testing.T) {
	prior := history.NewIndex(collection(rec("Smith2020", types.MdPrepared, "s1.bib/r1")))
	vs, err := New(Options{}).Check(collection(rec("Smith2020b", types.MdProcessed, "s1.bib/r1")), prior)
	require.NoError(t, err)
	assert.Empty(t, ofKind(vs, types.KindPropagatedIDChange))
	assert.NoError(t, FatalError(vs))
}

func TestPropagatedIDChangeScan(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("records.bib", "@article{Smith2020b,\n}\n")
	write("data/paper.md", "As shown by [@Smith2020], ...\n")
	write("data/screen.csv", "id,decision\nLee2019,in\n")
	write("pdfs/Smith2020.pdf", "%PDF")
	write("data/sample.bib", "@article{Smith2020,\n}\n")
	write("data/other.bib", "@article{X,\n  note = {Smith2020},\n}\n")
	write(".git/COMMIT_EDITMSG", "Smith2020\n")
	write("report.log", "Smith2020\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes", "Smith2020"), 0o755))

	prior := history.NewIndex(collection(rec("Smith2020", types.RevIncluded, "s1.bib/r1", "s2.bib/r7")))
	current := collection(rec("Smith2020b", types.RevIncluded, "s1.bib/r1", "s2.bib/r7"))

	k := New(Options{
		Root:        root,
		RecordsFile: "records.bib",
		ScanIgnore:  []string{".git", "report.log"},
		TextFormats: []string{".txt", ".csv", ".md", ".bib", ".yaml"},
	})
	vs, err := k.Check(current, prior)
	require.NoError(t, err)

	fatal := ofKind(vs, types.KindPropagatedIDChange)
	require.Len(t, fatal, 1, "one violation per renamed record")
	notes := fatal[0].Notifications
	assert.Contains(t, notes, "Old ID (Smith2020, changed to Smith2020b in the records file) found in file: "+filepath.Join("data", "paper.md"))
	assert.Contains(t, notes, "Old ID (Smith2020, changed to Smith2020b in the records file) found in filepath: "+filepath.Join("pdfs", "Smith2020.pdf"))
	assert.Contains(t, notes, "Old ID (Smith2020, changed to Smith2020b in the records file) found in file: "+filepath.Join("data", "sample.bib"))
	assert.Contains(t, notes, "Old ID (Smith2020, changed to Smith2020b in the records file) found in filepath: "+filepath.Join("notes", "Smith2020"))
	assert.Equal(t, "ID of processed record changed from Smith2020 to Smith2020b", notes[len(notes)-1])
	for _, n := range notes {
		assert.NotContains(t, n, "other.bib", "only entry keys count in .bib files")
		assert.NotContains(t, n, "screen.csv")
		assert.NotContains(t, n, "COMMIT_EDITMSG")
		assert.NotContains(t, n, "report.log")
		assert.NotContains(t, n, "records.bib")
	}
}

func TestPropagatedIDScanHandlesLongLines(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("x", 5*1024*1024) + " Smith2020\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "table.csv"), []byte(long), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "huge.md"), []byte(strings.Repeat("y", 5*1024*1024)), 0o644))

	prior := history.NewIndex(collection(rec("Smith2020", types.RevIncluded, "s1.bib/r1")))
	current := collection(rec("Smith2020b", types.RevIncluded, "s1.bib/r1"))
	k := New(Options{
		Root:        root,
		TextFormats: []string{".csv", ".md"},
	})
	vs, err := k.Check(current, prior)
	require.NoError(t, err)

	fatal := ofKind(vs, types.KindPropagatedIDChange)
	require.Len(t, fatal, 1)
	assert.Contains(t, fatal[0].Notifications,
		"Old ID (Smith2020, changed to Smith2020b in the records file) found in file: table.csv")
	for _, n := range fatal[0].Notifications {
		assert.NotContains(t, n, "huge.md")
	}
}

func TestStreamContainsAcrossChunks(t *testing.T) {
	id := "Smith2020"
	for _, offset := range []int{0, 64*1024 - 4, 64 * 1024, 3*64*1024 - 1} {
		data := strings.Repeat("a", offset) + id + strings.Repeat("b", 10)
		found, err := streamContains(strings.NewReader(data), id)
		require.NoError(t, err)
		assert.True(t, found, "offset %d", offset)
	}
	found, err := streamContains(strings.NewReader(strings.Repeat("Smith202", 20000)), id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSourcesSetup(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "search"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "search", "ok.bib"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.bib"), nil, 0o644))

	k := New(Options{
		Root:      root,
		SearchDir: "search",
		Registered: []types.SearchSource{
			{Filename: "search/ok.bib"},
			{Filename: "search/missing.bib"},
			{Filename: "stray.bib"},
		},
	})
	vs, err := k.Check(collection(), nil)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	assert.Equal(t, "search source without file: search/missing.bib", vs[0].Detail)
	assert.Equal(t, "search source stray.bib is not in search", vs[1].Detail)
	assert.Empty(t, Blocking(vs), "source setup problems are warnings")
}

func TestAllViolationsCollected(t *testing.T) {
	a := rec("A", types.RevIncluded, "s.bib/1")
	a.ScreeningCriteria = "relevance=out"
	vs, err := New(Options{Criteria: []string{"relevance"}}).Check(collection(
		a,
		rec("B", "nope", "s.bib/1"),
		rec("C", types.MdImported),
	), nil)
	require.NoError(t, err)
	kinds := map[types.ViolationKind]bool{}
	for _, v := range vs {
		kinds[v.Kind] = true
	}
	assert.Equal(t, map[types.ViolationKind]bool{
		types.KindMissingOrigin:     true,
		types.KindNonUniqueOrigin:   true,
		types.KindInvalidStatus:     true,
		types.KindScreeningCriteria: true,
	}, kinds)
}

func TestFatalErrorNil(t *testing.T) {
	assert.NoError(t, FatalError(nil))
	assert.NoError(t, FatalError([]types.Violation{{Kind: types.KindDuplicateID, Severity: types.SeverityError}}))
}
