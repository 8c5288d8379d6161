// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/pkg/types"
)

func (k *Checker) checkOrigins(r *run) error {
	var missing []string
	for _, rec := range r.current.Records {
		if !rec.HasOrigin() {
			missing = append(missing, rec.ID)
		}
	}
	if len(missing) > 0 {
		r.add(types.Violation{
			Kind:      types.KindMissingOrigin,
			Severity:  types.SeverityError,
			RecordIDs: missing,
			Detail:    "entries without origin: " + strings.Join(missing, ", "),
		})
	}

	if k.opts.Sources != nil {
		available, err := k.opts.Sources.OriginKeys()
		if err != nil {
			return err
		}
		broken := map[string]struct{}{}
		var ids []string
		for _, rec := range r.current.Records {
			hit := false
			for _, o := range rec.Origin {
				if _, ok := available[o]; !ok {
					broken[o] = struct{}{}
					hit = true
				}
			}
			if hit {
				ids = append(ids, rec.ID)
			}
		}
		if len(broken) > 0 {
			r.add(types.Violation{
				Kind:      types.KindBrokenOrigin,
				Severity:  types.SeverityError,
				RecordIDs: ids,
				Detail:    "broken origins: " + strings.Join(sortedSet(broken), ", "),
			})
		}
	}

	owners := map[string][]string{}
	var order []string
	for _, rec := range r.current.Records {
		for _, o := range rec.Origin {
			if _, ok := owners[o]; !ok {
				order = append(order, o)
			}
			owners[o] = append(owners[o], rec.ID)
		}
	}
	for _, o := range order {
		if ids := owners[o]; len(ids) > 1 {
			r.add(types.Violation{
				Kind:      types.KindNonUniqueOrigin,
				Severity:  types.SeverityError,
				RecordIDs: ids,
				Detail:    fmt.Sprintf("non-unique origin: origin=%q (records %s)", o, strings.Join(ids, ", ")),
			})
		}
	}
	return nil
}

func (k *Checker) checkDuplicateIDs(r *run) error {
	count := map[string]int{}
	var order []string
	for _, rec := range r.current.Records {
		if count[rec.ID] == 0 {
			order = append(order, rec.ID)
		}
		count[rec.ID]++
	}
	for _, id := range order {
		if n := count[id]; n > 1 {
			r.add(types.Violation{
				Kind:      types.KindDuplicateID,
				Severity:  types.SeverityError,
				RecordIDs: []string{id},
				Detail:    fmt.Sprintf("duplicate id %s (%d records)", id, n),
			})
		}
	}
	return nil
}

func (k *Checker) checkStatusVocabulary(r *run) error {
	var invalid []string
	for _, s := range r.current.Statuses() {
		if !s.Valid() {
			invalid = append(invalid, string(s))
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	var ids []string
	for _, rec := range r.current.Records {
		if !rec.Status.Valid() {
			ids = append(ids, rec.ID)
		}
	}
	r.add(types.Violation{
		Kind:      types.KindInvalidStatus,
		Severity:  types.SeverityError,
		RecordIDs: ids,
		Detail:    fmt.Sprintf("status field(s) {%s} not in record states", strings.Join(quoted(invalid), ", ")),
	})
	return nil
}

func (k *Checker) checkTransitions(r *run) error {
	if r.prior == nil {
		return nil
	}
	severity := types.SeverityWarning
	if k.opts.Policy == types.TransitionBlock {
		severity = types.SeverityError
	}
	for _, rec := range r.current.Records {
		if !rec.Status.Valid() {
			continue
		}
		prev, ok := r.prior.Lookup(rec.Origin)
		if !ok || prev.Status == rec.Status {
			// No prior record: implied load.
			continue
		}
		if _, ok := k.graph.Find(prev.Status, rec.Status); ok {
			continue
		}
		r.add(types.Violation{
			Kind:      types.KindInvalidTransition,
			Severity:  severity,
			RecordIDs: []string{rec.ID},
			Detail:    fmt.Sprintf("%s: %s to %s", rec.ID, prev.Status, rec.Status),
		})
	}
	return nil
}

func (k *Checker) checkScreeningCriteria(r *run) error {
	pattern, inclusion := screeningPatterns(k.opts.Criteria)
	criteria := types.NotApplicable
	if len(k.opts.Criteria) > 0 {
		criteria = strings.Join(k.opts.Criteria, ",")
	}

	for _, rec := range r.current.Records {
		if !rec.Status.Valid() {
			continue
		}
		crit := strings.TrimSpace(rec.ScreeningCriteria)
		fail := func(format string, args ...any) {
			r.add(types.Violation{
				Kind:      types.KindScreeningCriteria,
				Severity:  types.SeverityError,
				RecordIDs: []string{rec.ID},
				Detail:    fmt.Sprintf(format, args...),
			})
		}

		if !rec.Status.AtOrBeyond(types.RevIncluded) {
			if rec.HasScreeningCriteria() {
				fail("record with screening criteria but before screen: %s (%s; %s)", rec.ID, rec.Status, crit)
			}
			continue
		}

		switch {
		case !pattern.MatchString(crit):
			fail("screening criteria field not matching pattern: %q (%s; %s; criteria: %s)", crit, rec.ID, rec.Status, criteria)
		case rec.Status == types.RevExcluded:
			if len(k.opts.Criteria) > 0 && !strings.Contains(crit, "=out") {
				fail("excluded record with no screening criterion violated: %s, %s, %s", rec.ID, rec.Status, crit)
			}
		default:
			if !inclusion.MatchString(crit) {
				fail("included record with screening criterion not satisfied: %s, %s, %s", rec.ID, rec.Status, crit)
			}
		}
	}
	return nil
}

// screeningPatterns returns the format pattern and the all-included pattern
// for the configured criteria, in configured order.
func screeningPatterns(criteria []string) (pattern, inclusion *regexp.Regexp) {
	if len(criteria) == 0 {
		na := regexp.MustCompile(`^` + types.NotApplicable + `$`)
		return na, na
	}
	anyParts := make([]string, len(criteria))
	inParts := make([]string, len(criteria))
	for i, c := range criteria {
		q := regexp.QuoteMeta(c)
		anyParts[i] = q + "=(in|out)"
		inParts[i] = q + "=in"
	}
	return regexp.MustCompile(`^` + strings.Join(anyParts, ";") + `$`),
		regexp.MustCompile(`^` + strings.Join(inParts, ";") + `$`)
}

func (k *Checker) checkPropagatedIDs(r *run) error {
	if r.prior == nil {
		return nil
	}
	byOrigin := map[string]types.Record{}
	for _, rec := range r.current.Records {
		for _, o := range rec.Origin {
			if _, ok := byOrigin[o]; !ok {
				byOrigin[o] = rec
			}
		}
	}

	scanned := map[string][]string{}
	for _, prev := range r.prior.PersistedIDs() {
		cur, ok := byOrigin[prev.Origin]
		if !ok {
			r.add(types.Violation{
				Kind:      types.KindOriginRemoved,
				Severity:  types.SeverityError,
				RecordIDs: []string{prev.ID},
				Detail:    "origin removed: " + prev.Origin,
			})
			continue
		}
		if cur.ID == prev.ID || !cur.Status.AtOrBeyond(types.MdProcessed) {
			continue
		}

		key := prev.ID + "\x00" + cur.ID
		notes, done := scanned[key]
		if !done {
			var err error
			notes, err = k.scanForID(prev.ID, cur.ID)
			if err != nil {
				return err
			}
			notes = append(notes, fmt.Sprintf("ID of processed record changed from %s to %s", prev.ID, cur.ID))
			scanned[key] = notes
		}
		r.add(types.Violation{
			Kind:          types.KindPropagatedIDChange,
			Severity:      types.SeverityFatal,
			RecordIDs:     []string{prev.ID, cur.ID},
			Detail:        fmt.Sprintf("ID of processed record changed from %s to %s", prev.ID, cur.ID),
			Notifications: notes,
		})
	}
	return nil
}

func (k *Checker) checkSources(r *run) error {
	searchDir := filepath.Clean(k.opts.SearchDir)
	for _, src := range k.opts.Registered {
		name := filepath.Clean(src.Filename)
		if k.opts.Root != "" {
			path := name
			if !filepath.IsAbs(path) {
				path = filepath.Join(k.opts.Root, path)
			}
			if _, err := os.Stat(path); err != nil {
				k.logger.Debug("search source without file", zap.String("source", src.Filename), zap.Error(err))
				r.add(types.Violation{
					Kind:     types.KindSourceSetup,
					Severity: types.SeverityWarning,
					Detail:   "search source without file: " + src.Filename,
				})
			}
		}
		if k.opts.SearchDir != "" && filepath.Dir(name) != searchDir {
			r.add(types.Violation{
				Kind:     types.KindSourceSetup,
				Severity: types.SeverityWarning,
				Detail:   fmt.Sprintf("search source %s is not in %s", src.Filename, k.opts.SearchDir),
			})
		}
	}
	return nil
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func quoted(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
