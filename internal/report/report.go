// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders check results and status snapshots for people.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/pdiddy/review-engine/internal/ledger"
	"github.com/pdiddy/review-engine/pkg/types"
)

var (
	colorOK      = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

var styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	OK      lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorOK),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	OK:      lipgloss.NewStyle().Foreground(colorOK),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
	Error:   lipgloss.NewStyle().Foreground(colorError),
}

// Options controls rendering.
type Options struct {
	// Styled enables colors and icons.
	Styled bool
}

// OptionsFor styles output only when w is a terminal.
func OptionsFor(w io.Writer) Options {
	f, ok := w.(*os.File)
	if !ok {
		return Options{}
	}
	fd := f.Fd()
	return Options{Styled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (o Options) render(s lipgloss.Style, text string) string {
	if !o.Styled {
		return text
	}
	return s.Render(text)
}

func (o Options) marker(sev types.Severity) string {
	switch sev {
	case types.SeverityFatal, types.SeverityError:
		if o.Styled {
			return styles.Error.Render("✗")
		}
		return "E"
	case types.SeverityWarning:
		if o.Styled {
			return styles.Warning.Render("⚠")
		}
		return "W"
	}
	return " "
}

// Violations writes one line per violation followed by a summary line.
// Notifications of propagated id changes are listed below their violation.
func Violations(w io.Writer, vs []types.Violation, opts Options) error {
	var b strings.Builder
	if len(vs) == 0 {
		b.WriteString(opts.render(styles.OK, "no violations"))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	blocking, warnings := 0, 0
	for _, v := range vs {
		if v.Blocking() {
			blocking++
		} else {
			warnings++
		}
		fmt.Fprintf(&b, "%s %-7s %s", opts.marker(v.Severity), v.Severity, v.String())
		if len(v.RecordIDs) > 0 {
			b.WriteString(opts.render(styles.Muted, " [records: "+strings.Join(v.RecordIDs, ", ")+"]"))
		}
		b.WriteString("\n")
		for _, n := range v.Notifications {
			fmt.Fprintf(&b, "    - %s\n", n)
		}
	}

	summary := fmt.Sprintf("%d violation(s): %d blocking, %d warning(s)", len(vs), blocking, warnings)
	style := styles.Warning
	if blocking > 0 {
		style = styles.Error
	}
	fmt.Fprintf(&b, "\n%s\n", opts.render(style, summary))
	_, err := io.WriteString(w, b.String())
	return err
}

// Status writes the per-state table of s followed by the derived counts.
func Status(w io.Writer, s types.StatusSnapshot, opts Options) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", opts.render(styles.Title, fmt.Sprintf("%-30s %9s %9s", "state", "currently", "overall")))
	for _, st := range types.AllRecordStates() {
		fmt.Fprintf(&b, "%-30s %9d %9d\n", st, s.Currently[string(st)], s.Overall[string(st)])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-30s %9d\n", "duplicates removed", s.Currently[types.KeyDuplicatesRemoved])
	fmt.Fprintf(&b, "%-30s %9d\n", "not yet processed", s.Currently[types.KeyNonProcessed])
	fmt.Fprintf(&b, "%-30s %9d\n", "not completed", s.Currently[types.KeyNonCompleted])
	fmt.Fprintf(&b, "%-30s %9d\n", "curated records", s.CuratedRecords)
	fmt.Fprintf(&b, "%-30s %9s\n", "atomic steps", fmt.Sprintf("%d/%d", s.CompletedAtomicSteps, s.AtomicSteps))

	if len(s.Exclusion) > 0 {
		names := make([]string, 0, len(s.Exclusion))
		for n := range s.Exclusion {
			names = append(names, n)
		}
		sort.Strings(names)
		b.WriteString("\nexclusions by criterion\n")
		for _, n := range names {
			fmt.Fprintf(&b, "  %-28s %9d\n", n, s.Exclusion[n])
		}
	}

	b.WriteString("\n")
	if s.CompletenessCondition {
		b.WriteString(opts.render(styles.OK, "complete: every record has passed every applicable stage"))
	} else {
		b.WriteString(opts.render(styles.Warning, "incomplete: records are waiting in earlier stages"))
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Runs writes one line per ledger run, newest first.
func Runs(w io.Writer, runs []ledger.Run, opts Options) error {
	var b strings.Builder
	if len(runs) == 0 {
		b.WriteString("no recorded runs\n")
		_, err := io.WriteString(w, b.String())
		return err
	}
	fmt.Fprintf(&b, "%s\n", opts.render(styles.Title,
		fmt.Sprintf("%-20s %-10s %-12s %-6s %10s %s", "started", "mode", "commit", "passed", "violations", "complete")))
	for _, r := range runs {
		commit := r.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fmt.Fprintf(&b, "%-20s %-10s %-12s %-6t %10d %t\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Mode, commit, r.Passed, r.Violations, r.Completeness)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
