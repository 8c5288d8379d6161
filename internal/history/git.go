// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history reads the prior state of a review project from its git
// repository and reconciles it with the working tree.
package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrNotRepository is returned when the project root is not inside a
	// git work tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoHistory is returned when no commit contains the requested path.
	ErrNoHistory = errors.New("no commit history")
)

// Executor runs an external command in dir and returns its standard output.
type Executor interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// exitCoder is implemented by *exec.ExitError.
type exitCoder interface {
	ExitCode() int
}

// osExecutor is the production Executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Git runs git commands in a project root. Each call is bounded by the
// configured timeout.
type Git struct {
	root    string
	timeout time.Duration
	exec    Executor
}

// NewGit returns a client for the repository containing root. A zero
// timeout uses 30s.
func NewGit(root string, timeout time.Duration) *Git {
	return NewGitWithExecutor(root, timeout, osExecutor{})
}

// NewGitWithExecutor is NewGit with a custom command executor.
func NewGitWithExecutor(root string, timeout time.Duration, exec Executor) *Git {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Git{root: root, timeout: timeout, exec: exec}
}

// Root returns the directory git runs in.
func (g *Git) Root() string { return g.root }

func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.exec.Run(ctx, g.root, "git", args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// IsRepo reports whether the root is inside a git work tree.
func (g *Git) IsRepo(ctx context.Context) bool {
	out, err := g.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// HeadCommit returns the commit hash of HEAD, or ErrNoHistory in a
// repository without commits. Other git failures are returned as is.
func (g *Git) HeadCommit(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		// --quiet exits 1 without output when HEAD does not resolve to a
		// commit. Anything else is a broken repository or a timeout.
		var ec exitCoder
		if errors.As(err, &ec) && ec.ExitCode() == 1 {
			return "", fmt.Errorf("resolving HEAD: %w", ErrNoHistory)
		}
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// LastCommitTouching returns the most recent commit that modified path.
func (g *Git) LastCommitTouching(ctx context.Context, path string) (string, error) {
	if _, err := g.HeadCommit(ctx); err != nil {
		return "", err
	}
	out, err := g.run(ctx, "log", "-1", "--format=%H", "--", gitPath(path))
	if err != nil {
		return "", fmt.Errorf("finding last commit of %s: %w", path, err)
	}
	rev := strings.TrimSpace(string(out))
	if rev == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoHistory)
	}
	return rev, nil
}

// Show returns the content of path at rev.
func (g *Git) Show(ctx context.Context, rev, path string) ([]byte, error) {
	out, err := g.run(ctx, "show", rev+":"+gitPath(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s at %s: %w", path, rev, err)
	}
	return out, nil
}

// Add stages paths.
func (g *Git) Add(ctx context.Context, paths ...string) error {
	args := []string{"add", "--"}
	for _, p := range paths {
		args = append(args, gitPath(p))
	}
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("staging %s: %w", strings.Join(paths, ", "), err)
	}
	return nil
}

// statusEntry is one record of `git status --porcelain=v1 -z`.
type statusEntry struct {
	x, y byte
	path string
}

func (e statusEntry) unmerged() bool {
	switch string([]byte{e.x, e.y}) {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

func (g *Git) status(ctx context.Context) ([]statusEntry, error) {
	out, err := g.run(ctx, "status", "--porcelain=v1", "-z")
	if err != nil {
		return nil, fmt.Errorf("reading git status: %w", err)
	}
	return parsePorcelain(out), nil
}

func parsePorcelain(out []byte) []statusEntry {
	var entries []statusEntry
	fields := strings.Split(string(out), "\x00")
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if len(f) < 4 {
			continue
		}
		e := statusEntry{x: f[0], y: f[1], path: f[3:]}
		entries = append(entries, e)
		// Renames and copies carry the original path as the next field.
		if e.x == 'R' || e.x == 'C' {
			i++
		}
	}
	return entries
}

// UnstagedChanges lists tracked paths whose work tree content differs from
// the index. Untracked files are not reported.
func (g *Git) UnstagedChanges(ctx context.Context) ([]string, error) {
	entries, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.unmerged() || e.x == '?' || e.x == '!' {
			continue
		}
		if e.y != ' ' {
			paths = append(paths, e.path)
		}
	}
	return paths, nil
}

// Conflicts lists paths with unresolved merge conflicts.
func (g *Git) Conflicts(ctx context.Context) ([]string, error) {
	entries, err := g.status(ctx)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.unmerged() {
			paths = append(paths, e.path)
		}
	}
	return paths, nil
}

// gitPath converts an OS path relative to the root into git's form.
func gitPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
