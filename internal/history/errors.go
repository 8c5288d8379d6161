// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"context"
	"fmt"
	"strings"
)

// UnstagedChangesError reports work tree changes that are not staged. The
// pre-commit gate checks the staged state and refuses to run against a
// work tree that differs from it.
type UnstagedChangesError struct {
	Paths []string
}

func (e *UnstagedChangesError) Error() string {
	return fmt.Sprintf("unstaged changes in %s; stage or stash them first", strings.Join(e.Paths, ", "))
}

// ConflictError reports unresolved merge conflicts.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("please resolve git conflicts in %s", strings.Join(e.Paths, ", "))
}

// CheckPreconditions verifies that the root is a repository without merge
// conflicts and, when requireStaged is set, without unstaged changes.
func (g *Git) CheckPreconditions(ctx context.Context, requireStaged bool) error {
	if !g.IsRepo(ctx) {
		return fmt.Errorf("%s: %w", g.root, ErrNotRepository)
	}
	conflicts, err := g.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Paths: conflicts}
	}
	if !requireStaged {
		return nil
	}
	unstaged, err := g.UnstagedChanges(ctx)
	if err != nil {
		return err
	}
	if len(unstaged) > 0 {
		return &UnstagedChangesError{Paths: unstaged}
	}
	return nil
}
