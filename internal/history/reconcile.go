// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/review-engine/internal/bib"
	"github.com/pdiddy/review-engine/internal/logging"
	"github.com/pdiddy/review-engine/pkg/types"
)

// Reconciler loads the last committed version of the records file.
type Reconciler struct {
	git         *Git
	recordsFile string
	logger      *zap.Logger
}

// NewReconciler returns a reconciler for recordsFile, a path relative to
// the repository root.
func NewReconciler(git *Git, recordsFile string, logger *zap.Logger) *Reconciler {
	return &Reconciler{git: git, recordsFile: recordsFile, logger: logging.OrNop(logger)}
}

// LoadPrior returns the record collection as of the most recent commit that
// modified the records file. The boolean is false when no such commit exists,
// in which case the collection is empty.
func (r *Reconciler) LoadPrior(ctx context.Context) (types.RecordCollection, bool, error) {
	rev, err := r.git.LastCommitTouching(ctx, r.recordsFile)
	if errors.Is(err, ErrNoHistory) {
		r.logger.Debug("no prior records", zap.String("file", r.recordsFile))
		return types.RecordCollection{}, false, nil
	}
	if err != nil {
		return types.RecordCollection{}, false, err
	}

	data, err := r.git.Show(ctx, rev, r.recordsFile)
	if err != nil {
		return types.RecordCollection{}, false, err
	}
	c, err := bib.Parse(bytes.NewReader(data))
	if err != nil {
		return types.RecordCollection{}, false, fmt.Errorf("parsing %s at %s: %w", r.recordsFile, rev, err)
	}
	r.logger.Debug("loaded prior records",
		zap.String("commit", rev), zap.Int("records", c.Len()))
	return c, true, nil
}
