package repo

import (
	"context"
	"fmt"

	apperrors "reldiff/internal/errors"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

type treePair struct {
	base, head plumbing.Hash
}

// Diff computes the tree-to-tree diff between base and head, keeps the
// changes whose path satisfies match and returns them as unified patch
// text. A diff with no matching change is the empty string.
//
// Renames are not detected: a moved file is a deletion at its old path and
// an addition at its new one, so every change has exactly one path.
func (r *Repository) Diff(ctx context.Context, base, head *Snapshot, match func(path string) bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if base == nil || head == nil {
		return "", apperrors.DiffFailed("diff requires two resolved trees", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changes, err := r.treeChanges(ctx, base, head)
	if err != nil {
		return "", err
	}

	var selected object.Changes
	for _, ch := range changes {
		if match == nil || match(ChangePath(ch)) {
			selected = append(selected, ch)
		}
	}
	if len(selected) == 0 {
		return "", nil
	}

	patch, err := selected.PatchContext(ctx)
	if err != nil {
		return "", apperrors.DiffFailed(fmt.Sprintf("building patch %s..%s", base.Source, head.Source), err)
	}

	text := patch.String()
	r.logger.Debug("diffed trees",
		zap.String("base", base.Source),
		zap.String("head", head.Source),
		zap.Int("changes", len(selected)),
		zap.Int("bytes", len(text)),
	)
	return text, nil
}

// treeChanges returns the change list between two trees, computing it once
// per pair for the lifetime of the handle. Callers hold r.mu.
func (r *Repository) treeChanges(ctx context.Context, base, head *Snapshot) (object.Changes, error) {
	key := treePair{base: base.Hash, head: head.Hash}
	if changes, ok := r.changes[key]; ok {
		return changes, nil
	}

	changes, err := object.DiffTreeWithOptions(ctx, base.tree, head.tree, &object.DiffTreeOptions{DetectRenames: false})
	if err != nil {
		return nil, apperrors.DiffFailed(fmt.Sprintf("diffing %s..%s", base.Source, head.Source), err)
	}

	if r.changes == nil {
		r.changes = make(map[treePair]object.Changes)
	}
	r.changes[key] = changes
	return changes, nil
}

// ChangePath is the path a change is filed under: the new path of an
// addition or modification, the old path of a deletion.
func ChangePath(ch *object.Change) string {
	if ch.To.Name != "" {
		return ch.To.Name
	}
	return ch.From.Name
}
