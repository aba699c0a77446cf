package diff

import (
	"context"
	"fmt"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"
	"reldiff/internal/repo"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Differ computes one filtered tree-to-tree diff as patch text.
type Differ interface {
	Diff(ctx context.Context, base, head *repo.Snapshot, match func(path string) bool) (string, error)
}

// Document is the patch text produced for one rule.
type Document struct {
	Rule Rule   `json:"rule"`
	Text string `json:"text"`
}

// Result is an assembled diff together with the per-rule documents it was
// built from, in plan order.
type Result struct {
	Text      string
	Documents []Document
}

// Sizes returns the byte length of every non-empty document, the
// boundaries Split needs to take Text apart again.
func (r *Result) Sizes() []int {
	var sizes []int
	for _, d := range r.Documents {
		if d.Text != "" {
			sizes = append(sizes, len(d.Text))
		}
	}
	return sizes
}

type Engine struct {
	differ Differ
	logger *zap.Logger
}

func NewEngine(differ Differ, logger *zap.Logger) *Engine {
	return &Engine{
		differ: differ,
		logger: logging.OrNop(logger),
	}
}

// Run diffs every rule of plan between base and head. Rules run
// concurrently; documents are joined by plan index. One failing rule fails
// the whole run.
func (e *Engine) Run(ctx context.Context, base, head *repo.Snapshot, plan Plan) (*Result, error) {
	if base == nil || head == nil {
		return nil, apperrors.DiffFailed("both trees must be resolved before diffing", nil)
	}
	if len(plan) == 0 {
		return nil, apperrors.ValidationError("path plan is empty", nil)
	}

	docs := make([]Document, len(plan))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range plan {
		g.Go(func() error {
			text, err := e.differ.Diff(gctx, base, head, rule.Matches)
			if err != nil {
				return apperrors.DiffFailed(fmt.Sprintf("diffing %s", rule), err)
			}
			docs[i] = Document{Rule: rule, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
		e.logger.Debug("rule diffed",
			zap.Int("index", i),
			zap.String("rule", d.Rule.String()),
			zap.Int("bytes", len(d.Text)),
		)
	}

	return &Result{
		Text:      Assemble(texts...),
		Documents: docs,
	}, nil
}
