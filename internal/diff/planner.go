package diff

import (
	"context"
	"fmt"
	"path"
	"strings"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"
	"reldiff/internal/repo"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"
)

// Source supplies directory listings and ignore patterns.
type Source interface {
	Entries(ctx context.Context, dir string, snapshots ...*repo.Snapshot) ([]repo.Entry, error)
	IgnorePatterns(ctx context.Context, head *repo.Snapshot) ([]gitignore.Pattern, error)
}

type Planner struct {
	source   Source
	excludes []string
	logger   *zap.Logger
}

func NewPlanner(source Source, excludes []string, logger *zap.Logger) *Planner {
	return &Planner{
		source:   source,
		excludes: excludes,
		logger:   logging.OrNop(logger),
	}
}

// Plan builds the path plan for component between base and head. An empty
// component plans the whole repository.
func (p *Planner) Plan(ctx context.Context, base, head *repo.Snapshot, component string) (Plan, error) {
	component, err := CleanComponent(component)
	if err != nil {
		return nil, err
	}
	if component == "" {
		return WholeRepository(), nil
	}

	patterns, err := p.source.IgnorePatterns(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	entries, err := p.source.Entries(ctx, parentDir(component), base, head)
	if err != nil {
		return nil, fmt.Errorf("listing siblings of %s: %w", component, err)
	}

	plan := ComponentPlan(component, entries, NewIgnore(patterns, p.excludes))
	p.logger.Debug("built path plan",
		zap.String("component", component),
		zap.Strings("rules", plan.Paths()),
	)
	return plan, nil
}

// ComponentPlan puts component first, followed by every entry of its
// directory that is neither the component nor ignored, in listing order.
func ComponentPlan(component string, entries []repo.Entry, ignore *Ignore) Plan {
	plan := Plan{{Path: component, Kind: Include}}
	for _, e := range entries {
		if e.Path == component {
			continue
		}
		if ignore != nil && ignore.Ignored(e.Path, e.IsDir) {
			continue
		}
		plan = append(plan, Rule{Path: e.Path, Kind: Include})
	}
	return plan
}

// CleanComponent normalizes a component path relative to the repository
// root. "." and "" mean no component.
func CleanComponent(component string) (string, error) {
	c := strings.TrimSpace(strings.ReplaceAll(component, "\\", "/"))
	if c == "" {
		return "", nil
	}
	if strings.HasPrefix(c, "/") {
		return "", apperrors.ValidationError(
			fmt.Sprintf("component %q must be relative to the repository root", component), nil)
	}

	c = path.Clean(c)
	if c == "." {
		return "", nil
	}
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", apperrors.ValidationError(
			fmt.Sprintf("component %q points outside the repository", component), nil)
	}
	return c, nil
}

func parentDir(p string) string {
	dir := path.Dir(p)
	if dir == "." {
		return ""
	}
	return dir
}
