// Package release computes the diff between two release points of a
// repository, optionally narrowed to one component.
package release

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"reldiff/internal/diff"
	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"
	"reldiff/internal/repo"
	"reldiff/internal/tags"
	"reldiff/internal/taskgraph"
	"reldiff/internal/treeish"

	"go.uber.org/zap"
)

// Task names of the per-request graph.
const (
	TaskHandle = "handle"
	TaskBase   = "base"
	TaskHead   = "head"
	TaskDiff   = "diff"
)

// Opener opens the repository at a location.
type Opener func(location string, logger *zap.Logger) (*repo.Repository, error)

// OpenRepository is the default Opener.
func OpenRepository(location string, logger *zap.Logger) (*repo.Repository, error) {
	return repo.Open(location, repo.WithLogger(logger))
}

type Request struct {
	RepoPath  string
	Base      string
	Head      string
	Component string
	TagPrefix string
	Order     tags.OrderPolicy
	Title     string
}

type Result struct {
	Text        string
	Title       string
	Repository  string
	Component   string
	Base        string
	Head        string
	BaseDerived bool
	Plan        diff.Plan
	Documents   []diff.Document
}

type Service struct {
	Open      Opener
	Excludes  []string
	Timeout   time.Duration
	// Order and TagPrefix apply to requests that leave them empty.
	Order     tags.OrderPolicy
	TagPrefix string
	logger    *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{
		Open:   OpenRepository,
		logger: logging.OrNop(logger),
	}
}

type endpoint struct {
	name     string
	derived  bool
	snapshot *repo.Snapshot
}

// Compute resolves both treeishes and diffs them. The repository is opened
// once; base and head resolve independently; the diff starts only once both
// are available.
func (s *Service) Compute(ctx context.Context, req Request) (*Result, error) {
	head := strings.TrimSpace(req.Head)
	if head == "" {
		return nil, apperrors.ValidationError("head is required", map[string]string{"head": "required"})
	}
	component, err := diff.CleanComponent(req.Component)
	if err != nil {
		return nil, err
	}
	policy := req.Order
	if policy == "" {
		policy = s.Order
	}
	if policy == "" {
		policy = tags.OrderSemver
	}
	prefix := req.TagPrefix
	if prefix == "" {
		prefix = s.TagPrefix
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	logger := s.logger.With(
		zap.String("repository", req.RepoPath),
		zap.String("head", head),
		zap.String("component", component),
	)

	g := taskgraph.New(logger)
	g.Add(TaskHandle, nil, func(ctx context.Context, _ taskgraph.Results) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.open(req.RepoPath, logger)
	})

	g.Add(TaskBase, []string{TaskHandle}, func(ctx context.Context, r taskgraph.Results) (any, error) {
		handle, err := taskgraph.Value[*repo.Repository](r, TaskHandle)
		if err != nil {
			return nil, err
		}

		ep := endpoint{name: strings.TrimSpace(req.Base)}
		if ep.name == "" {
			previous, err := tags.NewCatalog(handle, logger).FindPrevious(ctx, head, prefix, policy)
			if err != nil {
				return nil, fmt.Errorf("deriving base from %s: %w", head, err)
			}
			ep.name, ep.derived = previous, true
			logger.Debug("derived base", zap.String("base", previous))
		}

		ep.snapshot, err = treeish.NewResolver(handle, logger).Resolve(ctx, ep.name)
		if err != nil {
			return nil, fmt.Errorf("resolving base %s: %w", ep.name, err)
		}
		return ep, nil
	})

	g.Add(TaskHead, []string{TaskHandle}, func(ctx context.Context, r taskgraph.Results) (any, error) {
		handle, err := taskgraph.Value[*repo.Repository](r, TaskHandle)
		if err != nil {
			return nil, err
		}
		snap, err := treeish.NewResolver(handle, logger).Resolve(ctx, head)
		if err != nil {
			return nil, fmt.Errorf("resolving head %s: %w", head, err)
		}
		return endpoint{name: head, snapshot: snap}, nil
	})

	g.Add(TaskDiff, []string{TaskHandle, TaskBase, TaskHead}, func(ctx context.Context, r taskgraph.Results) (any, error) {
		handle, err := taskgraph.Value[*repo.Repository](r, TaskHandle)
		if err != nil {
			return nil, err
		}
		base, err := taskgraph.Value[endpoint](r, TaskBase)
		if err != nil {
			return nil, err
		}
		tip, err := taskgraph.Value[endpoint](r, TaskHead)
		if err != nil {
			return nil, err
		}

		plan, err := diff.NewPlanner(handle, s.Excludes, logger).Plan(ctx, base.snapshot, tip.snapshot, component)
		if err != nil {
			return nil, err
		}
		out, err := diff.NewEngine(handle, logger).Run(ctx, base.snapshot, tip.snapshot, plan)
		if err != nil {
			return nil, err
		}

		res := &Result{
			Text:        out.Text,
			Repository:  handle.Name(),
			Component:   component,
			Base:        base.name,
			Head:        tip.name,
			BaseDerived: base.derived,
			Plan:        plan,
			Documents:   out.Documents,
		}
		res.Title = req.Title
		if res.Title == "" {
			res.Title = Title(res.Repository, component, res.Base, res.Head)
		}
		return res, nil
	})

	results, err := g.Run(ctx)
	if err != nil {
		return nil, err
	}
	res, err := taskgraph.Value[*Result](results, TaskDiff)
	if err != nil {
		return nil, err
	}

	logger.Info("computed release diff",
		zap.String("base", res.Base),
		zap.Bool("base_derived", res.BaseDerived),
		zap.Strings("plan", res.Plan.Paths()),
		zap.Int("bytes", len(res.Text)),
	)
	return res, nil
}

// Tags lists the repository's tags under prefix in policy order.
func (s *Service) Tags(ctx context.Context, location, prefix string, policy tags.OrderPolicy) (*tags.Listing, error) {
	handle, err := s.open(location, s.logger)
	if err != nil {
		return nil, err
	}
	return tags.NewCatalog(handle, s.logger).List(ctx, prefix, policy)
}

// Previous returns the tag released before target.
func (s *Service) Previous(ctx context.Context, location, target, prefix string, policy tags.OrderPolicy) (string, error) {
	handle, err := s.open(location, s.logger)
	if err != nil {
		return "", err
	}
	return tags.NewCatalog(handle, s.logger).FindPrevious(ctx, target, prefix, policy)
}

func (s *Service) open(location string, logger *zap.Logger) (*repo.Repository, error) {
	open := s.Open
	if open == nil {
		open = OpenRepository
	}
	if location == "" {
		location = "."
	}
	return open(location, logger)
}

// Title names a diff after the component, or the repository when the
// whole tree is diffed.
func Title(repository, component, base, head string) string {
	name := repository
	if component != "" {
		name = path.Base(component)
	}
	return fmt.Sprintf("Diff of %q from %s to %s", name, base, head)
}
