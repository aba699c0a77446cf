// Package taskgraph runs named tasks in dependency order, starting each task
// as soon as everything it depends on has succeeded.
package taskgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Results holds the values of completed tasks, keyed by task name.
type Results interface {
	Get(name string) (any, bool)
}

// Func is the body of a task. It can read the results of the tasks it
// depends on.
type Func func(ctx context.Context, deps Results) (any, error)

type node struct {
	name string
	deps []string
	fn   Func
	done chan struct{}
}

type Graph struct {
	nodes  map[string]*node
	order  []string
	logger *zap.Logger
	err    error
}

func New(logger *zap.Logger) *Graph {
	return &Graph{
		nodes:  make(map[string]*node),
		logger: logging.OrNop(logger),
	}
}

// Add registers a task. Registration errors are reported by Run.
func (g *Graph) Add(name string, deps []string, fn Func) *Graph {
	if g.err != nil {
		return g
	}
	switch {
	case name == "":
		g.err = apperrors.ValidationError("task name is empty", nil)
	case fn == nil:
		g.err = apperrors.ValidationError(fmt.Sprintf("task %q has no function", name), nil)
	case g.nodes[name] != nil:
		g.err = apperrors.ValidationError(fmt.Sprintf("task %q registered twice", name), nil)
	default:
		g.nodes[name] = &node{name: name, deps: append([]string(nil), deps...), fn: fn}
		g.order = append(g.order, name)
	}
	return g
}

// Validate checks that every dependency exists and that there are no cycles.
func (g *Graph) Validate() error {
	if g.err != nil {
		return g.err
	}

	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, name := range g.order {
		n := g.nodes[name]
		for _, d := range n.deps {
			if _, ok := g.nodes[d]; !ok {
				return apperrors.ValidationError(
					fmt.Sprintf("task %q depends on unknown task %q", name, d), nil)
			}
			indegree[name]++
			dependents[d] = append(dependents[d], name)
		}
	}

	var ready []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}
	visited := 0
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		visited++
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if visited != len(g.nodes) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return apperrors.ValidationError(
			fmt.Sprintf("dependency cycle among tasks %s", strings.Join(stuck, ", ")), nil)
	}
	return nil
}

// Run executes every task. A task starts only after all of its
// dependencies succeeded; the first failure cancels the rest and is
// returned. Tasks never started because of that failure are skipped.
func (g *Graph) Run(ctx context.Context) (Results, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	res := &results{values: make(map[string]any, len(g.nodes))}
	for _, n := range g.nodes {
		n.done = make(chan struct{})
	}

	eg, gctx := errgroup.WithContext(ctx)
	for _, name := range g.order {
		n := g.nodes[name]
		eg.Go(func() error {
			for _, d := range n.deps {
				select {
				case <-g.nodes[d].done:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			g.logger.Debug("task started", zap.String("task", n.name))
			v, err := n.fn(gctx, res)
			if err != nil {
				g.logger.Debug("task failed", zap.String("task", n.name), zap.Error(err))
				return err
			}
			res.set(n.name, v)
			close(n.done)
			g.logger.Debug("task finished", zap.String("task", n.name))
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

type results struct {
	mu     sync.RWMutex
	values map[string]any
}

func (r *results) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

func (r *results) set(name string, v any) {
	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
}

// Value fetches a task result with its concrete type.
func Value[T any](r Results, name string) (T, error) {
	var zero T
	if r == nil {
		return zero, apperrors.Internal(fmt.Sprintf("no result for task %q", name), nil)
	}
	v, ok := r.Get(name)
	if !ok {
		return zero, apperrors.Internal(fmt.Sprintf("no result for task %q", name), nil)
	}
	t, ok := v.(T)
	if !ok {
		return zero, apperrors.Internal(fmt.Sprintf("task %q produced %T", name, v), nil)
	}
	return t, nil
}
