package taskgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	apperrors "reldiff/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constant(v any) Func {
	return func(context.Context, Results) (any, error) { return v, nil }
}

func TestRunInDependencyOrder(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	record := func(name string, v any) Func {
		return func(context.Context, Results) (any, error) {
			mu.Lock()
			trace = append(trace, name)
			mu.Unlock()
			return v, nil
		}
	}

	g := New(nil).
		Add("diff", []string{"base", "head"}, func(ctx context.Context, r Results) (any, error) {
			base, err := Value[int](r, "base")
			if err != nil {
				return nil, err
			}
			head, err := Value[int](r, "head")
			if err != nil {
				return nil, err
			}
			return head - base, nil
		}).
		Add("base", []string{"handle"}, record("base", 3)).
		Add("head", []string{"handle"}, record("head", 10)).
		Add("handle", nil, record("handle", "repo"))

	res, err := g.Run(context.Background())
	require.NoError(t, err)

	diff, err := Value[int](res, "diff")
	require.NoError(t, err)
	assert.Equal(t, 7, diff)

	require.Len(t, trace, 3)
	assert.Equal(t, "handle", trace[0])
	assert.ElementsMatch(t, []string{"base", "head"}, trace[1:])
}

func TestIndependentTasksRunConcurrently(t *testing.T) {
	// each sibling waits for the other to start, which deadlocks if they
	// are run one after the other
	aStarted, bStarted := make(chan struct{}), make(chan struct{})
	wait := func(mine, other chan struct{}) Func {
		return func(ctx context.Context, _ Results) (any, error) {
			close(mine)
			select {
			case <-other:
				return true, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	g := New(nil).
		Add("a", nil, wait(aStarted, bStarted)).
		Add("b", nil, wait(bStarted, aStarted))

	_, err := g.Run(context.Background())
	require.NoError(t, err)
}

func TestFailureSkipsDependents(t *testing.T) {
	var ran atomic.Bool
	boom := apperrors.NotFound("tag v9 not found", nil)

	g := New(nil).
		Add("handle", nil, constant("repo")).
		Add("base", []string{"handle"}, func(context.Context, Results) (any, error) { return nil, boom }).
		Add("head", []string{"handle"}, constant(1)).
		Add("diff", []string{"base", "head"}, func(context.Context, Results) (any, error) {
			ran.Store(true)
			return "text", nil
		})

	res, err := g.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, ran.Load())

	_, ok := res.Get("diff")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph
		msg   string
	}{
		{
			name: "unknown dependency",
			build: func() *Graph {
				return New(nil).Add("diff", []string{"base"}, constant(1))
			},
			msg: `unknown task "base"`,
		},
		{
			name: "duplicate",
			build: func() *Graph {
				return New(nil).Add("a", nil, constant(1)).Add("a", nil, constant(2))
			},
			msg: "registered twice",
		},
		{
			name: "cycle",
			build: func() *Graph {
				return New(nil).
					Add("root", nil, constant(0)).
					Add("a", []string{"root", "b"}, constant(1)).
					Add("b", []string{"a"}, constant(2))
			},
			msg: "cycle among tasks a, b",
		},
		{
			name: "missing function",
			build: func() *Graph {
				return New(nil).Add("a", nil, nil)
			},
			msg: "has no function",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.build()
			err := g.Validate()
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.TypeOf(err))
			assert.Contains(t, err.Error(), tt.msg)

			_, err = g.Run(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New(nil).
		Add("a", nil, func(ctx context.Context, _ Results) (any, error) { return nil, ctx.Err() }).
		Add("b", []string{"a"}, constant(1))

	_, err := g.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValueTypeMismatch(t *testing.T) {
	res, err := New(nil).Add("a", nil, constant("text")).Run(context.Background())
	require.NoError(t, err)

	_, err = Value[int](res, "a")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeInternal, apperrors.TypeOf(err))

	_, err = Value[string](res, "missing")
	assert.Error(t, err)

	s, err := Value[string](res, "a")
	require.NoError(t, err)
	assert.Equal(t, "text", s)
}
