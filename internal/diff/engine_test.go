package diff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/repo"
	"reldiff/internal/testutil"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDiffer returns "<path>\n" for rules whose sample path matches, and
// lets tests control completion order.
type scriptedDiffer struct {
	texts map[string]string
	fail  map[string]error
	wait  map[string]chan struct{} // rule waits on this before answering
	done  map[string]chan struct{} // closed once the rule has answered
	calls atomic.Int32
}

func (p *scriptedDiffer) Diff(ctx context.Context, _, _ *repo.Snapshot, match func(string) bool) (string, error) {
	p.calls.Add(1)
	for sample, text := range p.texts {
		if !match(sample) {
			continue
		}
		if ch, ok := p.wait[sample]; ok {
			select {
			case <-ch:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if ch, ok := p.done[sample]; ok {
			defer close(ch)
		}
		if err := p.fail[sample]; err != nil {
			return "", err
		}
		return text, nil
	}
	return "", nil
}

func TestEngineJoinsByPlanIndex(t *testing.T) {
	secondDone := make(chan struct{})
	differ := &scriptedDiffer{
		texts: map[string]string{
			"services/api/x":     "api\n",
			"services/billing/x": "billing\n",
			"services/web/x":     "",
		},
		// the first rule only answers after the second finished
		wait: map[string]chan struct{}{"services/api/x": secondDone},
		done: map[string]chan struct{}{"services/billing/x": secondDone},
	}

	plan := Plan{
		{Path: "services/api"},
		{Path: "services/billing"},
		{Path: "services/web"},
	}

	result, err := NewEngine(differ, nil).Run(context.Background(), &repo.Snapshot{}, &repo.Snapshot{}, plan)
	require.NoError(t, err)
	assert.Equal(t, "api\nbilling\n", result.Text)
	require.Len(t, result.Documents, 3)
	assert.Equal(t, "services/web", result.Documents[2].Rule.Path)
	assert.Empty(t, result.Documents[2].Text)
	assert.Equal(t, []int{4, 8}, result.Sizes())
	assert.EqualValues(t, 3, differ.calls.Load())
}

func TestEngineFailsOnAnyRule(t *testing.T) {
	differ := &scriptedDiffer{
		texts: map[string]string{"a/x": "a\n", "b/x": "b\n"},
		fail:  map[string]error{"b/x": errors.New("packfile corrupt")},
	}

	_, err := NewEngine(differ, nil).Run(context.Background(), &repo.Snapshot{}, &repo.Snapshot{},
		Plan{{Path: "a"}, {Path: "b"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeDiffFailed, apperrors.TypeOf(err))
	assert.Contains(t, err.Error(), "packfile corrupt")
}

func TestEngineNeedsBothTrees(t *testing.T) {
	differ := &scriptedDiffer{}
	e := NewEngine(differ, nil)

	_, err := e.Run(context.Background(), nil, &repo.Snapshot{}, WholeRepository())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeDiffFailed, apperrors.TypeOf(err))

	_, err = e.Run(context.Background(), &repo.Snapshot{}, &repo.Snapshot{}, nil)
	require.Error(t, err)
	assert.EqualValues(t, 0, differ.calls.Load())
}

func newMonorepo(t *testing.T) (*testutil.GitRepo, *repo.Repository) {
	g := testutil.NewGitRepo(t)
	g.Write(".gitignore", "services/web\n")
	g.Write("services/api/main.go", "package main\n")
	g.Write("services/billing/bill.go", "package billing\n")
	g.WriteTracked("services/web/app.js", "console.log(1)\n")
	g.Write("services/README.md", "services\n")
	g.Write("lib/util.go", "package lib\n")
	g.Tag("v1.0.0", g.Commit("v1"))

	g.Write("services/api/main.go", "package main\n\nfunc main() {}\n")
	g.Write("services/api/handler.go", "package main\n")
	g.Write("services/billing/bill.go", "package billing\n\nvar Rate = 2\n")
	g.Write("services/web/app.js", "console.log(2)\n")
	g.Write("services/README.md", "services v2\n")
	g.Write("lib/util.go", "package lib\n\nvar X = 1\n")
	g.Tag("v1.1.0", g.Commit("v1.1"))

	return g, repo.FromGit(g.Git)
}

func TestPlannerAndEngineOnRepository(t *testing.T) {
	_, r := newMonorepo(t)
	ctx := context.Background()

	base, err := r.TagTree(ctx, "v1.0.0")
	require.NoError(t, err)
	head, err := r.TagTree(ctx, "v1.1.0")
	require.NoError(t, err)

	planner := NewPlanner(r, nil, nil)

	t.Run("component plan", func(t *testing.T) {
		plan, err := planner.Plan(ctx, base, head, "./services/api/")
		require.NoError(t, err)
		assert.Equal(t, []string{"services/api", "services/billing"}, plan.Paths())

		result, err := NewEngine(r, nil).Run(ctx, base, head, plan)
		require.NoError(t, err)

		assert.Contains(t, result.Documents[0].Text, "services/api/main.go")
		assert.Contains(t, result.Documents[0].Text, "services/api/handler.go")
		assert.NotContains(t, result.Documents[0].Text, "billing")
		assert.Contains(t, result.Documents[1].Text, "services/billing/bill.go")
		assert.NotContains(t, result.Text, "services/web")
		assert.NotContains(t, result.Text, "README")
		assert.NotContains(t, result.Text, "lib/util.go")

		// api documents come before billing documents
		assert.Less(t, strings.Index(result.Text, "services/api/"), strings.Index(result.Text, "services/billing/"))

		parts, err := Split(result.Text, result.Sizes())
		require.NoError(t, err)
		assert.Equal(t, result.Text, Assemble(parts...))
	})

	t.Run("whole repository", func(t *testing.T) {
		plan, err := planner.Plan(ctx, base, head, "")
		require.NoError(t, err)
		assert.Equal(t, WholeRepository(), plan)

		result, err := NewEngine(r, nil).Run(ctx, base, head, plan)
		require.NoError(t, err)
		for _, p := range []string{"services/api/main.go", "services/web/app.js", "lib/util.go", "services/README.md"} {
			assert.Contains(t, result.Text, p)
		}
	})

	t.Run("configured excludes", func(t *testing.T) {
		plan, err := NewPlanner(r, []string{"billing"}, nil).Plan(ctx, base, head, "services/api")
		require.NoError(t, err)
		assert.Equal(t, []string{"services/api"}, plan.Paths())
	})
}

func TestPlanPartitionsChanges(t *testing.T) {
	_, r := newMonorepo(t)
	ctx := context.Background()

	base, err := r.TagTree(ctx, "v1.0.0")
	require.NoError(t, err)
	head, err := r.TagTree(ctx, "v1.1.0")
	require.NoError(t, err)

	plan := Plan{{Path: "lib"}, {Path: "services"}}
	result, err := NewEngine(r, nil).Run(ctx, base, head, plan)
	require.NoError(t, err)

	whole, err := r.Diff(ctx, base, head, nil)
	require.NoError(t, err)

	// same changed files, each in its own rule's document
	assert.ElementsMatch(t, changedPaths(whole), changedPaths(result.Text))
	for i, doc := range result.Documents {
		for _, p := range changedPaths(doc.Text) {
			assert.True(t, strings.HasPrefix(p, plan[i].Path+"/"),
				fmt.Sprintf("%s filed under %s", p, plan[i].Path))
		}
	}
	assert.Equal(t, []string{"lib/util.go"}, changedPaths(result.Documents[0].Text))
}

type failingSource struct{ err error }

func (f failingSource) Entries(context.Context, string, ...*repo.Snapshot) ([]repo.Entry, error) {
	return nil, f.err
}

func (f failingSource) IgnorePatterns(context.Context, *repo.Snapshot) ([]gitignore.Pattern, error) {
	return nil, nil
}

func TestPlannerListingFailure(t *testing.T) {
	planner := NewPlanner(failingSource{err: apperrors.LookupFailed("reading directory", errors.New("bad tree"))}, nil, nil)

	_, err := planner.Plan(context.Background(), &repo.Snapshot{}, &repo.Snapshot{}, "services/api")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeLookupFailed, apperrors.TypeOf(err))
}

// changedPaths returns the "a/" side path of every file header in a patch.
func changedPaths(text string) []string {
	var paths []string
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(line, "diff --git a/"); ok {
			if i := strings.Index(rest, " b/"); i >= 0 {
				paths = append(paths, rest[:i])
			}
		}
	}
	return paths
}

func TestMovesAcrossRuleBoundaries(t *testing.T) {
	g := testutil.NewGitRepo(t)
	g.Write(".gitignore", "services/web\n")
	g.Write("services/api/main.go", "package main\n")
	g.Write("services/api/moved.go", "package api\n\nfunc Moved() {}\n")
	g.Write("services/api/hidden.go", "package api\n\nfunc Hidden() {}\n")
	g.Write("services/billing/shared.go", "package billing\n\nfunc Shared() {}\n")
	g.WriteTracked("services/web/app.js", "1\n")
	g.Write("lib/util.go", "package lib\n")
	g.Tag("v1", g.Commit("one"))

	// out of the component into a directory outside the plan
	g.Remove("services/api/moved.go")
	g.Write("lib/moved.go", "package api\n\nfunc Moved() {}\n")
	// out of the component into an ignored sibling
	g.Remove("services/api/hidden.go")
	g.WriteTracked("services/web/hidden.go", "package api\n\nfunc Hidden() {}\n")
	// from a planned sibling into the component
	g.Remove("services/billing/shared.go")
	g.Write("services/api/shared.go", "package billing\n\nfunc Shared() {}\n")
	g.Tag("v2", g.Commit("two"))

	r := repo.FromGit(g.Git)
	ctx := context.Background()
	base, err := r.TagTree(ctx, "v1")
	require.NoError(t, err)
	head, err := r.TagTree(ctx, "v2")
	require.NoError(t, err)

	plan, err := NewPlanner(r, nil, nil).Plan(ctx, base, head, "services/api")
	require.NoError(t, err)
	require.Equal(t, []string{"services/api", "services/billing"}, plan.Paths())

	result, err := NewEngine(r, nil).Run(ctx, base, head, plan)
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)

	component, sibling := result.Documents[0].Text, result.Documents[1].Text
	assert.ElementsMatch(t,
		[]string{"services/api/hidden.go", "services/api/moved.go", "services/api/shared.go"},
		changedPaths(component))
	assert.Equal(t, []string{"services/billing/shared.go"}, changedPaths(sibling))

	assert.Contains(t, component, "deleted file mode")
	assert.Contains(t, component, "+++ b/services/api/shared.go")
	assert.Contains(t, sibling, "--- a/services/billing/shared.go")

	// the far side of each move is outside the plan
	assert.NotContains(t, result.Text, "lib/moved.go")
	assert.NotContains(t, result.Text, "services/web/hidden.go")

	whole, err := r.Diff(ctx, base, head, nil)
	require.NoError(t, err)
	assert.Len(t, changedPaths(whole), 6)
}
