// Package testutil builds throwaway git repositories for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// GitRepo is a repository with a work tree that tests write files into and
// commit from.
type GitRepo struct {
	t     *testing.T
	Git   *git.Repository
	FS    billy.Filesystem
	Path  string // empty for in-memory repositories
	clock time.Time
}

// NewGitRepo creates an in-memory repository.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	r, err := git.Init(memory.NewStorage(), memfs.New())
	require.NoError(t, err)

	return wrap(t, r, "")
}

// NewDiskGitRepo creates a repository in a temporary directory.
func NewDiskGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	return wrap(t, r, dir)
}

func wrap(t *testing.T, r *git.Repository, path string) *GitRepo {
	wt, err := r.Worktree()
	require.NoError(t, err)

	return &GitRepo{
		t:     t,
		Git:   r,
		FS:    wt.Filesystem,
		Path:  path,
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (g *GitRepo) Write(path, content string) {
	g.t.Helper()
	require.NoError(g.t, util.WriteFile(g.FS, filepath.ToSlash(path), []byte(content), 0o644))
}

// WriteTracked writes a file and stages it even when .gitignore matches it,
// the way "git add -f" does. Later edits to it are picked up by Commit.
func (g *GitRepo) WriteTracked(path, content string) {
	g.t.Helper()
	g.Write(path, content)

	wt, err := g.Git.Worktree()
	require.NoError(g.t, err)
	_, err = wt.Add(filepath.ToSlash(path))
	require.NoError(g.t, err)
}

func (g *GitRepo) Remove(path string) {
	g.t.Helper()
	require.NoError(g.t, g.FS.Remove(path))
}

// Commit stages every change in the work tree, deletions included, and
// commits it.
func (g *GitRepo) Commit(message string) plumbing.Hash {
	g.t.Helper()

	wt, err := g.Git.Worktree()
	require.NoError(g.t, err)
	require.NoError(g.t, wt.AddWithOptions(&git.AddOptions{All: true}))

	hash, err := wt.Commit(message, &git.CommitOptions{
		All:    true,
		Author: g.signature(),
	})
	require.NoError(g.t, err)
	return hash
}

// Tag creates a lightweight tag pointing at hash.
func (g *GitRepo) Tag(name string, hash plumbing.Hash) {
	g.t.Helper()
	_, err := g.Git.CreateTag(name, hash, nil)
	require.NoError(g.t, err)
}

// AnnotatedTag creates an annotated tag object pointing at hash.
func (g *GitRepo) AnnotatedTag(name string, hash plumbing.Hash) {
	g.t.Helper()
	_, err := g.Git.CreateTag(name, hash, &git.CreateTagOptions{
		Tagger:  g.signature(),
		Message: "release " + name,
	})
	require.NoError(g.t, err)
}

// TreeHash returns the tree id of commit.
func (g *GitRepo) TreeHash(commit plumbing.Hash) plumbing.Hash {
	g.t.Helper()
	c, err := g.Git.CommitObject(commit)
	require.NoError(g.t, err)
	return c.TreeHash
}

// BlobHash returns the blob id of path in commit.
func (g *GitRepo) BlobHash(commit plumbing.Hash, path string) plumbing.Hash {
	g.t.Helper()
	c, err := g.Git.CommitObject(commit)
	require.NoError(g.t, err)
	f, err := c.File(path)
	require.NoError(g.t, err)
	return f.Hash
}

func (g *GitRepo) signature() *object.Signature {
	g.clock = g.clock.Add(time.Minute)
	return &object.Signature{
		Name:  "Release Bot",
		Email: "release@example.com",
		When:  g.clock,
	}
}
