package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reldiff/internal/testutil"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitDir(t *testing.T) {
	t.Run("work tree", func(t *testing.T) {
		g := testutil.NewDiskGitRepo(t)
		dir, err := GitDir(g.Path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(g.Path, ".git"), dir)
		assert.Equal(t, dir, CommonDir(dir))
	})

	t.Run("linked work tree", func(t *testing.T) {
		root := t.TempDir()
		main := filepath.Join(root, "main.git")
		linked := filepath.Join(main, "worktrees", "feature")
		require.NoError(t, os.MkdirAll(linked, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(linked, "commondir"), []byte("../..\n"), 0o644))

		wt := filepath.Join(root, "feature")
		require.NoError(t, os.MkdirAll(wt, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: "+linked+"\n"), 0o644))

		dir, err := GitDir(wt)
		require.NoError(t, err)
		assert.Equal(t, linked, dir)
		assert.Equal(t, main, CommonDir(dir))
	})

	t.Run("not a repository", func(t *testing.T) {
		_, err := GitDir(t.TempDir())
		assert.Error(t, err)
	})
}

func TestRelevant(t *testing.T) {
	g := testutil.NewDiskGitRepo(t)
	w, err := New(g.Path)
	require.NoError(t, err)
	defer w.Close()

	gitDir := filepath.Join(g.Path, ".git")
	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{filepath.Join(gitDir, "refs", "tags"), fsnotify.Create, true},
		{filepath.Join(gitDir, "refs", "tags", "v1.0.0"), fsnotify.Create, true},
		{filepath.Join(gitDir, "refs", "tagsmith"), fsnotify.Create, false},
		{filepath.Join(gitDir, "refs", "tags", "release", "v2"), fsnotify.Write, true},
		{filepath.Join(gitDir, "refs", "tags", "v1.0.0.lock"), fsnotify.Create, false},
		{filepath.Join(gitDir, "packed-refs"), fsnotify.Write, true},
		{filepath.Join(gitDir, "HEAD"), fsnotify.Write, true},
		{filepath.Join(gitDir, "HEAD"), fsnotify.Chmod, false},
		{filepath.Join(gitDir, "index"), fsnotify.Write, false},
		{filepath.Join(gitDir, "refs", "heads", "main"), fsnotify.Write, false},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.name)+" "+tt.op.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(fsnotify.Event{Name: tt.name, Op: tt.op}))
		})
	}
}

func TestSignalsOnNewTag(t *testing.T) {
	g := testutil.NewDiskGitRepo(t)
	g.Write("a.txt", "a\n")
	h := g.Commit("one")

	w, err := New(g.Path, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	g.Tag("v1.0.0", h)

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after tagging")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestMissingTagsDirectory(t *testing.T) {
	g := testutil.NewDiskGitRepo(t)
	g.Write("a.txt", "a\n")
	h := g.Commit("one")

	tagsDir := filepath.Join(g.Path, ".git", "refs", "tags")
	require.NoError(t, os.RemoveAll(tagsDir))

	w, err := New(g.Path, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	assert.NoDirExists(t, tagsDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	g.Tag("v1.0.0", h)

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after the first tag")
	}
	assert.FileExists(t, filepath.Join(tagsDir, "v1.0.0"))

	// refs/tags is watched from here on
	g.Tag("v1.1.0", h)
	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signalled after the second tag")
	}
}
