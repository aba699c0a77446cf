// Package repo is the object-store layer: it opens git repositories with
// go-git, resolves tags and object ids to tree snapshots, enumerates tags,
// lists tree entries, reads ignore files and produces tree-to-tree patches.
package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "reldiff/internal/errors"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

const tagRefPrefix = "refs/tags/"

// Repository is a read-only handle on one git repository. It is shared by
// every resolution and diff call of a single request.
type Repository struct {
	git    *git.Repository
	fs     billy.Filesystem // work tree, nil for bare repositories
	name   string
	logger *zap.Logger

	// go-git storage is not safe for concurrent readers
	mu      sync.Mutex
	changes map[treePair]object.Changes
}

type Option func(*Repository)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithName(name string) Option {
	return func(r *Repository) {
		r.name = name
	}
}

// Open opens the repository at location, which may be a work tree or a
// git directory.
func Open(location string, opts ...Option) (*Repository, error) {
	r, err := git.PlainOpenWithOptions(location, &git.PlainOpenOptions{
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, apperrors.NotFound(fmt.Sprintf("repository %s does not exist", location), err)
		}
		return nil, apperrors.LookupFailed(fmt.Sprintf("opening repository %s", location), err)
	}

	name := location
	if abs, err := filepath.Abs(location); err == nil {
		name = filepath.Base(strings.TrimSuffix(abs, string(filepath.Separator)+".git"))
	}

	return FromGit(r, append([]Option{WithName(name)}, opts...)...), nil
}

// FromGit wraps an already opened go-git repository.
func FromGit(r *git.Repository, opts ...Option) *Repository {
	repo := &Repository{
		git:    r,
		name:   "repository",
		logger: zap.NewNop(),
	}
	if wt, err := r.Worktree(); err == nil {
		repo.fs = wt.Filesystem
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Name is the directory name of the repository, used in diff titles.
func (r *Repository) Name() string {
	return r.name
}

// TagTree resolves refs/tags/<name> and peels it to a tree. A tag that does
// not exist is NOT_FOUND; any other lookup or peel failure is LOOKUP_FAILED.
func (r *Repository) TagTree(ctx context.Context, name string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ref, err := r.git.Reference(plumbing.NewTagReferenceName(name), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("tag %s not found", name), err)
		}
		return nil, apperrors.LookupFailed(fmt.Sprintf("looking up tag %s", name), err)
	}

	obj, err := r.git.Object(plumbing.AnyObject, ref.Hash())
	if err != nil {
		return nil, apperrors.LookupFailed(fmt.Sprintf("reading object %s of tag %s", ref.Hash(), name), err)
	}

	return r.snapshot(name, obj)
}

// ObjectTree looks an object up by id and peels it to a tree. An id absent
// from the store is NOT_FOUND.
func (r *Repository) ObjectTree(ctx context.Context, id plumbing.Hash) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	obj, err := r.git.Object(plumbing.AnyObject, id)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("object %s not found", id), err)
		}
		return nil, apperrors.LookupFailed(fmt.Sprintf("looking up object %s", id), err)
	}

	return r.snapshot(id.String(), obj)
}

func (r *Repository) snapshot(source string, obj object.Object) (*Snapshot, error) {
	tree, commit, err := peel(obj)
	if err != nil {
		return nil, apperrors.LookupFailed(fmt.Sprintf("tree lookup failed for %s", source), err)
	}

	r.logger.Debug("resolved tree",
		zap.String("source", source),
		zap.String("tree", tree.Hash.String()),
	)

	return &Snapshot{
		Hash:   tree.Hash,
		Commit: commit,
		Source: source,
		tree:   tree,
	}, nil
}

// peel follows annotated tags and commits down to a tree.
func peel(obj object.Object) (*object.Tree, plumbing.Hash, error) {
	for {
		switch o := obj.(type) {
		case *object.Tree:
			return o, plumbing.ZeroHash, nil
		case *object.Commit:
			tree, err := o.Tree()
			if err != nil {
				return nil, o.Hash, fmt.Errorf("reading tree of commit %s: %w", o.Hash, err)
			}
			return tree, o.Hash, nil
		case *object.Tag:
			next, err := o.Object()
			if err != nil {
				return nil, plumbing.ZeroHash, fmt.Errorf("reading target of tag %s: %w", o.Name, err)
			}
			obj = next
		default:
			return nil, plumbing.ZeroHash, fmt.Errorf("%s %s is not tree-bearing", obj.Type(), obj.ID())
		}
	}
}

// TagNames lists every tag name in store enumeration order.
func (r *Repository) TagNames(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	iter, err := r.git.Tags()
	if err != nil {
		return nil, apperrors.ListFailed("listing tags", err)
	}
	defer iter.Close()

	var names []string
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		names = append(names, strings.TrimPrefix(ref.Name().String(), tagRefPrefix))
		return nil
	})
	if err != nil {
		return nil, apperrors.ListFailed("listing tags", err)
	}

	return names, nil
}

// Entry is one name found in a tree directory.
type Entry struct {
	Name  string
	Path  string
	IsDir bool
}

// Entries returns the union of the entries found at dir in the given
// snapshots, sorted by name. A snapshot without dir contributes nothing.
func (r *Repository) Entries(ctx context.Context, dir string, snapshots ...*Snapshot) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]Entry)
	for _, s := range snapshots {
		if s == nil {
			continue
		}

		tree := s.tree
		if dir != "" {
			sub, err := s.tree.Tree(dir)
			if errors.Is(err, object.ErrDirectoryNotFound) {
				continue
			}
			if err != nil {
				return nil, apperrors.LookupFailed(fmt.Sprintf("reading directory %s", dir), err)
			}
			tree = sub
		}

		for _, e := range tree.Entries {
			p := e.Name
			if dir != "" {
				p = dir + "/" + e.Name
			}
			seen[e.Name] = Entry{
				Name:  e.Name,
				Path:  p,
				IsDir: e.Mode == filemode.Dir,
			}
		}
	}

	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}
