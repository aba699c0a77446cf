package repo

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Snapshot is an immutable handle on the tree a treeish resolved to. It
// lives for one request and is never cached.
type Snapshot struct {
	// Hash is the id of the tree object.
	Hash plumbing.Hash
	// Commit is the commit the tree was reached through, zero when the
	// treeish named a tree directly.
	Commit plumbing.Hash
	// Source is the treeish text the snapshot was resolved from.
	Source string

	tree *object.Tree
}

// Equal reports whether both snapshots hold the same tree content.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Hash == other.Hash
}

func (s *Snapshot) String() string {
	if s == nil {
		return "<nil>"
	}
	return s.Source + "^{tree}=" + s.Hash.String()
}
