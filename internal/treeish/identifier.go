// Package treeish turns user supplied identifiers (tag names or object ids)
// into tree snapshots.
package treeish

import (
	"fmt"
	"strings"
	"unicode"

	apperrors "reldiff/internal/errors"

	"github.com/go-git/go-git/v5/plumbing"
)

// Identifier is either a ContentID or a TagName.
type Identifier interface {
	fmt.Stringer
	isIdentifier()
}

// ContentID is a full hex object id.
type ContentID struct {
	Hash plumbing.Hash
}

func (ContentID) isIdentifier() {}

func (c ContentID) String() string { return c.Hash.String() }

// TagName is anything that is not a content id.
type TagName struct {
	Name string
}

func (TagName) isIdentifier() {}

func (t TagName) String() string { return t.Name }

// Parse classifies s by syntax alone: 40 hex characters that are not all
// zero form a ContentID, everything else is a TagName. Empty input and input
// containing spaces or control characters cannot name either.
func Parse(s string) (Identifier, error) {
	if strings.TrimSpace(s) == "" {
		return nil, apperrors.AmbiguousInput("treeish must not be empty")
	}
	if i := strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}); i >= 0 {
		return nil, apperrors.AmbiguousInput(fmt.Sprintf("treeish %q contains whitespace or control characters", s))
	}

	if plumbing.IsHash(s) {
		h := plumbing.NewHash(s)
		if !h.IsZero() {
			return ContentID{Hash: h}, nil
		}
	}
	return TagName{Name: s}, nil
}

// IsContentID reports whether s would be resolved as an object id.
func IsContentID(s string) bool {
	id, err := Parse(s)
	if err != nil {
		return false
	}
	_, ok := id.(ContentID)
	return ok
}
