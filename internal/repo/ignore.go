package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "reldiff/internal/errors"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const ignoreFile = ".gitignore"

// IgnorePatterns returns the repository's own ignore patterns. With a work
// tree they come from its ignore files; a bare repository falls back to the
// root .gitignore of head. No ignore file means no patterns.
func (r *Repository) IgnorePatterns(ctx context.Context, head *Snapshot) ([]gitignore.Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fs != nil {
		patterns, err := gitignore.ReadPatterns(r.fs, nil)
		if err != nil {
			return nil, apperrors.LookupFailed("reading ignore files", err)
		}
		return patterns, nil
	}

	if head == nil {
		return nil, nil
	}

	f, err := head.tree.File(ignoreFile)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.LookupFailed(fmt.Sprintf("reading %s from %s", ignoreFile, head.Source), err)
	}

	contents, err := f.Contents()
	if err != nil {
		return nil, apperrors.LookupFailed(fmt.Sprintf("reading %s from %s", ignoreFile, head.Source), err)
	}

	return ParseIgnore(contents, nil), nil
}

// ParseIgnore parses gitignore-formatted text. Blank lines and comments are
// skipped.
func ParseIgnore(text string, domain []string) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns
}
