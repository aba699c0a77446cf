package diff

import (
	"strings"

	"reldiff/internal/repo"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// BuiltinExcludes are metadata and documentation paths that never take part
// in a release diff.
var BuiltinExcludes = []string{
	".git",
	".github",
	".gitlab",
	".gitignore",
	".gitattributes",
	".gitmodules",
	".gitlab-ci.yml",
	".editorconfig",
	"docs/",
	"doc/",
	"README*",
	"CHANGELOG*",
}

// Ignore decides which directory entries are left out of a plan.
type Ignore struct {
	matcher gitignore.Matcher
}

// NewIgnore combines the repository's patterns, configured extras and the
// built-in excludes. Later sources win, so a repository cannot re-include
// a built-in exclude.
func NewIgnore(repoPatterns []gitignore.Pattern, extra []string) *Ignore {
	patterns := make([]gitignore.Pattern, 0, len(repoPatterns)+len(extra)+len(BuiltinExcludes))
	patterns = append(patterns, repoPatterns...)
	patterns = append(patterns, repo.ParseIgnore(strings.Join(extra, "\n"), nil)...)
	patterns = append(patterns, repo.ParseIgnore(strings.Join(BuiltinExcludes, "\n"), nil)...)

	return &Ignore{matcher: gitignore.NewMatcher(patterns)}
}

// Ignored reports whether the slash separated path is excluded.
func (i *Ignore) Ignored(p string, isDir bool) bool {
	if p == "" {
		return false
	}
	return i.matcher.Match(strings.Split(p, "/"), isDir)
}
