// Package diff builds path plans for release diffs, runs one tree diff per
// rule and assembles the resulting patch documents.
//
// The object store can restrict a diff to an included path but cannot
// exclude one, so "component C without its siblings" is expressed as a
// plan of single-path inclusions that are diffed separately and joined.
// Only plan construction needs to change if exclusions become available.
package diff

import (
	"strings"
)

// Kind tells whether a rule selects or rejects its path.
type Kind int

const (
	Include Kind = iota
	Exclude
)

// Wildcard is the rule path that selects the whole repository.
const Wildcard = "*"

// Rule is a single pathspec.
type Rule struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Matches reports whether a repository path falls under the rule. Matching
// is by whole path segments: services/api matches services/api/main.go but
// not services/api-gateway/main.go.
func (r Rule) Matches(p string) bool {
	in := r.Path == Wildcard || p == r.Path || strings.HasPrefix(p, r.Path+"/")
	if r.Kind == Exclude {
		return !in
	}
	return in
}

func (r Rule) String() string {
	if r.Kind == Exclude {
		return ":(exclude)" + r.Path
	}
	return r.Path
}

// Plan is an ordered list of rules whose diffs, concatenated in order, form
// one logical diff. Every changed path must match exactly one rule.
type Plan []Rule

// WholeRepository is the plan used when no component is requested.
func WholeRepository() Plan {
	return Plan{{Path: Wildcard, Kind: Include}}
}

func (p Plan) Paths() []string {
	paths := make([]string, len(p))
	for i, r := range p {
		paths[i] = r.String()
	}
	return paths
}

func (p Plan) String() string {
	return strings.Join(p.Paths(), " ")
}
