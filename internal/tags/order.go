package tags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// OrderPolicy selects how tags are compared.
type OrderPolicy string

const (
	OrderLexicographic OrderPolicy = "lexicographic"
	OrderSemver        OrderPolicy = "semver"
	OrderNone          OrderPolicy = "none"
)

// ParseOrderPolicy accepts the policy names case-insensitively, with
// "semantic-version" as an alias of semver. Empty means semver.
func ParseOrderPolicy(s string) (OrderPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "semver", "semantic-version":
		return OrderSemver, nil
	case "lexicographic":
		return OrderLexicographic, nil
	case "none":
		return OrderNone, nil
	default:
		return "", fmt.Errorf("unknown tag order %q (want semver, lexicographic or none)", s)
	}
}

// Warning returns the caveat callers should show for this policy.
func (p OrderPolicy) Warning() string {
	if p == OrderLexicographic {
		return "lexicographic tag order compares digit by digit: v1.10 sorts before v1.9"
	}
	return ""
}

// Skipped records a tag dropped because it is not a semantic version.
type Skipped struct {
	Tag    string `json:"tag"`
	Reason string `json:"reason"`
}

// Listing is an ordered tag subset.
type Listing struct {
	Tags    []string  `json:"tags"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

type candidate struct {
	name    string
	key     string // name without the prefix
	version *semver.Version
}

// Order keeps the names starting with prefix and orders them by policy. The
// prefix is ignored for comparison and kept in the result.
func Order(names []string, prefix string, policy OrderPolicy) *Listing {
	var candidates []candidate
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		candidates = append(candidates, candidate{
			name: name,
			key:  strings.TrimPrefix(name, prefix),
		})
	}

	listing := &Listing{}

	switch policy {
	case OrderLexicographic:
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].key < candidates[j].key
		})
	case OrderSemver:
		kept := candidates[:0]
		for _, c := range candidates {
			v, err := semver.NewVersion(c.key)
			if err != nil {
				listing.Skipped = append(listing.Skipped, Skipped{Tag: c.name, Reason: err.Error()})
				continue
			}
			c.version = v
			kept = append(kept, c)
		}
		candidates = kept
		sort.SliceStable(candidates, func(i, j int) bool {
			if cmp := candidates[i].version.Compare(candidates[j].version); cmp != 0 {
				return cmp < 0
			}
			return candidates[i].key < candidates[j].key
		})
	}

	listing.Tags = make([]string, 0, len(candidates))
	for _, c := range candidates {
		listing.Tags = append(listing.Tags, c.name)
	}
	return listing
}
