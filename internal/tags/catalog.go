// Package tags lists, orders and searches repository tags.
package tags

import (
	"context"
	"fmt"
	"slices"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"

	"go.uber.org/zap"
)

// Lister enumerates tag names.
type Lister interface {
	TagNames(ctx context.Context) ([]string, error)
}

type Catalog struct {
	lister Lister
	logger *zap.Logger
}

func NewCatalog(lister Lister, logger *zap.Logger) *Catalog {
	return &Catalog{
		lister: lister,
		logger: logging.OrNop(logger),
	}
}

// List returns the tags starting with prefix ordered by policy. An empty
// listing is not an error.
func (c *Catalog) List(ctx context.Context, prefix string, policy OrderPolicy) (*Listing, error) {
	names, err := c.lister.TagNames(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeListFailed) {
			return nil, err
		}
		return nil, apperrors.ListFailed("listing tags", err)
	}

	listing := Order(names, prefix, policy)
	for _, s := range listing.Skipped {
		c.logger.Warn("skipping tag that is not a semantic version",
			zap.String("tag", s.Tag),
			zap.String("reason", s.Reason),
		)
	}
	c.logger.Debug("listed tags",
		zap.String("prefix", prefix),
		zap.String("order", string(policy)),
		zap.Int("tags", len(listing.Tags)),
		zap.Int("skipped", len(listing.Skipped)),
	)

	return listing, nil
}

// FindPrevious returns the tag ordered right before target. A target that
// is not in the listing is taken to be a commit and gets the most recent
// tag instead.
func (c *Catalog) FindPrevious(ctx context.Context, target, prefix string, policy OrderPolicy) (string, error) {
	listing, err := c.List(ctx, prefix, policy)
	if err != nil {
		return "", err
	}

	prev, err := Previous(listing.Tags, target, prefix)
	if err != nil {
		return "", err
	}

	if !slices.Contains(listing.Tags, target) {
		c.logger.Debug("target is not a tag, using most recent tag",
			zap.String("target", target),
			zap.String("previous", prev),
		)
	}
	return prev, nil
}

// Previous applies the previous-tag rules to an ordered listing.
func Previous(ordered []string, target, prefix string) (string, error) {
	if len(ordered) == 0 {
		return "", apperrors.NoTags(fmt.Sprintf("no tags with prefix %q", prefix))
	}

	switch i := slices.Index(ordered, target); {
	case i > 0:
		return ordered[i-1], nil
	case i == 0:
		return "", apperrors.OnlyOneTag(fmt.Sprintf(
			"%s is the first tag with prefix %q, nothing to compare it to", target, prefix))
	default:
		return ordered[len(ordered)-1], nil
	}
}
