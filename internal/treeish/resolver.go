package treeish

import (
	"context"
	"fmt"

	"reldiff/internal/logging"
	"reldiff/internal/repo"

	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the object store the resolver needs.
type Store interface {
	TagTree(ctx context.Context, name string) (*repo.Snapshot, error)
	ObjectTree(ctx context.Context, id plumbing.Hash) (*repo.Snapshot, error)
}

type Resolver struct {
	store  Store
	logger *zap.Logger
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logging.OrNop(logger),
	}
}

// Resolve classifies treeish and returns the tree it points to.
func (r *Resolver) Resolve(ctx context.Context, treeish string) (*repo.Snapshot, error) {
	id, err := Parse(treeish)
	if err != nil {
		return nil, err
	}
	return r.ResolveIdentifier(ctx, id)
}

func (r *Resolver) ResolveIdentifier(ctx context.Context, id Identifier) (*repo.Snapshot, error) {
	switch v := id.(type) {
	case ContentID:
		r.logger.Debug("resolving content id", zap.String("id", v.String()))
		return r.store.ObjectTree(ctx, v.Hash)
	case TagName:
		r.logger.Debug("resolving tag", zap.String("tag", v.Name))
		return r.store.TagTree(ctx, v.Name)
	default:
		return nil, fmt.Errorf("unknown identifier %T", id)
	}
}

// ResolveBoth resolves base and head independently and concurrently. Either
// failure fails the call.
func (r *Resolver) ResolveBoth(ctx context.Context, base, head string) (*repo.Snapshot, *repo.Snapshot, error) {
	var baseTree, headTree *repo.Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.Resolve(gctx, base)
		if err != nil {
			return fmt.Errorf("resolving base %s: %w", base, err)
		}
		baseTree = s
		return nil
	})
	g.Go(func() error {
		s, err := r.Resolve(gctx, head)
		if err != nil {
			return fmt.Errorf("resolving head %s: %w", head, err)
		}
		headTree = s
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return baseTree, headTree, nil
}
