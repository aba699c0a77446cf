// Package archive keeps generated release diffs so the service can hand
// them out again. It is never consulted when computing a diff.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	apperrors "reldiff/internal/errors"
	"reldiff/internal/logging"
	"reldiff/internal/release"
	"reldiff/internal/storage"
	"reldiff/shared/types"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const prefix = "diff"

type (
	Summary = types.DiffSummary
	Report  = types.DiffReport
)

type record struct {
	Summary
	Compressed bool   `json:"compressed"`
	Body       []byte `json:"body"`
}

func (r *record) GetID() string { return r.ID }

type Options struct {
	CacheSize   int
	Compression CompressionOptions
}

type Archive struct {
	store  *storage.BadgerStore
	codec  *codec
	cache  *lru.Cache[string, *Report]
	logger *zap.Logger
	now    func() time.Time
}

func New(db *badger.DB, opts Options, logger *zap.Logger) (*Archive, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	cache, err := lru.New[string, *Report](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	c, err := newCodec(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Archive{
		store:  storage.NewBadgerStore(db, prefix),
		codec:  c,
		cache:  cache,
		logger: logging.OrNop(logger),
		now:    time.Now,
	}, nil
}

// Save stores res under a fresh ID.
func (a *Archive) Save(ctx context.Context, res *release.Result) (*Report, error) {
	if res == nil {
		return nil, apperrors.ValidationError("nothing to archive", nil)
	}

	report := &Report{
		DiffSummary: Summary{
			ID:          uuid.NewString(),
			CreatedAt:   a.now().UTC(),
			Title:       res.Title,
			Repository:  res.Repository,
			Component:   res.Component,
			Base:        res.Base,
			Head:        res.Head,
			BaseDerived: res.BaseDerived,
			Plan:        res.Plan.Paths(),
			Size:        len(res.Text),
		},
		Text: res.Text,
	}

	body, compressed, err := a.codec.compress([]byte(res.Text))
	if err != nil {
		return nil, fmt.Errorf("compressing diff: %w", err)
	}
	rec := &record{Summary: report.DiffSummary, Compressed: compressed, Body: body}
	if err := a.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("archiving diff: %w", err)
	}

	a.cache.Add(report.ID, report)
	a.logger.Debug("archived diff",
		zap.String("id", report.ID),
		zap.Int("size", report.Size),
		zap.Int("stored", len(body)),
	)
	return report, nil
}

func (a *Archive) Get(ctx context.Context, id string) (*Report, error) {
	if report, ok := a.cache.Get(id); ok {
		return report, nil
	}

	var rec record
	if err := a.store.Get(ctx, id, &rec); err != nil {
		if apperrors.Is(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("diff %s not found", id), nil)
		}
		return nil, fmt.Errorf("loading diff %s: %w", id, err)
	}

	body := rec.Body
	if rec.Compressed {
		var err error
		if body, err = a.codec.decompress(rec.Body); err != nil {
			return nil, fmt.Errorf("loading diff %s: %w", id, err)
		}
	}

	report := &Report{DiffSummary: rec.Summary, Text: string(body)}
	a.cache.Add(id, report)
	return report, nil
}

// List returns every archived diff, newest first.
func (a *Archive) List(ctx context.Context) ([]Summary, error) {
	var summaries []Summary
	err := a.store.Each(ctx, func(_ string, data []byte) error {
		var s Summary
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		summaries = append(summaries, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}
