// Package annotation assembles the genomic context of a variant from external
// annotation providers.
//
// Providers are queried in parallel under one deadline. A provider that fails
// or times out only leaves its field missing; the aggregation fails with
// ErrNoData when no provider returns anything. Successful bundles are cached in
// the tiered cache, and concurrent requests for the same variant share a fetch.
package annotation

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

const (
	// DefaultTimeout bounds a whole aggregation.
	DefaultTimeout = 15 * time.Second
	// DefaultCompareParallelism bounds concurrent aggregations in Compare.
	DefaultCompareParallelism = 4
)

var (
	// ErrNoData is returned when no provider produced data for a variant.
	ErrNoData = errors.New("no annotation data available")
	// ErrInvalidQuery is returned when gene or variant is missing.
	ErrInvalidQuery = errors.New("invalid annotation query")
)

// Config configures an Aggregator.
type Config struct {
	Timeout            time.Duration
	CompareParallelism int64
	Metrics            *Metrics
}

// Aggregator merges provider results into cached bundles.
type Aggregator struct {
	cache     *cache.TieredCache
	providers []Provider
	config    Config
	group     singleflight.Group
}

// NewAggregator creates an aggregator over providers.
func NewAggregator(tc *cache.TieredCache, providers []Provider, config Config) *Aggregator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.CompareParallelism <= 0 {
		config.CompareParallelism = DefaultCompareParallelism
	}
	return &Aggregator{
		cache:     tc,
		providers: providers,
		config:    config,
	}
}

// Providers returns the configured provider sources.
func (a *Aggregator) Providers() []string {
	sources := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		sources = append(sources, p.Source())
	}
	return sources
}

// Aggregate returns the bundle for q, from cache when possible.
func (a *Aggregator) Aggregate(ctx context.Context, q *Query) (*Bundle, error) {
	if q == nil || strings.TrimSpace(q.Gene) == "" || strings.TrimSpace(q.Variant) == "" {
		return nil, errors.Wrap(ErrInvalidQuery, "gene and variant are required")
	}
	key := q.CacheKey()

	var cached Bundle
	if a.cache.GetInto(ctx, key, &cached) {
		a.config.Metrics.recordCacheHit()
		return &cached, nil
	}

	// The shared fetch must outlive a single caller leaving early.
	v, err, _ := a.group.Do(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Timeout)
		defer cancel()
		bundle, err := a.fetch(fetchCtx, q)
		if err != nil {
			return nil, err
		}
		a.cache.Set(fetchCtx, key, bundle)
		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	bundle := *v.(*Bundle)
	return &bundle, nil
}

func (a *Aggregator) fetch(ctx context.Context, q *Query) (*Bundle, error) {
	var (
		mu       sync.Mutex
		results  = map[string]json.RawMessage{}
		failures = map[string]error{}
	)

	var g errgroup.Group
	for _, p := range a.providers {
		p := p
		g.Go(func() error {
			start := time.Now()
			data, err := p.Fetch(ctx, q)
			outcome := "ok"
			switch {
			case errors.Is(err, ErrNotFound):
				outcome = "missing"
			case err != nil:
				outcome = "error"
			case len(data) == 0:
				outcome = "missing"
				err = ErrNotFound
			}
			a.config.Metrics.recordFetch(p.Source(), outcome, time.Since(start))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[p.Source()] = err
				return nil
			}
			results[p.Source()] = data
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 0 {
		reasons := make([]string, 0, len(failures))
		for source, err := range failures {
			reasons = append(reasons, source+": "+err.Error())
		}
		sort.Strings(reasons)
		return nil, errors.Wrapf(ErrNoData, "%s %s [%s]", q.Gene, q.Variant, strings.Join(reasons, "; "))
	}
	for source, err := range failures {
		slog.Warn("annotation provider failed",
			slog.String("source", source),
			slog.String("gene", q.Gene),
			slog.String("variant", q.Variant),
			slog.String("error", err.Error()))
	}

	bundle := &Bundle{
		Gene:        q.Gene,
		Variant:     q.Variant,
		Identifiers: q.Identifiers,
		Metadata:    manifest(),
		FetchedAt:   a.cache.Now().UnixMilli(),
	}
	for _, source := range Sources {
		if data, ok := results[source]; ok {
			bundle.set(source, data)
		} else {
			bundle.Missing = append(bundle.Missing, source)
		}
	}
	return bundle, nil
}

// CompareResult is the outcome of one variant in a comparison.
type CompareResult struct {
	Query  *Query  `json:"query"`
	Bundle *Bundle `json:"bundle,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Compare aggregates every query independently, with bounded parallelism.
// Results are in query order; a failed variant carries its error message.
func (a *Aggregator) Compare(ctx context.Context, queries []*Query) ([]*CompareResult, error) {
	results := make([]*CompareResult, len(queries))
	sem := semaphore.NewWeighted(a.config.CompareParallelism)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			result := &CompareResult{Query: q}
			bundle, err := a.Aggregate(gctx, q)
			if err != nil {
				result.Error = err.Error()
			} else {
				result.Bundle = bundle
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "comparison abandoned")
	}
	return results, nil
}
