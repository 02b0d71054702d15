// Package fetcher enriches topic identifiers with metadata from the Search API.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/internal/resilience"
	"github.com/sells-group/funding-cli/pkg/searchapi"
)

// Cache stores the chosen search result per identifier between runs.
type Cache interface {
	GetCachedResult(ctx context.Context, identifier string) ([]byte, bool, error)
	PutCachedResult(ctx context.Context, identifier string, data []byte, ttl time.Duration) error
}

// Options configures a Fetcher.
type Options struct {
	Concurrency int
	// RateLimit is the initial request rate per second across all workers.
	RateLimit  float64
	CacheTTL   time.Duration
	IncludeRaw bool
	// MaxAttempts is the Search client's retry budget, recorded on dead letters.
	MaxAttempts int
}

// DefaultConcurrency is the number of identifiers fetched in parallel.
const DefaultConcurrency = 6

// Fetcher looks up identifiers in parallel with a bounded worker pool.
type Fetcher struct {
	client  searchapi.Client
	cache   Cache
	opts    Options
	limiter *AdaptiveLimiter
	now     func() time.Time
}

// New creates a Fetcher. cache may be nil.
func New(client searchapi.Client, cache Cache, opts Options) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Fetcher{
		client:  client,
		cache:   cache,
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RateLimit), opts.Concurrency),
		now:     time.Now,
	}
}

// Report summarizes one fetch.
type Report struct {
	Requested int                     `json:"requested"`
	Fetched   int                     `json:"fetched"`
	CacheHits int                     `json:"cache_hits"`
	Failures  []resilience.DeadLetter `json:"failures,omitempty"`
}

// Fetch enriches refs. Records come back in the order of refs, whatever order
// the lookups finish in. Identifiers whose lookup fails are left out, listed
// in the report, and signalled with a *pipeline.PartialFetchFailure; callers
// may continue with the returned records. Context cancellation aborts the
// whole fetch.
func (f *Fetcher) Fetch(ctx context.Context, refs []model.TopicRef) ([]model.CallRecord, *Report, error) {
	report := &Report{Requested: len(refs)}
	if len(refs) == 0 {
		return nil, report, nil
	}

	zap.L().Info("fetch: starting",
		zap.Int("identifiers", len(refs)),
		zap.Int("concurrency", f.opts.Concurrency),
	)

	records := make([]*model.CallRecord, len(refs))
	failures := make([]error, len(refs))
	var fetched, hits, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			log := zap.L().With(zap.String("identifier", ref.ID))

			rec, cached, err := f.fetchOne(gctx, ref)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				failures[i] = err
				log.Warn("fetch: lookup failed", zap.Error(err))
				return nil
			}
			if cached {
				hits.Add(1)
			}
			records[i] = &rec
			if n := fetched.Add(1); n%25 == 0 {
				log.Info("fetch: progress", zap.Int64("fetched", n), zap.Int("total", len(refs)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, report, eris.Wrap(err, "fetch: aborted")
	}

	var out []model.CallRecord
	var partial pipeline.PartialFetchFailure
	partial.Requested = len(refs)
	for i, rec := range records {
		if rec != nil {
			out = append(out, *rec)
			continue
		}
		partial.Failures = append(partial.Failures, pipeline.FetchFailure{ID: refs[i].ID, Err: failures[i]})
		report.Failures = append(report.Failures, resilience.NewDeadLetter(refs[i].ID, failures[i], f.attempts(failures[i]), f.now()))
	}
	report.Fetched = int(fetched.Load())
	report.CacheHits = int(hits.Load())

	zap.L().Info("fetch: complete",
		zap.Int("fetched", report.Fetched),
		zap.Int("cache_hits", report.CacheHits),
		zap.Int64("failed", failed.Load()),
	)
	if len(partial.Failures) > 0 {
		return out, report, &partial
	}
	return out, report, nil
}

var errNoResults = errors.New("search returned no results")

func (f *Fetcher) fetchOne(ctx context.Context, ref model.TopicRef) (model.CallRecord, bool, error) {
	if f.cache != nil {
		data, ok, err := f.cache.GetCachedResult(ctx, ref.ID)
		if err != nil {
			zap.L().Warn("fetch: cache read failed", zap.String("identifier", ref.ID), zap.Error(err))
		} else if ok {
			var r searchapi.Result
			if err := json.Unmarshal(data, &r); err == nil {
				rec, err := Normalize(ref, r, f.opts.IncludeRaw)
				return rec, true, err
			}
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return model.CallRecord{}, false, eris.Wrap(err, "fetch: rate limiter wait")
	}
	resp, err := f.client.Search(ctx, ref.ID)
	if err != nil {
		var te *resilience.TransientError
		if errors.As(err, &te) && te.StatusCode == 429 {
			f.limiter.OnRateLimit()
		}
		return model.CallRecord{}, false, err
	}
	f.limiter.OnSuccess()

	best, ok := PickBest(resp.Results, ref.ID)
	if !ok {
		return model.CallRecord{}, false, eris.Wrapf(errNoResults, "fetch: %s", ref.ID)
	}

	if f.cache != nil && len(best.Raw) > 0 {
		if err := f.cache.PutCachedResult(ctx, ref.ID, best.Raw, f.opts.CacheTTL); err != nil {
			zap.L().Warn("fetch: cache write failed", zap.String("identifier", ref.ID), zap.Error(err))
		}
	}

	rec, err := Normalize(ref, best, f.opts.IncludeRaw)
	return rec, false, err
}

// attempts estimates how many requests an identifier used before failing.
func (f *Fetcher) attempts(err error) int {
	if resilience.IsTransient(err) && f.opts.MaxAttempts > 1 {
		return f.opts.MaxAttempts
	}
	return 1
}
