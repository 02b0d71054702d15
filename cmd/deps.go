package main

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/fetcher"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/internal/resilience"
	"github.com/sells-group/funding-cli/internal/store"
	"github.com/sells-group/funding-cli/pkg/searchapi"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "funding.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// retryConfig maps search.max_retries (retries after the first attempt) to
// an attempt budget.
func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.Search.MaxRetries+1, cfg.Search.InitialBackoffMs, cfg.Search.MaxBackoffMs)
}

func initSearchClient() searchapi.Client {
	return searchapi.NewClient(cfg.Search.APIKey,
		searchapi.WithBaseURL(cfg.Search.BaseURL),
		searchapi.WithTimeout(time.Duration(cfg.Search.TimeoutSecs)*time.Second),
		searchapi.WithRetry(retryConfig()),
	)
}

// initFetcher builds a Fetcher. cache may be nil to disable caching.
func initFetcher(cache fetcher.Cache, concurrency int) *fetcher.Fetcher {
	if concurrency <= 0 {
		concurrency = cfg.Fetch.Concurrency
	}
	return fetcher.New(initSearchClient(), cache, fetcher.Options{
		Concurrency: concurrency,
		RateLimit:   cfg.Fetch.RateLimit,
		CacheTTL:    time.Duration(cfg.Fetch.CacheTTLHours) * time.Hour,
		IncludeRaw:  cfg.Fetch.IncludeRaw,
		MaxAttempts: retryConfig().MaxAttempts,
	})
}

// loadLookupIndex loads the per-cluster lookup maps. Flag paths override
// configured ones cluster by cluster.
func loadLookupIndex(overrides map[int]string) (*pipeline.LookupIndex, error) {
	paths := cfg.Maps.ByCluster()
	for c, p := range overrides {
		if p != "" {
			paths[c] = p
		}
	}
	var maps []*pipeline.LookupMap
	for _, c := range []int{1, 2, 3} {
		p, ok := paths[c]
		if !ok {
			continue
		}
		m, err := pipeline.LoadLookupMap(p, c)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
	}
	ix, err := pipeline.NewLookupIndex(maps...)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("group: lookup maps loaded", zap.Int("maps", len(maps)), zap.Int("identifiers", ix.Size()))
	return ix, nil
}

// warnPartial logs a partial fetch failure and clears it; any other error is
// returned unchanged.
func warnPartial(err error) error {
	var pf *pipeline.PartialFetchFailure
	if errors.As(err, &pf) {
		zap.L().Warn("fetch: continuing with partial results",
			zap.Int("failed", len(pf.Failures)),
			zap.Int("requested", pf.Requested),
			zap.Strings("identifiers", pf.FailedIDs()),
		)
		return nil
	}
	return err
}

// validateConfig runs config validation for mode and reports failures as
// configuration errors so they map to the configuration exit code.
func validateConfig(mode string, stage pipeline.Stage) error {
	if err := cfg.Validate(mode); err != nil {
		return &pipeline.ConfigurationError{Stage: stage, Msg: err.Error()}
	}
	return nil
}
