package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: extract,
// fetch, group, split, run, runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract":
		errs = append(errs, c.validateExtract()...)
	case "fetch":
		errs = append(errs, c.validateFetch()...)
	case "group":
		errs = append(errs, c.validateGroup()...)
	case "split":
		errs = append(errs, c.validateSplit()...)
	case "run":
		errs = append(errs, c.validateExtract()...)
		errs = append(errs, c.validateFetch()...)
		errs = append(errs, c.validateGroup()...)
		errs = append(errs, c.validateSplit()...)
		errs = append(errs, c.validateStore()...)
		if c.Run.WorkDir == "" {
			errs = append(errs, "run.work_dir is required")
		}
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateExtract() []string {
	var errs []string
	if len(c.Extract.Years) == 0 {
		errs = append(errs, "extract.years must not be empty")
	}
	if len(c.Extract.Clusters) == 0 {
		errs = append(errs, "extract.clusters must not be empty")
	}
	for _, cl := range c.Extract.Clusters {
		if cl < 1 || cl > 6 {
			errs = append(errs, fmt.Sprintf("extract.clusters: %d is not between 1 and 6", cl))
		}
	}
	return errs
}

func (c *Config) validateFetch() []string {
	var errs []string
	if c.Search.BaseURL == "" {
		errs = append(errs, "search.base_url is required")
	}
	if c.Search.APIKey == "" {
		errs = append(errs, "search.api_key is required")
	}
	if c.Fetch.Concurrency < 1 || c.Fetch.Concurrency > 64 {
		errs = append(errs, "fetch.concurrency must be between 1 and 64")
	}
	if c.Fetch.RateLimit < 0 {
		errs = append(errs, "fetch.rate_limit must be >= 0")
	}
	if c.Search.MaxRetries < 0 {
		errs = append(errs, "search.max_retries must be >= 0")
	}
	return errs
}

func (c *Config) validateGroup() []string {
	if strings.TrimSpace(c.Group.UnknownKey) == "" {
		return []string{"group.unknown_key must not be empty"}
	}
	return nil
}

func (c *Config) validateSplit() []string {
	var errs []string
	if !strings.Contains(c.Split.Template, "{cluster}") {
		errs = append(errs, "split.template must contain {cluster}")
	}
	if c.Split.WriteSummaries && !strings.Contains(c.Split.SummaryTemplate, "{cluster}") {
		errs = append(errs, "split.summary_template must contain {cluster}")
	}
	return errs
}
