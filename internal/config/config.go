package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Group   GroupConfig   `yaml:"group" mapstructure:"group"`
	Split   SplitConfig   `yaml:"split" mapstructure:"split"`
	Maps    MapsConfig    `yaml:"maps" mapstructure:"maps"`
	Run     RunConfig     `yaml:"run" mapstructure:"run"`
}

// StoreConfig configures the run ledger backend. For sqlite, DatabaseURL is
// the database file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SearchConfig holds Search API settings.
type SearchConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string `yaml:"api_key" mapstructure:"api_key"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int    `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMs int    `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int    `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// FetchConfig configures the metadata fetcher.
type FetchConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	IncludeRaw    bool    `yaml:"include_raw" mapstructure:"include_raw"`
}

// ExtractConfig selects which identifiers the extractor keeps.
type ExtractConfig struct {
	Years    []int `yaml:"years" mapstructure:"years"`
	Clusters []int `yaml:"clusters" mapstructure:"clusters"`
}

// GroupConfig configures the grouper.
type GroupConfig struct {
	UnknownKey string `yaml:"unknown_key" mapstructure:"unknown_key"`
}

// SplitConfig configures the cluster splitter.
type SplitConfig struct {
	Template        string `yaml:"template" mapstructure:"template"`
	SummaryTemplate string `yaml:"summary_template" mapstructure:"summary_template"`
	WriteSummaries  bool   `yaml:"write_summaries" mapstructure:"write_summaries"`
	Index           string `yaml:"index" mapstructure:"index"`
}

// MapsConfig holds per-cluster lookup map paths.
type MapsConfig struct {
	CL1 string `yaml:"cl1" mapstructure:"cl1"`
	CL2 string `yaml:"cl2" mapstructure:"cl2"`
	CL3 string `yaml:"cl3" mapstructure:"cl3"`
}

// ByCluster returns the configured map paths keyed by cluster.
func (m MapsConfig) ByCluster() map[int]string {
	out := make(map[int]string)
	for c, p := range map[int]string{1: m.CL1, 2: m.CL2, 3: m.CL3} {
		if p != "" {
			out[c] = p
		}
	}
	return out
}

// RunConfig configures the end-to-end run command.
type RunConfig struct {
	WorkDir   string `yaml:"work_dir" mapstructure:"work_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FUNDING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "funding.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("search.base_url", "https://api.tech.ec.europa.eu/search-api/prod/rest/search")
	v.SetDefault("search.api_key", "SEDIA")
	v.SetDefault("search.timeout_secs", 30)
	v.SetDefault("search.max_retries", 3)
	v.SetDefault("search.initial_backoff_ms", 500)
	v.SetDefault("search.max_backoff_ms", 30000)
	v.SetDefault("fetch.concurrency", 6)
	v.SetDefault("fetch.rate_limit", 5.0)
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("fetch.include_raw", false)
	v.SetDefault("group.unknown_key", "Unknown")
	v.SetDefault("split.template", "cluster_{cluster}.grouped.json")
	v.SetDefault("split.summary_template", "cluster_{cluster}.summary.json")
	v.SetDefault("split.write_summaries", true)
	v.SetDefault("run.work_dir", "work")
	v.SetDefault("run.output_dir", "out")

	// Extraction filters have no defaults; bind them so the environment
	// can still supply them.
	for _, key := range []string{"extract.years", "extract.clusters"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
