package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/config"
	"github.com/sells-group/funding-cli/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "funding-cli",
	Short: "Funding call collection pipeline",
	Long:  "Extracts Horizon Europe topic identifiers, enriches them from the Search API, groups them by destination and splits the result per cluster.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return &pipeline.ConfigurationError{Msg: "load config: " + err.Error()}
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return &pipeline.ConfigurationError{Msg: "init logger: " + err.Error()}
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// Exit codes by error class.
const (
	exitOK            = 0
	exitInternal      = 1
	exitValidation    = 2
	exitConfiguration = 3
	exitConsistency   = 4
)

// exitCode maps a command error to the process exit status. Partial fetch
// failures are not errors at this level.
func exitCode(err error) int {
	var ve *pipeline.ValidationError
	var ce *pipeline.ConfigurationError
	var xe *pipeline.ConsistencyError
	var pf *pipeline.PartialFetchFailure
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ve):
		return exitValidation
	case errors.As(err, &ce):
		return exitConfiguration
	case errors.As(err, &xe):
		return exitConsistency
	case errors.As(err, &pf):
		return exitOK
	default:
		return exitInternal
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
