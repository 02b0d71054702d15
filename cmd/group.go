package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/pipeline"
)

var (
	groupInput      string
	groupOutput     string
	groupCL1Map     string
	groupCL2Map     string
	groupCL3Map     string
	groupUnknownKey string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group enriched records by destination",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if groupUnknownKey != "" {
			cfg.Group.UnknownKey = groupUnknownKey
		}
		if err := validateConfig("group", pipeline.StageGroup); err != nil {
			return err
		}
		ix, err := loadLookupIndex(map[int]string{1: groupCL1Map, 2: groupCL2Map, 3: groupCL3Map})
		if err != nil {
			return err
		}

		grouped, stats, err := pipeline.GroupFile(groupInput, groupOutput, pipeline.GroupOptions{
			Lookup:     ix,
			UnknownKey: cfg.Group.UnknownKey,
		})
		if err != nil {
			return err
		}
		zap.L().Info("group: complete",
			zap.String("output", groupOutput),
			zap.Int("records", stats.Records),
			zap.Int("destinations", grouped.Len()),
			zap.Int("from_lookup", stats.FromLookup),
			zap.Int("fallback", stats.Fallback),
		)
		return nil
	},
}

func init() {
	groupCmd.Flags().StringVar(&groupInput, "input", "", "enriched record list from fetch (required)")
	groupCmd.Flags().StringVar(&groupOutput, "output", "grouped.json", "grouped document to write")
	groupCmd.Flags().StringVar(&groupCL1Map, "cl1-map", "", "cluster 1 lookup map (overrides maps.cl1)")
	groupCmd.Flags().StringVar(&groupCL2Map, "cl2-map", "", "cluster 2 lookup map (overrides maps.cl2)")
	groupCmd.Flags().StringVar(&groupCL3Map, "cl3-map", "", "cluster 3 lookup map (overrides maps.cl3)")
	groupCmd.Flags().StringVar(&groupUnknownKey, "unknown-key", "", "group for unresolved records (default from group.unknown_key)")
	_ = groupCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(groupCmd)
}
