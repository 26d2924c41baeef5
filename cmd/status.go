package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/report"
)

// statusCmd prints repository counts and recent sync runs.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository statistics and recent syncs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return err
		}
		runs, err := st.RecentSyncs(ctx, limit)
		if err != nil {
			return err
		}
		return report.WriteStats(cmd.OutOrStdout(), stats, runs)
	},
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 10, "number of recent syncs to show")
}
