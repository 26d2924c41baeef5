package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/collector"
	"github.com/danielolaszy/cadence/internal/config"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// syncCmd collects JIRA data into the database.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Collect JIRA issues, sprints and changelog into the database",
	Long: `Collect boards, sprints, issues, changelog and sprint reports for every
configured project and store them in PostgreSQL.

A full sync fetches issues updated within the last --days days (0 fetches
everything). An incremental sync fetches issues updated within the last
--hours hours.

Examples:
  cadence sync
  cadence sync --days 180 --projects ABC,WEB
  cadence sync --hours 6`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		days, err := cmd.Flags().GetInt("days")
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("days") {
			days = cfg.Sync.DaysBack
		}
		hours, err := cmd.Flags().GetInt("hours")
		if err != nil {
			return err
		}
		projects, err := projectsFlag(cmd, cfg.Projects)
		if err != nil {
			return err
		}
		skipChangelog, err := cmd.Flags().GetBool("skip-changelog")
		if err != nil {
			return err
		}
		skipReports, err := cmd.Flags().GetBool("skip-reports")
		if err != nil {
			return err
		}

		opts, err := syncOptions(cfg, projects, days, hours, time.Now())
		if err != nil {
			return err
		}
		opts.IncludeChangelog = opts.IncludeChangelog && !skipChangelog
		opts.SprintReports = opts.SprintReports && !skipReports

		jiraClient, err := newJiraClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize jira client: %w", err)
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		logging.Info("starting synchronization",
			"type", opts.Type,
			"projects", opts.Projects,
			"since", opts.Since)

		res, err := collector.New(jiraClient, st).Run(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d boards, %d sprints, %d issues, %d changelog events, %d sprint reports\n",
			res.Boards, res.Sprints, res.Issues, res.Events, res.Reports)
		for _, f := range res.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", f)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("days", 90, "full sync: fetch issues updated within this many days, 0 for all (default: sync.days_back)")
	syncCmd.Flags().Int("hours", 0, "incremental sync: fetch issues updated within this many hours")
	syncCmd.Flags().StringSliceP("projects", "p", nil, "JIRA project keys to sync (default: configured projects)")
	syncCmd.Flags().Bool("skip-changelog", false, "do not fetch issue changelog")
	syncCmd.Flags().Bool("skip-reports", false, "do not fetch sprint reports")
	syncCmd.MarkFlagsMutuallyExclusive("days", "hours")
}

// syncOptions turns the window flags into collector options. A positive
// hours selects an incremental sync, otherwise days selects a full one.
func syncOptions(cfg *config.Config, projects []string, days, hours int, now time.Time) (collector.Options, error) {
	if len(projects) == 0 {
		return collector.Options{}, fmt.Errorf("no projects to sync: set projects in the configuration or pass --projects")
	}
	if days < 0 || hours < 0 {
		return collector.Options{}, fmt.Errorf("days and hours must not be negative")
	}

	opts := collector.Options{
		Projects:         projects,
		Type:             models.SyncTypeFull,
		IncludeChangelog: cfg.Sync.IncludeChangelog,
		SprintReports:    cfg.Sync.SprintReports,
		BatchSize:        cfg.Sync.PageSize,
	}

	switch {
	case hours > 0:
		opts.Type = models.SyncTypeIncremental
		opts.Since = now.Add(-time.Duration(hours) * time.Hour)
	case days > 0:
		opts.Since = now.AddDate(0, 0, -days)
	}
	return opts, nil
}
