// Package cmd provides the command-line interface for cadence.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/config"
	"github.com/danielolaszy/cadence/internal/jira"
	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence computes delivery KPIs from JIRA issues and sprints",
	Long: `Cadence is a CLI tool that collects JIRA issues, sprints and changelog
into PostgreSQL and computes team delivery KPIs from them: sprint
predictability, story spillover, cycle time, work mix, unplanned work
and reopened stories.

Configuration is read from cadence.yaml (or the file given with --config)
and from the environment. JIRA_URL, JIRA_USERNAME, JIRA_TOKEN and
DATABASE_URL are honoured as well as CADENCE_* overrides.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file (default: cadence.yaml)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(kpiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(labelsCmd)
}

// loadConfig reads the configuration named by the --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Debug("configuration loaded",
		"config", path,
		"jira_url", cfg.Jira.URL,
		"jira_token", logging.MaskSensitive(cfg.Jira.Token),
		"projects", cfg.Projects)
	return cfg, nil
}

// openStore connects to the database and brings the schema up to date.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if err := config.ValidateDatabaseConfig(cfg); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newEngine(cfg *config.Config, repo kpi.Repository) *kpi.Engine {
	return kpi.NewEngine(repo, cfg.EngineSettings(), kpi.WithLabels(cfg.LabelTable()))
}

func newJiraClient(cfg *config.Config) (*jira.Client, error) {
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, err
	}
	return jira.NewClient(jira.Options{
		URL:              cfg.Jira.URL,
		Username:         cfg.Jira.Username,
		Token:            cfg.Jira.Token,
		StoryPointsField: cfg.Jira.StoryPointsField,
		SprintField:      cfg.Jira.SprintField,
		PageSize:         cfg.Sync.PageSize,
	})
}

// projectsFlag returns the --projects values, falling back to defaults.
// Values may be comma separated or repeated.
func projectsFlag(cmd *cobra.Command, defaults []string) ([]string, error) {
	raw, err := cmd.Flags().GetStringSlice("projects")
	if err != nil {
		return nil, err
	}

	projects := kpi.ProjectKeys(raw)
	if len(projects) == 0 {
		return defaults, nil
	}
	return projects, nil
}

// output opens the --output file, or returns the command's stdout when the
// flag is empty. The returned close function is always safe to call.
func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
