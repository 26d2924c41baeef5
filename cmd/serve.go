package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/collector"
	"github.com/danielolaszy/cadence/internal/jobs"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/internal/server"
)

// syncTimeout bounds one scheduled sync.
const syncTimeout = time.Hour

// serveCmd runs the HTTP API and the scheduled sync.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve KPIs over HTTP and sync on a schedule",
	Long: `Serve the KPI document over HTTP:

  GET /healthz
  GET /api/kpis?days=N&projects=A,B
  GET /api/kpis/{name}?days=N&projects=A,B
  GET /api/stats
  GET /api/labels

Unless --no-sync is given, an incremental sync of the configured projects
runs on sync.schedule. Several instances may share one database; only one
of them syncs at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.Server.Addr
		}
		noSync, err := cmd.Flags().GetBool("no-sync")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		if !noSync && len(cfg.Projects) > 0 {
			jiraClient, err := newJiraClient(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize jira client: %w", err)
			}

			lookback, err := jobs.Lookback(cfg.Sync.Schedule, time.Now())
			if err != nil {
				return err
			}
			base := collector.Options{
				Projects:         cfg.Projects,
				IncludeChangelog: cfg.Sync.IncludeChangelog,
				SprintReports:    cfg.Sync.SprintReports,
				BatchSize:        cfg.Sync.PageSize,
			}
			cr, err := jobs.NewCron(cfg.Sync.Schedule, collector.New(jiraClient, st), st, base, lookback, syncTimeout)
			if err != nil {
				return err
			}
			cr.Start()
			defer cr.Stop()
			logging.Info("scheduled sync", "schedule", cfg.Sync.Schedule, "next", cr.Next(), "lookback", lookback)
		} else {
			logging.Info("scheduled sync disabled")
		}

		srv := server.New(newEngine(cfg, st), st, cfg.LabelTable())
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().Bool("no-sync", false, "do not run the scheduled sync")
}
