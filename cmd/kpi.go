package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/internal/report"
)

// kpiCmd computes the KPI document from the database.
var kpiCmd = &cobra.Command{
	Use:   "kpi",
	Short: "Calculate KPIs from the synced data",
	Long: `Calculate every enabled KPI over a rolling window and print a summary,
or the full document as JSON or YAML.

When no projects are given the document covers every project in the
database. Each project is also calculated on its own and reported under
kpis_by_project.

Examples:
  cadence kpi
  cadence kpi --days 30 --projects ABC,WEB
  cadence kpi --format json --output kpis.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		q, format, err := kpiQuery(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer st.Close()

		logging.Info("calculating KPIs", "days", q.Days, "projects", q.Projects)
		doc := newEngine(cfg, st).CalculateAllKPIs(ctx, q)
		for name, warning := range doc.Warnings {
			logging.Warn("KPI calculated with warning", "kpi", name, "warning", warning)
		}

		w, closeOutput, err := output(cmd)
		if err != nil {
			return err
		}
		if err := report.Write(w, doc, format); err != nil {
			_ = closeOutput()
			return err
		}
		return closeOutput()
	},
}

func init() {
	addKPIFlags(kpiCmd)
}

func addKPIFlags(c *cobra.Command) {
	c.Flags().IntP("days", "d", 0, "rolling window in days (default: kpis.analysis_periods.default_days)")
	c.Flags().StringSliceP("projects", "p", nil, "restrict the document to these JIRA project keys")
	c.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
	c.Flags().StringP("output", "o", "", "write the document to this file instead of stdout")
}

// kpiQuery reads the query and format flags of the kpi command.
func kpiQuery(cmd *cobra.Command) (kpi.Query, report.Format, error) {
	days, err := cmd.Flags().GetInt("days")
	if err != nil {
		return kpi.Query{}, "", err
	}
	if days < 0 {
		return kpi.Query{}, "", fmt.Errorf("days must not be negative, got %d", days)
	}

	projects, err := projectsFlag(cmd, nil)
	if err != nil {
		return kpi.Query{}, "", err
	}

	raw, err := cmd.Flags().GetString("format")
	if err != nil {
		return kpi.Query{}, "", err
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		return kpi.Query{}, "", err
	}

	return kpi.Query{Days: days, Projects: projects}, format, nil
}
