package cmd

import (
	"github.com/spf13/cobra"

	"github.com/danielolaszy/cadence/internal/report"
)

// labelsCmd prints the configured work categories. It needs neither JIRA
// nor the database.
var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the configured work-category labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		raw, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(raw)
		if err != nil {
			return err
		}

		metadata := cfg.LabelTable().Metadata()
		if format == report.FormatText {
			return report.WriteLabels(cmd.OutOrStdout(), metadata)
		}
		return report.WriteValue(cmd.OutOrStdout(), metadata, format)
	},
}

func init() {
	labelsCmd.Flags().StringP("format", "f", "text", "output format: text, json or yaml")
}
