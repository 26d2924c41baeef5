// Package report renders KPI documents, repository stats and label
// metadata for the command line.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/pkg/models"
)

// Format selects how a document is written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Write renders doc in the given format.
func Write(w io.Writer, doc kpi.Document, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatYAML:
		return writeYAML(w, doc)
	default:
		return WriteSummary(w, doc)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// WriteSummary prints the headline figure of every enabled KPI, a
// per-project table and any warnings.
func WriteSummary(w io.Writer, doc kpi.Document) error {
	p := &printer{w: w}

	p.printf("KPI SUMMARY\n")
	p.printf("Generated: %s (generation %d)\n", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"), doc.Generation)
	p.printf("Projects:  %s\n", joinOr(doc.Projects, "none"))
	period := "default"
	if doc.AnalysisPeriod.Custom {
		period = "custom"
	}
	p.printf("Period:    %d days (%s), %s to %s\n\n", doc.AnalysisPeriod.Days, period,
		doc.AnalysisPeriod.Start.Format("2006-01-02"), doc.AnalysisPeriod.End.Format("2006-01-02"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KPI\tVALUE\tDETAIL")
	for _, row := range headlines(doc.KPIs) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.name, row.value, row.detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(doc.KPIsByProject) > 0 {
		p.printf("\nBY PROJECT\n")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		header := []string{"PROJECT"}
		for _, row := range headlines(doc.KPIs) {
			header = append(header, strings.ToUpper(row.short))
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, project := range sortedKeys(doc.KPIsByProject) {
			cols := []string{project}
			for _, row := range headlines(doc.KPIsByProject[project]) {
				cols = append(cols, row.value)
			}
			fmt.Fprintln(tw, strings.Join(cols, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(doc.Warnings) > 0 {
		p.printf("\nWARNINGS\n")
		for _, name := range sortedKeys(doc.Warnings) {
			p.printf("  %s: %s\n", name, doc.Warnings[name])
		}
	}

	s := doc.DatabaseStats
	p.printf("\nRepository: %d issues, %d sprints, %d boards, %d projects\n",
		s.IssuesCount, s.SprintsCount, s.BoardsCount, s.ProjectsCount)
	return p.err
}

type headline struct {
	name   string
	short  string
	value  string
	detail string
}

// headlines lists the enabled KPIs of r in document order.
func headlines(r kpi.Records) []headline {
	var out []headline
	if v := r.SprintPredictability; v != nil {
		out = append(out, headline{"Sprint predictability", "predictability", pct(v.OverallAverage),
			fmt.Sprintf("%d sprints", len(v.Sprints))})
	}
	if v := r.StorySpillover; v != nil {
		out = append(out, headline{"Story spillover", "spillover", pct(v.SpilloverPercentage),
			fmt.Sprintf("%d of %d issues", v.SpilloverCount, v.TotalAnalyzed)})
	}
	if v := r.CycleTime; v != nil {
		out = append(out, headline{"Cycle time", "cycle time", fmt.Sprintf("%.1f days", v.AverageDays),
			fmt.Sprintf("median %.1f, min %.0f, max %.0f, %d issues", v.MedianDays, v.MinDays, v.MaxDays, v.IssuesAnalyzed)})
	}
	if v := r.WorkMix; v != nil {
		out = append(out, headline{"Work mix", "work mix", fmt.Sprintf("%d issues", v.TotalIssues), mixDetail(v)})
	}
	if v := r.UnplannedWork; v != nil {
		out = append(out, headline{"Unplanned work", "unplanned", pct(v.OverallAverage),
			fmt.Sprintf("%d sprints", len(v.Sprints))})
	}
	if v := r.ReopenedStories; v != nil {
		detail := fmt.Sprintf("%d of %d completed", v.ReopenedCount, v.TotalCompleted)
		if v.IssuesWithoutHistory > 0 {
			detail += fmt.Sprintf(", %d without history", v.IssuesWithoutHistory)
		}
		out = append(out, headline{"Reopened stories", "reopened", pct(v.ReopenedPercentage), detail})
	}
	return out
}

// mixDetail lists categories by descending share.
func mixDetail(m *kpi.WorkMix) string {
	keys := make([]string, 0, len(m.Distribution))
	for k := range m.Distribution {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := m.Distribution[keys[i]], m.Distribution[keys[j]]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return keys[i] < keys[j]
	})

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, pct(m.Distribution[k].Percentage)))
	}
	return joinOr(parts, "-")
}

// WriteStats prints repository counts and recent sync runs.
func WriteStats(w io.Writer, stats models.RepositoryStats, runs []models.SyncRun) error {
	p := &printer{w: w}
	p.printf("REPOSITORY\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Issues\t%d\n", stats.IssuesCount)
	fmt.Fprintf(tw, "Sprints\t%d\n", stats.SprintsCount)
	fmt.Fprintf(tw, "Boards\t%d\n", stats.BoardsCount)
	fmt.Fprintf(tw, "Projects\t%d\n", stats.ProjectsCount)
	if err := tw.Flush(); err != nil {
		return err
	}

	p.printf("\nRECENT SYNCS\n")
	if len(runs) == 0 {
		p.printf("  no sync has run yet\n")
		return p.err
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTARTED\tSTATUS\tISSUES\tSPRINTS\tPROJECTS\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Type, r.StartedAt.Format("2006-01-02 15:04"),
			r.Status, r.IssuesSynced, r.SprintsSynced, joinOr(r.Projects, "-"), r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return p.err
}

// WriteLabels prints the label metadata, grouped by space.
func WriteLabels(w io.Writer, metadata map[string]labels.Category) error {
	keys := sortedKeys(metadata)
	sort.SliceStable(keys, func(i, j int) bool {
		return metadata[keys[i]].Group < metadata[keys[j]].Group
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tLABEL\tNAME\tDESCRIPTION")
	for _, k := range keys {
		c := metadata[k]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Group, c.Label, c.Name, c.Description)
	}
	return tw.Flush()
}

// WriteValue renders any value as JSON or YAML.
func WriteValue(w io.Writer, v any, format Format) error {
	if format == FormatYAML {
		return writeYAML(w, v)
	}
	return writeJSON(w, v)
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func joinOr(values []string, empty string) string {
	if len(values) == 0 {
		return empty
	}
	return strings.Join(values, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
