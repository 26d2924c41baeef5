package kpi

import (
	"context"
	"fmt"

	"github.com/danielolaszy/cadence/pkg/models"
)

// selectSprintSource decides where a sprint's commitment comes from. Stored
// sprint reports win; issue membership is the fallback.
func selectSprintSource(reportsSupported bool, reports []models.SprintReport) (source, reason string) {
	switch {
	case len(reports) > 0:
		return SourceSprintReport, fmt.Sprintf("sprint report stored for %d project(s)", len(reports))
	case !reportsSupported:
		return SourceIssueMembership, "repository does not store sprint reports"
	default:
		return SourceIssueMembership, "no sprint report stored for sprint"
	}
}

func (c *calculator) sprintPredictability(ctx context.Context) (*SprintPredictability, error) {
	sprints, err := c.recentSprints(ctx)
	if err != nil {
		return nil, err
	}

	rec := EmptySprintPredictability()
	rates := make([]float64, 0, len(sprints))
	for _, sprint := range sprints {
		row, err := c.predictabilityFor(ctx, sprint)
		if err != nil {
			return nil, err
		}
		rec.Sprints = append(rec.Sprints, row)
		rates = append(rates, row.CompletionRate)
	}
	rec.OverallAverage = round(mean(rates), 1)

	return rec, nil
}

func (c *calculator) predictabilityFor(ctx context.Context, sprint models.Sprint) (PredictabilitySprint, error) {
	var reports []models.SprintReport
	for _, p := range c.reportProjects() {
		r, found, err := c.snap.sprintReport(ctx, sprint.ID, p)
		if err != nil {
			return PredictabilitySprint{}, err
		}
		if found {
			reports = append(reports, r)
		}
	}

	source, reason := selectSprintSource(c.snap.supportsReports(), reports)
	c.log.Debug("predictability source selected",
		"sprint_id", sprint.ID, "source", source, "reason", reason)

	var committed, completed int
	var projects []string
	switch source {
	case SourceSprintReport:
		for _, r := range reports {
			committed += r.Committed()
			completed += r.Completed
			projects = append(projects, r.Project)
		}
	default:
		issues, err := c.sprintIssues(ctx, sprint.ID)
		if err != nil {
			return PredictabilitySprint{}, err
		}
		committed = len(issues)
		for _, issue := range issues {
			if c.life.IsTerminal(issue.Status) {
				completed++
			}
			projects = append(projects, issue.Project)
		}
	}

	if len(c.projects) == 1 {
		projects = c.projects
	}

	return PredictabilitySprint{
		SprintRow:      sprintRow(sprint, source, projects),
		Committed:      committed,
		Completed:      completed,
		CompletionRate: completionRate(completed, committed),
	}, nil
}

// completionRate is completed/committed*100 rounded to two decimals, or 0
// when nothing was committed. completed may exceed committed.
func completionRate(completed, committed int) float64 {
	if committed == 0 {
		return 0
	}
	return round(float64(completed)/float64(committed)*100, 2)
}
