package kpi

import (
	"context"
	"strings"

	"github.com/danielolaszy/cadence/pkg/models"
)

func (c *calculator) unplannedWork(ctx context.Context) (*UnplannedWork, error) {
	sprints, err := c.recentSprints(ctx)
	if err != nil {
		return nil, err
	}

	cfg := c.settings.UnplannedWork
	markers := make(map[string]struct{}, len(cfg.Labels))
	for _, l := range cfg.Labels {
		markers[strings.ToLower(l)] = struct{}{}
	}

	rec := EmptyUnplannedWork()
	var pcts []float64
	for _, sprint := range sprints {
		issues, err := c.sprintIssues(ctx, sprint.ID)
		if err != nil {
			return nil, err
		}

		unplanned := 0
		projects := make([]string, 0, len(issues))
		for _, issue := range issues {
			if isUnplanned(issue, markers) {
				unplanned++
			}
			projects = append(projects, issue.Project)
		}
		if len(c.projects) == 1 {
			projects = c.projects
		}

		row := UnplannedSprint{
			SprintRow:           sprintRow(sprint, SourceIssueMembership, projects),
			TotalIssues:         len(issues),
			UnplannedIssues:     unplanned,
			UnplannedPercentage: percentage(unplanned, len(issues)),
		}
		rec.Sprints = append(rec.Sprints, row)

		if len(issues) == 0 && cfg.ExcludeEmptySprints {
			continue
		}
		pcts = append(pcts, row.UnplannedPercentage)
	}
	rec.OverallAverage = round(mean(pcts), 1)

	return rec, nil
}

func isUnplanned(issue models.Issue, markers map[string]struct{}) bool {
	for _, l := range issue.Labels {
		if _, ok := markers[strings.ToLower(l)]; ok {
			return true
		}
	}
	return false
}
