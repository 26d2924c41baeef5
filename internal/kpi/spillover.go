package kpi

import (
	"context"
	"time"

	"github.com/danielolaszy/cadence/pkg/models"
)

func (c *calculator) storySpillover(ctx context.Context) (*StorySpillover, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}

	cfg := c.settings.StorySpillover
	cutoff := c.cutoff(c.windowDays())
	rec := EmptyStorySpillover()

	for _, issue := range issues {
		if !isType(issue, "Story", "Task") {
			continue
		}
		if c.days > 0 && !touchedSince(issue, cutoff) {
			continue
		}

		m, err := c.snap.membership(ctx, issue)
		if err != nil {
			return nil, err
		}

		rec.TotalAnalyzed++
		if m.Distinct() <= cfg.MaxSprints {
			continue
		}
		rec.SpilloverCount++
		if len(rec.SpilloverIssues) < cfg.ListLimit {
			rec.SpilloverIssues = append(rec.SpilloverIssues, SpilloverIssue{
				Key:         issue.Key,
				Summary:     issue.Summary,
				Project:     issue.Project,
				SprintCount: m.Distinct(),
				Status:      issue.Status,
			})
		}
	}

	rec.SpilloverPercentage = percentage(rec.SpilloverCount, rec.TotalAnalyzed)
	return rec, nil
}

// touchedSince reports whether the issue was updated or resolved at or after t.
func touchedSince(issue models.Issue, t time.Time) bool {
	if !issue.Updated.Before(t) {
		return true
	}
	return issue.Resolved != nil && !issue.Resolved.Before(t)
}
