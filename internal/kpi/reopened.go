package kpi

import (
	"context"

	"github.com/danielolaszy/cadence/internal/lifecycle"
)

// reopenedWindow is the requested window, or the configured reopen window
// when none was requested.
func reopenedWindow(cfg ReopenedSettings, days int) int {
	if days > 0 {
		return days
	}
	return cfg.WindowDays
}

func (c *calculator) reopenedStories(ctx context.Context) (*ReopenedStories, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}

	cfg := c.settings.ReopenedStories
	cutoff := c.cutoff(reopenedWindow(cfg, c.days))
	rec := EmptyReopenedStories()

	for _, issue := range issues {
		if !isType(issue, "Story", "Task", "Bug") || issue.Updated.Before(cutoff) {
			continue
		}

		tl, err := c.snap.timeline(ctx, issue.Key)
		if err != nil {
			return nil, err
		}
		if !tl.HasHistory() {
			rec.IssuesWithoutHistory++
			continue
		}

		rec.TotalCompleted += tl.Completions
		if tl.Reopened() != lifecycle.Yes {
			continue
		}
		rec.ReopenedCount++
		if len(rec.ReopenedIssues) < cfg.ListLimit {
			rec.ReopenedIssues = append(rec.ReopenedIssues, ReopenedIssue{
				Key:           issue.Key,
				Summary:       issue.Summary,
				Project:       issue.Project,
				CurrentStatus: issue.Status,
				Updated:       issue.Updated,
			})
		}
	}

	if rec.IssuesWithoutHistory > 0 {
		c.log.Debug("reopened stories skipped issues without status history", "skipped", rec.IssuesWithoutHistory)
	}

	rec.ReopenedPercentage = percentage(rec.ReopenedCount, rec.TotalCompleted)
	return rec, nil
}
