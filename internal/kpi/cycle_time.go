package kpi

import (
	"context"
	"math"
	"time"
)

func (c *calculator) cycleTime(ctx context.Context) (*CycleTime, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := c.cutoff(c.windowDays())
	rec := EmptyCycleTime()
	var days []float64
	skipped := 0

	for _, issue := range issues {
		if !c.life.IsTerminal(issue.Status) || !isType(issue, "Story", "Task") {
			continue
		}
		if issue.Resolved == nil || issue.Resolved.Before(cutoff) {
			continue
		}

		tl, err := c.snap.timeline(ctx, issue.Key)
		if err != nil {
			return nil, err
		}
		start := issue.Created
		if tl.FirstInProgress != nil {
			start = *tl.FirstInProgress
		}

		d := wholeDays(issue.Resolved.Sub(start))
		if d < 0 {
			skipped++
			continue
		}

		days = append(days, float64(d))
		if len(rec.CycleTimes) < c.settings.CycleTime.ListLimit {
			rec.CycleTimes = append(rec.CycleTimes, CycleTimeEntry{IssueKey: issue.Key, CycleTimeDays: d})
		}
	}

	if skipped > 0 {
		c.log.Debug("cycle time skipped issues with negative duration", "skipped", skipped)
	}

	rec.IssuesAnalyzed = len(days)
	fillCycleStats(rec, days)
	return rec, nil
}

// wholeDays truncates a duration to whole days, rounding toward negative
// infinity so that any negative duration stays negative.
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func fillCycleStats(rec *CycleTime, days []float64) {
	if len(days) == 0 {
		rec.AverageDays, rec.MedianDays, rec.MinDays, rec.MaxDays = 0, 0, 0, 0
		return
	}
	lo, hi := days[0], days[0]
	for _, d := range days[1:] {
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}
	rec.AverageDays = round(mean(days), 1)
	rec.MedianDays = round(median(days), 1)
	rec.MinDays = round(lo, 1)
	rec.MaxDays = round(hi, 1)
}
