package kpi

import (
	"fmt"
)

type aggregation string

const (
	aggregateDirect  aggregation = "direct"
	aggregateCombine aggregation = "combine"
)

// selectAggregation decides how the overall record of one KPI is produced:
// the direct recompute when it succeeded, otherwise a combination of the
// per-project records.
func selectAggregation(directErr error) (aggregation, string) {
	if directErr == nil {
		return aggregateDirect, "direct recompute succeeded"
	}
	return aggregateCombine, fmt.Sprintf("direct recompute failed: %v", directErr)
}

// Combine merges per-project records of the given projects into overall
// records. Counts are summed and percentages recomputed from the sums;
// sprint averages are the unweighted mean over projects that had sprints;
// the cycle time average is weighted by issues analyzed. baseline supplies
// cycle time bounds when no project has individual cycle times.
func Combine(perProject map[string]Records, projects []string, baseline *CycleTime, s Settings) Records {
	var parts []Records
	for _, p := range projects {
		if r, ok := perProject[p]; ok {
			parts = append(parts, r)
		}
	}

	var out Records
	if s.SprintPredictability.Enabled {
		out.SprintPredictability = combinePredictability(parts)
	}
	if s.StorySpillover.Enabled {
		out.StorySpillover = combineSpillover(parts, s.StorySpillover.ListLimit)
	}
	if s.CycleTime.Enabled {
		out.CycleTime = combineCycleTime(parts, baseline, s.CycleTime.ListLimit)
	}
	if s.WorkMix.Enabled {
		out.WorkMix = combineWorkMix(parts)
	}
	if s.UnplannedWork.Enabled {
		out.UnplannedWork = combineUnplanned(parts)
	}
	if s.ReopenedStories.Enabled {
		out.ReopenedStories = combineReopened(parts, s.ReopenedStories.ListLimit)
	}
	return out
}

func combinePredictability(parts []Records) *SprintPredictability {
	out := EmptySprintPredictability()
	var averages []float64
	for _, r := range parts {
		sp := r.SprintPredictability
		if sp == nil || len(sp.Sprints) == 0 {
			continue
		}
		averages = append(averages, sp.OverallAverage)
		out.Sprints = append(out.Sprints, sp.Sprints...)
	}
	out.OverallAverage = round(mean(averages), 1)
	return out
}

func combineUnplanned(parts []Records) *UnplannedWork {
	out := EmptyUnplannedWork()
	var averages []float64
	for _, r := range parts {
		uw := r.UnplannedWork
		if uw == nil || len(uw.Sprints) == 0 {
			continue
		}
		averages = append(averages, uw.OverallAverage)
		out.Sprints = append(out.Sprints, uw.Sprints...)
	}
	out.OverallAverage = round(mean(averages), 1)
	return out
}

func combineSpillover(parts []Records, limit int) *StorySpillover {
	out := EmptyStorySpillover()
	for _, r := range parts {
		ss := r.StorySpillover
		if ss == nil {
			continue
		}
		out.SpilloverCount += ss.SpilloverCount
		out.TotalAnalyzed += ss.TotalAnalyzed
		for _, issue := range ss.SpilloverIssues {
			if len(out.SpilloverIssues) < limit {
				out.SpilloverIssues = append(out.SpilloverIssues, issue)
			}
		}
	}
	out.SpilloverPercentage = percentage(out.SpilloverCount, out.TotalAnalyzed)
	return out
}

func combineCycleTime(parts []Records, baseline *CycleTime, limit int) *CycleTime {
	out := EmptyCycleTime()
	var weighted float64
	var days []float64
	for _, r := range parts {
		ct := r.CycleTime
		if ct == nil || ct.IssuesAnalyzed == 0 {
			continue
		}
		out.IssuesAnalyzed += ct.IssuesAnalyzed
		weighted += ct.AverageDays * float64(ct.IssuesAnalyzed)
		for _, e := range ct.CycleTimes {
			days = append(days, float64(e.CycleTimeDays))
			if len(out.CycleTimes) < limit {
				out.CycleTimes = append(out.CycleTimes, e)
			}
		}
	}

	if out.IssuesAnalyzed > 0 {
		out.AverageDays = round(weighted/float64(out.IssuesAnalyzed), 1)
	}

	if len(days) > 0 {
		withBounds := &CycleTime{}
		fillCycleStats(withBounds, days)
		out.MedianDays = withBounds.MedianDays
		out.MinDays = withBounds.MinDays
		out.MaxDays = withBounds.MaxDays
	} else if baseline != nil {
		out.MinDays = baseline.MinDays
		out.MaxDays = baseline.MaxDays
	}
	return out
}

func combineWorkMix(parts []Records) *WorkMix {
	out := EmptyWorkMix()
	for _, r := range parts {
		wm := r.WorkMix
		if wm == nil {
			continue
		}
		out.TotalIssues += wm.TotalIssues
		for category, e := range wm.Distribution {
			merged := out.Distribution[category]
			merged.Count += e.Count
			if merged.Name == "" {
				merged.Name = e.Name
				merged.Group = e.Group
			}
			out.Distribution[category] = merged
		}
	}
	for category, e := range out.Distribution {
		e.Percentage = percentage(e.Count, out.TotalIssues)
		out.Distribution[category] = e
	}
	return out
}

func combineReopened(parts []Records, limit int) *ReopenedStories {
	out := EmptyReopenedStories()
	for _, r := range parts {
		rs := r.ReopenedStories
		if rs == nil {
			continue
		}
		out.ReopenedCount += rs.ReopenedCount
		out.TotalCompleted += rs.TotalCompleted
		out.IssuesWithoutHistory += rs.IssuesWithoutHistory
		for _, issue := range rs.ReopenedIssues {
			if len(out.ReopenedIssues) < limit {
				out.ReopenedIssues = append(out.ReopenedIssues, issue)
			}
		}
	}
	out.ReopenedPercentage = percentage(out.ReopenedCount, out.TotalCompleted)
	return out
}

// take copies the record of the named KPI from src.
func (r *Records) take(name string, src Records) {
	switch name {
	case NameSprintPredictability:
		r.SprintPredictability = src.SprintPredictability
	case NameStorySpillover:
		r.StorySpillover = src.StorySpillover
	case NameCycleTime:
		r.CycleTime = src.CycleTime
	case NameWorkMix:
		r.WorkMix = src.WorkMix
	case NameUnplannedWork:
		r.UnplannedWork = src.UnplannedWork
	case NameReopenedStories:
		r.ReopenedStories = src.ReopenedStories
	}
}
