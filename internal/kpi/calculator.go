package kpi

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/internal/lifecycle"
	"github.com/danielolaszy/cadence/pkg/models"
)

// calculator runs the KPI algorithms for one scope of one document.
type calculator struct {
	snap     *snapshot
	settings Settings
	labels   *labels.Table
	life     *lifecycle.Reconstructor
	log      *slog.Logger
	now      time.Time

	// days is the requested window; zero means none was requested.
	days int

	// projects restricts the issues considered; nil means every project.
	projects []string

	// known are all projects of the document, used to look up sprint
	// reports when projects is nil.
	known []string
}

// records runs every enabled calculator. A failing calculator yields its
// empty record and an entry in the returned error map.
func (c *calculator) records(ctx context.Context) (Records, map[string]error) {
	errs := make(map[string]error)
	s := c.settings

	return Records{
		SprintPredictability: run(errs, NameSprintPredictability, s.SprintPredictability.Enabled,
			func() (*SprintPredictability, error) { return c.sprintPredictability(ctx) }, EmptySprintPredictability),
		StorySpillover: run(errs, NameStorySpillover, s.StorySpillover.Enabled,
			func() (*StorySpillover, error) { return c.storySpillover(ctx) }, EmptyStorySpillover),
		CycleTime: run(errs, NameCycleTime, s.CycleTime.Enabled,
			func() (*CycleTime, error) { return c.cycleTime(ctx) }, EmptyCycleTime),
		WorkMix: run(errs, NameWorkMix, s.WorkMix.Enabled,
			func() (*WorkMix, error) { return c.workMix(ctx) }, EmptyWorkMix),
		UnplannedWork: run(errs, NameUnplannedWork, s.UnplannedWork.Enabled,
			func() (*UnplannedWork, error) { return c.unplannedWork(ctx) }, EmptyUnplannedWork),
		ReopenedStories: run(errs, NameReopenedStories, s.ReopenedStories.Enabled,
			func() (*ReopenedStories, error) { return c.reopenedStories(ctx) }, EmptyReopenedStories),
	}, errs
}

func run[T any](errs map[string]error, name string, enabled bool, calc func() (*T, error), empty func() *T) *T {
	if !enabled {
		return nil
	}
	rec, err := calc()
	if err != nil {
		errs[name] = err
		return empty()
	}
	return rec
}

// scopedIssues returns the issues of the calculator's projects, newest-created first.
func (c *calculator) scopedIssues(ctx context.Context) ([]models.Issue, error) {
	all, err := c.snap.allIssues(ctx)
	if err != nil {
		return nil, err
	}
	if c.projects == nil {
		return all, nil
	}

	want := make(map[string]struct{}, len(c.projects))
	for _, p := range c.projects {
		want[p] = struct{}{}
	}
	var out []models.Issue
	for _, issue := range all {
		if _, ok := want[issue.Project]; ok {
			out = append(out, issue)
		}
	}
	return out, nil
}

// reportProjects are the projects whose sprint reports apply to this scope.
func (c *calculator) reportProjects() []string {
	if c.projects != nil {
		return c.projects
	}
	return c.known
}

// windowDays is the requested window or the configured default.
func (c *calculator) windowDays() int {
	if c.days > 0 {
		return c.days
	}
	return c.settings.DefaultDays
}

func (c *calculator) cutoff(days int) time.Time {
	return c.now.AddDate(0, 0, -days)
}

// recentSprints returns the most recently ended closed sprints relevant to
// the scope, newest first. Sprints without an end date sort last and ties
// keep repository order.
func (c *calculator) recentSprints(ctx context.Context) ([]models.Sprint, error) {
	sprints, err := c.snap.closedSprints(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.Sprint, 0, len(sprints))
	if c.projects == nil {
		candidates = append(candidates, sprints...)
	} else {
		touched, err := c.touchedSprints(ctx)
		if err != nil {
			return nil, err
		}
		for _, sprint := range sprints {
			relevant := false
			if _, ok := touched[sprint.ID]; ok {
				relevant = true
			} else {
				for _, p := range c.projects {
					_, found, err := c.snap.sprintReport(ctx, sprint.ID, p)
					if err != nil {
						return nil, err
					}
					if found {
						relevant = true
						break
					}
				}
			}
			if relevant {
				candidates = append(candidates, sprint)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].End, candidates[j].End
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	if len(candidates) > c.settings.SprintLookback {
		candidates = candidates[:c.settings.SprintLookback]
	}
	return candidates, nil
}

// touchedSprints is the set of sprints any scoped issue was attached to.
func (c *calculator) touchedSprints(ctx context.Context) (map[int64]struct{}, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}
	touched := make(map[int64]struct{})
	for _, issue := range issues {
		m, err := c.snap.membership(ctx, issue)
		if err != nil {
			return nil, err
		}
		for id := range m.Counts {
			touched[id] = struct{}{}
		}
	}
	return touched, nil
}

// sprintIssues returns the scoped issues ever attached to the sprint.
func (c *calculator) sprintIssues(ctx context.Context, sprintID int64) ([]models.Issue, error) {
	issues, err := c.scopedIssues(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Issue
	for _, issue := range issues {
		m, err := c.snap.membership(ctx, issue)
		if err != nil {
			return nil, err
		}
		if m.Contains(sprintID) {
			out = append(out, issue)
		}
	}
	return out, nil
}

func sprintRow(sprint models.Sprint, source string, projects []string) SprintRow {
	return SprintRow{
		SprintID:   sprint.ID,
		SprintName: sprint.Name,
		BoardID:    sprint.BoardID,
		BoardName:  sprint.BoardName,
		Project:    joinProjects(projects),
		Source:     source,
	}
}

// joinProjects returns the distinct project keys in first-seen order.
func joinProjects(projects []string) string {
	seen := make(map[string]struct{}, len(projects))
	var out []string
	for _, p := range projects {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

func isType(issue models.Issue, types ...string) bool {
	for _, t := range types {
		if strings.EqualFold(issue.Type, t) {
			return true
		}
	}
	return false
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// percentage is part/total*100 rounded to one decimal, or 0 for an empty total.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(part)/float64(total)*100, 1)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
