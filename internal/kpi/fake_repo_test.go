package kpi

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/danielolaszy/cadence/internal/labels"
	"github.com/danielolaszy/cadence/pkg/models"
)

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}

func ptr[T any](v T) *T {
	return &v
}

// fakeRepo is an in-memory Repository with failure hooks.
type fakeRepo struct {
	issues    []models.Issue
	sprints   []models.Sprint
	changelog map[string][]models.ChangeEvent
	projects  []string
	stats     models.RepositoryStats

	listIssuesErr   error
	listSprintsErr  error
	listProjectsErr error
	statsErr        error
	changelogErr    map[string]error
}

func (f *fakeRepo) ListIssues(_ context.Context, filter IssueFilter) ([]models.Issue, error) {
	if f.listIssuesErr != nil {
		return nil, f.listIssuesErr
	}
	var out []models.Issue
	for _, i := range f.issues {
		if filter.Project != "" && i.Project != filter.Project {
			continue
		}
		if filter.Status != "" && i.Status != filter.Status {
			continue
		}
		if filter.Type != "" && i.Type != filter.Type {
			continue
		}
		out = append(out, i)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Created.After(out[b].Created) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeRepo) ListSprints(_ context.Context, filter SprintFilter) ([]models.Sprint, error) {
	if f.listSprintsErr != nil {
		return nil, f.listSprintsErr
	}
	var out []models.Sprint
	for _, s := range f.sprints {
		if filter.BoardID != 0 && s.BoardID != filter.BoardID {
			continue
		}
		if filter.State != "" && s.State != filter.State {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRepo) IssueChangelog(_ context.Context, key string) ([]models.ChangeEvent, error) {
	if err := f.changelogErr[key]; err != nil {
		return nil, err
	}
	return f.changelog[key], nil
}

func (f *fakeRepo) ListProjects(_ context.Context) ([]string, error) {
	if f.listProjectsErr != nil {
		return nil, f.listProjectsErr
	}
	if f.projects != nil {
		return f.projects, nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, i := range f.issues {
		if _, ok := seen[i.Project]; !ok {
			seen[i.Project] = struct{}{}
			out = append(out, i.Project)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeRepo) Stats(_ context.Context) (models.RepositoryStats, error) {
	if f.statsErr != nil {
		return models.RepositoryStats{}, f.statsErr
	}
	return f.stats, nil
}

// reportingRepo adds stored sprint reports to fakeRepo.
type reportingRepo struct {
	*fakeRepo
	reports map[reportKey]models.SprintReport
}

func (r *reportingRepo) SprintReport(_ context.Context, sprintID int64, project string) (models.SprintReport, bool, error) {
	rep, ok := r.reports[reportKey{sprintID: sprintID, project: project}]
	return rep, ok, nil
}

func issue(key, typ, status string, sprints ...int64) models.Issue {
	return models.Issue{
		Key:       key,
		Project:   strings.SplitN(key, "-", 2)[0],
		Summary:   "summary of " + key,
		Type:      typ,
		Status:    status,
		Created:   daysAgo(30),
		Updated:   daysAgo(1),
		SprintIDs: sprints,
	}
}

func closedSprint(id int64, name string, end *time.Time) models.Sprint {
	return models.Sprint{ID: id, Name: name, BoardID: 7, BoardName: "Team board", State: models.SprintStateClosed, End: end}
}

func statusEvent(key string, at time.Time, from, to string) models.ChangeEvent {
	return models.ChangeEvent{IssueKey: key, At: at, Field: "status", From: from, To: to}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(repo Repository, settings Settings, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(quietLogger()),
		WithLabels(labels.NewTable([]labels.Category{
			{Label: "feature_dev", Name: "Feature Development"},
			{Label: "tech_debt", Name: "Tech Debt"},
		}, nil)),
	}
	return NewEngine(repo, settings, append(base, opts...)...)
}
