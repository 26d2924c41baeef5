package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/cadence/pkg/models"
)

func twoProjectRepo() *fakeRepo {
	a1 := issue("A-1", "Story", "Done", 1)
	a1.Created = daysAgo(10)
	a1.Resolved = ptr(daysAgo(5))
	a1.Labels = []string{"feature_dev"}

	b1 := issue("B-1", "Story", "Done", 1, 2, 3)
	b1.Created = daysAgo(10)
	b1.Resolved = ptr(daysAgo(3))

	b2 := issue("B-2", "Task", "To Do")
	b2.Labels = []string{"tech_debt"}

	return &fakeRepo{
		issues:  []models.Issue{a1, b1, b2},
		sprints: []models.Sprint{closedSprint(1, "Sprint 1", ptr(daysAgo(4)))},
		stats:   models.RepositoryStats{IssuesCount: 3, SprintsCount: 1, BoardsCount: 1, ProjectsCount: 2},
	}
}

func TestCalculateAllKPIsDocument(t *testing.T) {
	doc := newTestEngine(twoProjectRepo(), DefaultSettings()).CalculateAllKPIs(context.Background(), Query{})

	assert.Equal(t, testNow, doc.GeneratedAt)
	assert.Equal(t, []string{"A", "B"}, doc.Projects)
	assert.Equal(t, 365, doc.AnalysisPeriod.Days)
	assert.False(t, doc.AnalysisPeriod.Custom)
	assert.Equal(t, 3, doc.AnalysisPeriod.SprintLookback)
	assert.True(t, doc.LabelsConfigured)
	assert.Equal(t, 3, doc.DatabaseStats.IssuesCount)
	assert.Nil(t, doc.Warnings)

	require.Contains(t, doc.KPIsByProject, "A")
	require.Contains(t, doc.KPIsByProject, "B")

	for _, recs := range []Records{doc.KPIs, doc.KPIsByProject["A"], doc.KPIsByProject["B"]} {
		assert.NotNil(t, recs.SprintPredictability)
		assert.NotNil(t, recs.StorySpillover)
		assert.NotNil(t, recs.CycleTime)
		assert.NotNil(t, recs.WorkMix)
		assert.NotNil(t, recs.UnplannedWork)
		assert.NotNil(t, recs.ReopenedStories)
	}

	assert.Equal(t, 2, doc.KPIs.CycleTime.IssuesAnalyzed)
	assert.Equal(t, 1, doc.KPIsByProject["B"].StorySpillover.SpilloverCount)
	assert.Equal(t, 3, doc.KPIs.WorkMix.TotalIssues)
}

func TestCalculateAllKPIsIdempotent(t *testing.T) {
	engine := newTestEngine(twoProjectRepo(), DefaultSettings())

	first := engine.CalculateAllKPIs(context.Background(), Query{Days: 90, Projects: []string{"A", "B"}})
	second := engine.CalculateAllKPIs(context.Background(), Query{Days: 90, Projects: []string{"A", "B"}})

	a, err := json.Marshal(first.KPIs)
	require.NoError(t, err)
	b, err := json.Marshal(second.KPIs)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	a, err = json.Marshal(first.KPIsByProject)
	require.NoError(t, err)
	b, err = json.Marshal(second.KPIsByProject)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	assert.Equal(t, first.Generation+1, second.Generation)
}

func TestCalculateAllKPIsProjectFilter(t *testing.T) {
	doc := newTestEngine(twoProjectRepo(), DefaultSettings()).
		CalculateAllKPIs(context.Background(), Query{Projects: []string{"B", "UNKNOWN"}})

	assert.Equal(t, []string{"B"}, doc.Projects)
	assert.NotContains(t, doc.KPIsByProject, "A")
	assert.Equal(t, 2, doc.KPIs.WorkMix.TotalIssues)
	assert.Equal(t, 1, doc.KPIs.CycleTime.IssuesAnalyzed)
	assert.Equal(t, "B", doc.KPIs.SprintPredictability.Sprints[0].Project)
}

func TestCalculateAllKPIsCustomWindow(t *testing.T) {
	doc := newTestEngine(twoProjectRepo(), DefaultSettings()).CalculateAllKPIs(context.Background(), Query{Days: 4})

	assert.True(t, doc.AnalysisPeriod.Custom)
	assert.Equal(t, 4, doc.AnalysisPeriod.Days)
	assert.Equal(t, daysAgo(4), doc.AnalysisPeriod.Start)
	assert.Equal(t, 1, doc.KPIs.CycleTime.IssuesAnalyzed, "only B-1 was resolved within four days")
}

func TestAnalysisPeriodReportsReopenedWindow(t *testing.T) {
	engine := newTestEngine(twoProjectRepo(), DefaultSettings())

	doc := engine.CalculateAllKPIs(context.Background(), Query{Days: 30})
	assert.Equal(t, 30, doc.AnalysisPeriod.ReopenedWindowDays)

	doc = engine.CalculateAllKPIs(context.Background(), Query{})
	assert.Equal(t, DefaultSettings().ReopenedStories.WindowDays, doc.AnalysisPeriod.ReopenedWindowDays)
}

func TestCalculateAllKPIsNoRepository(t *testing.T) {
	doc := newTestEngine(nil, DefaultSettings()).CalculateAllKPIs(context.Background(), Query{})

	assert.Equal(t, EmptySprintPredictability(), doc.KPIs.SprintPredictability)
	assert.Equal(t, EmptyWorkMix(), doc.KPIs.WorkMix)
	assert.Len(t, doc.Warnings, len(Names))
	assert.Equal(t, ErrNoRepository.Error(), doc.Warnings[NameCycleTime])
	assert.Empty(t, doc.Projects)
}

func TestCalculateAllKPIsDisabledKPI(t *testing.T) {
	settings := DefaultSettings()
	settings.ReopenedStories.Enabled = false

	doc := newTestEngine(twoProjectRepo(), settings).CalculateAllKPIs(context.Background(), Query{})

	assert.Nil(t, doc.KPIs.ReopenedStories)
	assert.Nil(t, doc.KPIsByProject["A"].ReopenedStories)
	assert.NotNil(t, doc.KPIs.CycleTime)

	out, err := json.Marshal(doc.KPIs)
	require.NoError(t, err)
	assert.NotContains(t, string(out), NameReopenedStories)
}

func TestCalculatorFailureIsIsolated(t *testing.T) {
	repo := twoProjectRepo()
	repo.listSprintsErr = errors.New("connection reset")

	doc := newTestEngine(repo, DefaultSettings()).CalculateAllKPIs(context.Background(), Query{})

	assert.Equal(t, EmptySprintPredictability(), doc.KPIs.SprintPredictability)
	assert.Equal(t, EmptyUnplannedWork(), doc.KPIs.UnplannedWork)
	assert.Contains(t, doc.Warnings[NameSprintPredictability], "connection reset")
	assert.Contains(t, doc.Warnings["A/"+NameUnplannedWork], "connection reset")

	assert.NotContains(t, doc.Warnings, NameCycleTime)
	assert.Equal(t, 2, doc.KPIs.CycleTime.IssuesAnalyzed)
	assert.Equal(t, 3, doc.KPIs.WorkMix.TotalIssues)
}

func TestAggregationFallsBackToPerProjectRecords(t *testing.T) {
	repo := twoProjectRepo()
	repo.changelogErr = map[string]error{"B-1": errors.New("changelog table missing")}

	doc := newTestEngine(repo, DefaultSettings()).CalculateAllKPIs(context.Background(), Query{})

	assert.Contains(t, doc.Warnings["B/"+NameCycleTime], "changelog table missing")
	assert.Contains(t, doc.Warnings[NameCycleTime], "combined from per-project records")

	ct := doc.KPIs.CycleTime
	assert.Equal(t, 1, ct.IssuesAnalyzed, "only project A could be computed")
	assert.Equal(t, 5.0, ct.AverageDays)
	assert.Equal(t, doc.KPIsByProject["A"].CycleTime.AverageDays, ct.AverageDays)

	assert.NotContains(t, doc.Warnings, NameWorkMix)
	assert.Equal(t, 3, doc.KPIs.WorkMix.TotalIssues)
}

func TestCalculateAllKPIsRepositoryMetadataFailures(t *testing.T) {
	repo := twoProjectRepo()
	repo.statsErr = errors.New("stats unavailable")
	repo.listProjectsErr = errors.New("projects unavailable")

	doc := newTestEngine(repo, DefaultSettings()).CalculateAllKPIs(context.Background(), Query{Projects: []string{"A", "A"}})

	assert.Equal(t, []string{"A"}, doc.Projects)
	assert.Contains(t, doc.Warnings["database_stats"], "stats unavailable")
	assert.Contains(t, doc.Warnings["projects"], "projects unavailable")
	assert.Equal(t, models.RepositoryStats{}, doc.DatabaseStats)
	assert.Equal(t, 1, doc.KPIs.CycleTime.IssuesAnalyzed)
}

func TestBaselineCycleTimeFromUnfilteredDocument(t *testing.T) {
	engine := newTestEngine(twoProjectRepo(), DefaultSettings())
	assert.Nil(t, engine.baselineCycleTime())

	engine.CalculateAllKPIs(context.Background(), Query{Projects: []string{"A"}})
	assert.Nil(t, engine.baselineCycleTime(), "filtered documents are not a baseline")

	engine.CalculateAllKPIs(context.Background(), Query{})
	baseline := engine.baselineCycleTime()
	require.NotNil(t, baseline)
	assert.Equal(t, 5.0, baseline.MinDays)
	assert.Equal(t, 7.0, baseline.MaxDays)
}

func TestProjectKeys(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{name: "Empty", values: nil, want: nil},
		{name: "Comma separated", values: []string{"abc, web"}, want: []string{"ABC", "WEB"}},
		{name: "Repeated and blank", values: []string{"Plat", " ", "abc,,"}, want: []string{"PLAT", "ABC"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectKeys(tt.values))
		})
	}
}
