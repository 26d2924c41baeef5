package collector

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/cadence/internal/jira"
	"github.com/danielolaszy/cadence/pkg/models"
)

type fakeSource struct {
	boards     map[string][]models.Board
	boardsErr  map[string]error
	sprints    map[int64][]models.Sprint
	sprintsErr map[int64]error
	issues     map[string][]jira.IssueRecord
	reportErr  map[int64]error

	jqls    []string
	reports []int64
}

func (f *fakeSource) GetBoards(_ context.Context, project string) ([]models.Board, error) {
	if err := f.boardsErr[project]; err != nil {
		return nil, err
	}
	return f.boards[project], nil
}

func (f *fakeSource) GetSprints(_ context.Context, board models.Board) ([]models.Sprint, error) {
	if err := f.sprintsErr[board.ID]; err != nil {
		return nil, err
	}
	return f.sprints[board.ID], nil
}

func (f *fakeSource) SearchIssues(_ context.Context, jql string, _ bool, fn func(jira.IssueRecord) error) error {
	f.jqls = append(f.jqls, jql)
	for project, recs := range f.issues {
		if !strings.Contains(jql, `"`+project+`"`) {
			continue
		}
		for _, rec := range recs {
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *fakeSource) GetSprintReport(_ context.Context, sprint models.Sprint, project string) (models.SprintReport, error) {
	if err := f.reportErr[sprint.ID]; err != nil {
		return models.SprintReport{}, err
	}
	f.reports = append(f.reports, sprint.ID)
	return models.SprintReport{SprintID: sprint.ID, Project: project, Completed: 3}, nil
}

type fakeSink struct {
	boards    []models.Board
	sprints   []models.Sprint
	issues    []models.Issue
	events    []models.ChangeEvent
	reports   []models.SprintReport
	batches   int
	issuesErr error

	started   string
	completed bool
	errMsg    string
	counts    [2]int
}

func (f *fakeSink) UpsertBoards(_ context.Context, boards []models.Board) error {
	f.boards = append(f.boards, boards...)
	return nil
}

func (f *fakeSink) UpsertSprints(_ context.Context, sprints []models.Sprint) error {
	f.sprints = append(f.sprints, sprints...)
	return nil
}

func (f *fakeSink) UpsertIssues(_ context.Context, issues []models.Issue) error {
	if f.issuesErr != nil {
		return f.issuesErr
	}
	f.batches++
	f.issues = append(f.issues, issues...)
	return nil
}

func (f *fakeSink) InsertChangelog(_ context.Context, events []models.ChangeEvent) error {
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeSink) UpsertSprintReport(_ context.Context, report models.SprintReport) error {
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeSink) StartSync(_ context.Context, syncType string, _ []string, _ time.Time) (int64, error) {
	f.started = syncType
	return 1, nil
}

func (f *fakeSink) CompleteSync(_ context.Context, _ int64, issues, sprints int, errMsg string, _ time.Time) error {
	f.completed = true
	f.errMsg = errMsg
	f.counts = [2]int{issues, sprints}
	return nil
}

func record(key string, events int) jira.IssueRecord {
	rec := jira.IssueRecord{Issue: models.Issue{Key: key}}
	for i := 0; i < events; i++ {
		rec.Events = append(rec.Events, models.ChangeEvent{IssueKey: key, Field: "status"})
	}
	return rec
}

func ptr(t time.Time) *time.Time { return &t }

func newSource() *fakeSource {
	now := time.Now()
	return &fakeSource{
		boards: map[string][]models.Board{
			"ABC": {{ID: 1, Name: "ABC board", Type: "scrum"}},
			"WEB": {{ID: 2, Name: "WEB board", Type: "scrum"}},
		},
		sprints: map[int64][]models.Sprint{
			1: {
				{ID: 10, State: models.SprintStateClosed, End: ptr(now.AddDate(0, 0, -100))},
				{ID: 11, State: models.SprintStateClosed, End: ptr(now.AddDate(0, 0, -5))},
				{ID: 12, State: models.SprintStateActive},
			},
			2: {{ID: 20, State: models.SprintStateClosed, End: ptr(now.AddDate(0, 0, -3))}},
		},
		issues: map[string][]jira.IssueRecord{
			"ABC": {record("ABC-1", 2), record("ABC-2", 0), record("ABC-3", 1)},
			"WEB": {record("WEB-1", 1)},
		},
	}
}

func TestRunSyncsEveryProject(t *testing.T) {
	source, sink := newSource(), &fakeSink{}

	res, err := New(source, sink).Run(context.Background(), Options{
		Projects:         []string{"ABC", "WEB"},
		IncludeChangelog: true,
		SprintReports:    true,
		BatchSize:        2,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Boards)
	assert.Equal(t, 4, res.Sprints)
	assert.Equal(t, 4, res.Issues)
	assert.Equal(t, 4, res.Events)
	assert.Equal(t, 3, res.Reports, "every closed sprint of a full sync")
	assert.Empty(t, res.Failures)

	assert.Len(t, sink.issues, 4)
	assert.Equal(t, 3, sink.batches, "ABC flushes at two issues and again at the end")
	assert.Equal(t, models.SyncTypeFull, sink.started)
	assert.True(t, sink.completed)
	assert.Empty(t, sink.errMsg)
	assert.Equal(t, [2]int{4, 4}, sink.counts)
}

func TestRunIncrementalSkipsOldReports(t *testing.T) {
	source, sink := newSource(), &fakeSink{}

	res, err := New(source, sink).Run(context.Background(), Options{
		Projects:      []string{"ABC"},
		Since:         time.Now().AddDate(0, 0, -30),
		Type:          models.SyncTypeIncremental,
		SprintReports: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{11}, source.reports)
	assert.Equal(t, 1, res.Reports)
	assert.Contains(t, source.jqls[0], "updated >=")
	assert.Equal(t, models.SyncTypeIncremental, sink.started)
}

func TestRunIsolatesFailures(t *testing.T) {
	source, sink := newSource(), &fakeSink{}
	source.boardsErr = map[string]error{"WEB": errors.New("forbidden")}
	source.reportErr = map[int64]error{11: errors.New("report gone")}

	res, err := New(source, sink).Run(context.Background(), Options{
		Projects:      []string{"ABC", "WEB"},
		SprintReports: true,
	})
	require.NoError(t, err, "one project still synced")

	assert.Equal(t, 3, res.Issues)
	assert.Equal(t, 1, res.Reports)
	require.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[0], "report gone")
	assert.Contains(t, res.Failures[1], "forbidden")
}

func TestRunFailsWhenNothingSynced(t *testing.T) {
	source := newSource()
	sink := &fakeSink{issuesErr: errors.New("disk full")}

	_, err := New(source, sink).Run(context.Background(), Options{Projects: []string{"ABC"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, sink.completed)
	assert.Contains(t, sink.errMsg, "disk full")
}

func TestRunRequiresProjects(t *testing.T) {
	_, err := New(newSource(), &fakeSink{}).Run(context.Background(), Options{})
	assert.Error(t, err)
}
