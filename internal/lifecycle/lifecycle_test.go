package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/cadence/pkg/models"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func status(day int, from, to string) models.ChangeEvent {
	return models.ChangeEvent{
		IssueKey: "PROJ-1",
		At:       base.AddDate(0, 0, day),
		Field:    "status",
		From:     from,
		To:       to,
	}
}

func TestClassify(t *testing.T) {
	r := Default()

	testCases := []struct {
		status   string
		expected Signal
	}{
		{"Done", ToDone},
		{"closed", ToDone},
		{" Resolved ", ToDone},
		{"In Progress", ToInProgress},
		{"IN DEVELOPMENT", ToInProgress},
		{"Code Review - In Progress", ToInProgress},
		{"To Do", ToOther},
		{"Done-ish", ToOther},
		{"", ToOther},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			assert.Equal(t, tc.expected, r.Classify(tc.status))
		})
	}
}

func TestCustomVocabulary(t *testing.T) {
	r := New([]string{"Shipped"}, []string{"doing"})

	assert.True(t, r.IsTerminal("shipped"))
	assert.False(t, r.IsTerminal("Done"))
	assert.True(t, r.IsInProgress("Doing"))
	assert.False(t, r.IsInProgress("In Progress"))
}

func TestReplay(t *testing.T) {
	r := Default()

	testCases := []struct {
		name        string
		events      []models.ChangeEvent
		state       State
		completions int
		reopened    Answer
		started     Answer
	}{
		{
			name:     "No history",
			events:   nil,
			state:    NotStarted,
			reopened: Unknown,
			started:  Unknown,
		},
		{
			name: "Straight line",
			events: []models.ChangeEvent{
				status(1, "To Do", "In Progress"),
				status(3, "In Progress", "Done"),
			},
			state:       Done,
			completions: 1,
			reopened:    No,
			started:     Yes,
		},
		{
			name: "Done then reopened",
			events: []models.ChangeEvent{
				status(1, "To Do", "In Progress"),
				status(2, "In Progress", "Done"),
				status(4, "Done", "To Do"),
				status(5, "To Do", "Done"),
			},
			state:       Reopened,
			completions: 1,
			reopened:    Yes,
			started:     Yes,
		},
		{
			name: "Done straight from backlog",
			events: []models.ChangeEvent{
				status(1, "To Do", "Closed"),
			},
			state:       Done,
			completions: 1,
			reopened:    No,
			started:     No,
		},
		{
			name: "Terminal to terminal is not a reopen",
			events: []models.ChangeEvent{
				status(1, "In Progress", "Resolved"),
				status(2, "Resolved", "Closed"),
			},
			state:       Done,
			completions: 2,
			reopened:    No,
			started:     No,
		},
		{
			name: "Other fields are ignored",
			events: []models.ChangeEvent{
				{IssueKey: "PROJ-1", At: base, Field: "assignee", From: "a", To: "b"},
			},
			state:    NotStarted,
			reopened: Unknown,
			started:  Unknown,
		},
		{
			name: "Status field matched case-insensitively",
			events: []models.ChangeEvent{
				{IssueKey: "PROJ-1", At: base, Field: "Status", From: "To Do", To: "In Progress"},
			},
			state:    InProgress,
			reopened: No,
			started:  Yes,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tl := r.Replay(tc.events)
			assert.Equal(t, tc.state, tl.State)
			assert.Equal(t, tc.completions, tl.Completions)
			assert.Equal(t, tc.reopened, tl.Reopened())
			assert.Equal(t, tc.started, tl.Started())
		})
	}
}

func TestReplayOrderAndDuplicates(t *testing.T) {
	r := Default()

	events := []models.ChangeEvent{
		status(3, "In Progress", "Done"),
		status(1, "To Do", "In Progress"),
		status(3, "In Progress", "Done"),
	}

	tl := r.Replay(events)
	assert.Equal(t, 1, tl.Completions, "duplicate event must not double count")
	require.NotNil(t, tl.FirstInProgress)
	assert.Equal(t, base.AddDate(0, 0, 1), *tl.FirstInProgress)
	require.NotNil(t, tl.FirstDone)
	assert.Equal(t, base.AddDate(0, 0, 3), *tl.FirstDone)
}

func TestReplayFirstInProgressAfterReopen(t *testing.T) {
	r := Default()

	tl := r.Replay([]models.ChangeEvent{
		status(1, "To Do", "Done"),
		status(2, "Done", "Backlog"),
		status(4, "Backlog", "In Progress"),
	})

	assert.Equal(t, Reopened, tl.State)
	require.NotNil(t, tl.ReopenedAt)
	assert.Equal(t, base.AddDate(0, 0, 2), *tl.ReopenedAt)
	require.NotNil(t, tl.FirstInProgress)
	assert.Equal(t, base.AddDate(0, 0, 4), *tl.FirstInProgress)
}

func TestMembership(t *testing.T) {
	r := Default()

	issue := models.Issue{Key: "PROJ-1", SprintIDs: []int64{12, 11}}
	events := []models.ChangeEvent{
		{IssueKey: "PROJ-1", At: base, Field: "Sprint", From: "", To: "10"},
		{IssueKey: "PROJ-1", At: base.AddDate(0, 0, 14), Field: "Sprint", From: "10", To: "10, 11"},
		{IssueKey: "PROJ-1", At: base.AddDate(0, 0, 28), Field: "Sprint", From: "11", To: "Sprint 12"},
	}

	m := r.Membership(issue, events)
	assert.Equal(t, 3, m.Distinct())
	assert.Equal(t, []int64{10, 11, 12}, m.IDs())
	assert.Equal(t, 2, m.Counts[11])
	assert.True(t, m.Contains(10))
	assert.False(t, m.Contains(13))
}

func TestMembershipWithoutHistory(t *testing.T) {
	m := Default().Membership(models.Issue{SprintIDs: []int64{5, 5}}, nil)
	assert.Equal(t, 1, m.Distinct())
	assert.Equal(t, 2, m.Counts[5])
}

func TestSorted(t *testing.T) {
	events := []models.ChangeEvent{
		status(2, "a", "b"),
		{IssueKey: "PROJ-1", Field: "status", To: "zero time"},
		status(1, "x", "y"),
		status(1, "x", "z"),
	}

	sorted := Sorted(events)
	require.Len(t, sorted, 3)
	assert.Equal(t, "y", sorted[0].To)
	assert.Equal(t, "z", sorted[1].To, "ties keep insertion order")
	assert.Equal(t, "b", sorted[2].To)
	assert.Len(t, events, 4, "input is not modified")
}
