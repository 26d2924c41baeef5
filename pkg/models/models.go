// Package models defines data structures shared across the application.
package models

import (
	"time"
)

// Issue represents a tracker work item as stored in the repository.
type Issue struct {
	// Key is the project-scoped identifier (e.g., "ABC-123")
	Key string `json:"key"`

	// Project is the owning project key (e.g., "ABC")
	Project string `json:"project"`

	Summary string `json:"summary"`

	// Type is the issue type name (Story, Task, Bug, Epic, ...)
	Type string `json:"issue_type"`

	// Status is the tracker-defined status name
	Status string `json:"status"`

	Priority string `json:"priority,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Reporter string `json:"reporter,omitempty"`

	Created  time.Time  `json:"created"`
	Updated  time.Time  `json:"updated"`
	Resolved *time.Time `json:"resolved,omitempty"`

	// Resolution is the resolution outcome name (Done, Won't Do, ...)
	Resolution string `json:"resolution,omitempty"`

	// Labels keeps the order in which the tracker returned the labels
	Labels []string `json:"labels"`

	Components []string `json:"components"`

	StoryPoints *float64 `json:"story_points,omitempty"`

	// SprintIDs holds every sprint the issue has been seen in, not only the current one
	SprintIDs []int64 `json:"sprint_ids"`
}

// ChangeEvent is a single field-level transition recorded against an issue.
type ChangeEvent struct {
	IssueKey string    `json:"issue_key"`
	At       time.Time `json:"created"`
	Author   string    `json:"author,omitempty"`
	Field    string    `json:"field"`
	From     string    `json:"from_value"`
	To       string    `json:"to_value"`
}

// Sprint states as reported by the tracker.
const (
	SprintStateFuture = "future"
	SprintStateActive = "active"
	SprintStateClosed = "closed"
)

// Sprint is a time-boxed container of issues on a board.
type Sprint struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	BoardID   int64      `json:"board_id"`
	BoardName string     `json:"board_name"`
	State     string     `json:"state"`
	Start     *time.Time `json:"start_date,omitempty"`
	End       *time.Time `json:"end_date,omitempty"`
	Completed *time.Time `json:"complete_date,omitempty"`
	Goal      string     `json:"goal,omitempty"`
}

// Board is a tracker board owning sprints.
type Board struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	LocationKey  string `json:"location_key"`
	LocationName string `json:"location_name"`
}

// SprintReport is the snapshot of a sprint's commitment taken at sprint close.
type SprintReport struct {
	SprintID   int64     `json:"sprint_id"`
	BoardID    int64     `json:"board_id"`
	SprintName string    `json:"sprint_name"`
	Project    string    `json:"project"`
	Completed  int       `json:"completed_count"`
	NotDone    int       `json:"not_completed_count"`
	Punted     int       `json:"punted_count"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Committed is the number of issues the sprint closed with, done or not.
func (r SprintReport) Committed() int {
	return r.Completed + r.NotDone
}

// SyncRun records one ingestion run.
type SyncRun struct {
	ID            int64      `json:"id" yaml:"id"`
	Type          string     `json:"sync_type" yaml:"sync_type"`
	StartedAt     time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status        string     `json:"status" yaml:"status"`
	Projects      []string   `json:"projects" yaml:"projects"`
	IssuesSynced  int        `json:"issues_synced" yaml:"issues_synced"`
	SprintsSynced int        `json:"sprints_synced" yaml:"sprints_synced"`
	Error         string     `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Sync run states and types.
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"

	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// RepositoryStats summarises what the repository currently holds.
type RepositoryStats struct {
	IssuesCount   int      `json:"issues_count" yaml:"issues_count"`
	SprintsCount  int      `json:"sprints_count" yaml:"sprints_count"`
	BoardsCount   int      `json:"boards_count" yaml:"boards_count"`
	ProjectsCount int      `json:"projects_count" yaml:"projects_count"`
	LastSync      *SyncRun `json:"last_sync" yaml:"last_sync"`
}
