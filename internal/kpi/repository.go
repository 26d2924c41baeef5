package kpi

import (
	"context"
	"errors"

	"github.com/danielolaszy/cadence/pkg/models"
)

// ErrNoRepository is reported for every KPI when the engine has no repository.
var ErrNoRepository = errors.New("no repository configured")

// IssueFilter narrows ListIssues. Empty fields do not filter.
type IssueFilter struct {
	Project string
	Status  string
	Type    string
	Limit   int
}

// SprintFilter narrows ListSprints. Zero fields do not filter.
type SprintFilter struct {
	BoardID int64
	State   string
}

// Repository is the read contract the engine needs from the store.
type Repository interface {
	// ListIssues returns issues newest-created first.
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	ListSprints(ctx context.Context, filter SprintFilter) ([]models.Sprint, error)
	// IssueChangelog returns the events of one issue ordered by timestamp.
	IssueChangelog(ctx context.Context, issueKey string) ([]models.ChangeEvent, error)
	ListProjects(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (models.RepositoryStats, error)
}

// SprintReportReader is implemented by repositories that store sprint
// reports. The engine falls back to issue membership without it.
type SprintReportReader interface {
	// SprintReport returns the report of a sprint for a project. found is
	// false when no report was stored.
	SprintReport(ctx context.Context, sprintID int64, project string) (report models.SprintReport, found bool, err error)
}
