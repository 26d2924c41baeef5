// Package store persists issues, sprints, boards, change history, sprint
// reports and sync runs in PostgreSQL and serves them back to the KPI engine.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is a PostgreSQL-backed repository.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

var (
	_ kpi.Repository         = (*Store)(nil)
	_ kpi.SprintReportReader = (*Store)(nil)
)

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, log: logging.With("component", "store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ListIssues returns the issues matching filter, newest-created first.
func (s *Store) ListIssues(ctx context.Context, filter kpi.IssueFilter) ([]models.Issue, error) {
	q, args := issueQuery(filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	issues := []models.Issue{}
	for rows.Next() {
		var i models.Issue
		if err := rows.Scan(&i.Key, &i.Project, &i.Summary, &i.Type, &i.Status, &i.Priority, &i.Assignee, &i.Reporter,
			&i.Created, &i.Updated, &i.Resolved, &i.Resolution, &i.Labels, &i.Components, &i.StoryPoints, &i.SprintIDs); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read issues: %w", err)
	}
	return issues, nil
}

// ListSprints returns the sprints matching filter, most recently ended first.
func (s *Store) ListSprints(ctx context.Context, filter kpi.SprintFilter) ([]models.Sprint, error) {
	q, args := sprintQuery(filter)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sprints: %w", err)
	}
	defer rows.Close()

	sprints := []models.Sprint{}
	for rows.Next() {
		var sp models.Sprint
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.BoardID, &sp.BoardName, &sp.State,
			&sp.Start, &sp.End, &sp.Completed, &sp.Goal); err != nil {
			return nil, fmt.Errorf("failed to scan sprint: %w", err)
		}
		sprints = append(sprints, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sprints: %w", err)
	}
	return sprints, nil
}

// IssueChangelog returns the change events of one issue in timestamp order.
func (s *Store) IssueChangelog(ctx context.Context, issueKey string) ([]models.ChangeEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT issue_key, created, author, field, from_value, to_value
		FROM issue_changelog WHERE issue_key = $1 ORDER BY created`, issueKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query changelog: %w", err)
	}
	defer rows.Close()

	events := []models.ChangeEvent{}
	for rows.Next() {
		var e models.ChangeEvent
		if err := rows.Scan(&e.IssueKey, &e.At, &e.Author, &e.Field, &e.From, &e.To); err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}
	return events, nil
}

// ListProjects returns the distinct project keys holding issues.
func (s *Store) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT project FROM issues ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	projects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}
	return projects, nil
}

// Stats summarises the stored data and the most recent sync run.
func (s *Store) Stats(ctx context.Context) (models.RepositoryStats, error) {
	var stats models.RepositoryStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM issues),
			(SELECT COUNT(*) FROM sprints),
			(SELECT COUNT(*) FROM boards),
			(SELECT COUNT(DISTINCT project) FROM issues)`).
		Scan(&stats.IssuesCount, &stats.SprintsCount, &stats.BoardsCount, &stats.ProjectsCount)
	if err != nil {
		return stats, fmt.Errorf("failed to count repository rows: %w", err)
	}

	runs, err := s.RecentSyncs(ctx, 1)
	if err != nil {
		return stats, err
	}
	if len(runs) > 0 {
		stats.LastSync = &runs[0]
	}
	return stats, nil
}

// SprintReport returns the stored report of a sprint for a project.
func (s *Store) SprintReport(ctx context.Context, sprintID int64, project string) (models.SprintReport, bool, error) {
	var r models.SprintReport
	err := s.pool.QueryRow(ctx, `
		SELECT sprint_id, board_id, sprint_name, project, completed_count, not_completed_count, punted_count, synced_at
		FROM sprint_reports WHERE sprint_id = $1 AND project = $2`, sprintID, project).
		Scan(&r.SprintID, &r.BoardID, &r.SprintName, &r.Project, &r.Completed, &r.NotDone, &r.Punted, &r.SyncedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SprintReport{}, false, nil
	}
	if err != nil {
		return models.SprintReport{}, false, fmt.Errorf("failed to get sprint report %d/%s: %w", sprintID, project, err)
	}
	return r, true, nil
}

// RecentSyncs returns up to limit sync runs, newest first.
func (s *Store) RecentSyncs(ctx context.Context, limit int) ([]models.SyncRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sync_type, started_at, completed_at, status, projects, issues_synced, sprints_synced, error_message
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []models.SyncRun{}
	for rows.Next() {
		var r models.SyncRun
		if err := rows.Scan(&r.ID, &r.Type, &r.StartedAt, &r.CompletedAt, &r.Status, &r.Projects,
			&r.IssuesSynced, &r.SprintsSynced, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync runs: %w", err)
	}
	return runs, nil
}
