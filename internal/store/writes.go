package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/danielolaszy/cadence/pkg/models"
)

// UpsertBoards inserts or refreshes boards.
func (s *Store) UpsertBoards(ctx context.Context, boards []models.Board) error {
	const q = `
		INSERT INTO boards (id, name, type, location_key, location_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			location_key = EXCLUDED.location_key,
			location_name = EXCLUDED.location_name,
			updated_at = now()`

	batch := &pgx.Batch{}
	for _, b := range boards {
		batch.Queue(q, b.ID, b.Name, b.Type, b.LocationKey, b.LocationName)
	}
	return s.sendBatch(ctx, batch, "boards")
}

// UpsertSprints inserts or refreshes sprints. A stored board name is kept
// when the incoming sprint has none.
func (s *Store) UpsertSprints(ctx context.Context, sprints []models.Sprint) error {
	const q = `
		INSERT INTO sprints (id, name, board_id, board_name, state, start_date, end_date, complete_date, goal, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			board_id = EXCLUDED.board_id,
			board_name = COALESCE(NULLIF(EXCLUDED.board_name, ''), sprints.board_name),
			state = EXCLUDED.state,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			complete_date = EXCLUDED.complete_date,
			goal = EXCLUDED.goal,
			updated_at = now()`

	batch := &pgx.Batch{}
	for _, sp := range sprints {
		batch.Queue(q, sp.ID, sp.Name, sp.BoardID, sp.BoardName, sp.State, sp.Start, sp.End, sp.Completed, sp.Goal)
	}
	return s.sendBatch(ctx, batch, "sprints")
}

// UpsertIssues inserts or refreshes issues. Sprint ids accumulate so an
// issue keeps every sprint it was ever seen in.
func (s *Store) UpsertIssues(ctx context.Context, issues []models.Issue) error {
	const q = `
		INSERT INTO issues (key, project, summary, issue_type, status, priority, assignee, reporter,
			created, updated, resolved, resolution, labels, components, story_points, sprint_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (key) DO UPDATE SET
			project = EXCLUDED.project,
			summary = EXCLUDED.summary,
			issue_type = EXCLUDED.issue_type,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			assignee = EXCLUDED.assignee,
			reporter = EXCLUDED.reporter,
			created = EXCLUDED.created,
			updated = EXCLUDED.updated,
			resolved = EXCLUDED.resolved,
			resolution = EXCLUDED.resolution,
			labels = EXCLUDED.labels,
			components = EXCLUDED.components,
			story_points = EXCLUDED.story_points,
			sprint_ids = ARRAY(
				SELECT DISTINCT unnest(issues.sprint_ids || EXCLUDED.sprint_ids) ORDER BY 1
			)`

	batch := &pgx.Batch{}
	for _, i := range issues {
		batch.Queue(q, i.Key, i.Project, i.Summary, i.Type, i.Status, i.Priority, i.Assignee, i.Reporter,
			i.Created, i.Updated, i.Resolved, i.Resolution, nonNil(i.Labels), nonNil(i.Components), i.StoryPoints, nonNil(i.SprintIDs))
	}
	return s.sendBatch(ctx, batch, "issues")
}

// InsertChangelog stores change events. Events already stored are ignored.
func (s *Store) InsertChangelog(ctx context.Context, events []models.ChangeEvent) error {
	const q = `
		INSERT INTO issue_changelog (issue_key, created, author, field, from_value, to_value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (issue_key, created, field, from_value, to_value) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(q, e.IssueKey, e.At, e.Author, e.Field, e.From, e.To)
	}
	return s.sendBatch(ctx, batch, "changelog")
}

// UpsertSprintReport stores the report of a sprint for a project.
func (s *Store) UpsertSprintReport(ctx context.Context, r models.SprintReport) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sprint_reports (sprint_id, project, board_id, sprint_name,
			completed_count, not_completed_count, punted_count, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sprint_id, project) DO UPDATE SET
			board_id = EXCLUDED.board_id,
			sprint_name = EXCLUDED.sprint_name,
			completed_count = EXCLUDED.completed_count,
			not_completed_count = EXCLUDED.not_completed_count,
			punted_count = EXCLUDED.punted_count,
			synced_at = EXCLUDED.synced_at`,
		r.SprintID, r.Project, r.BoardID, r.SprintName, r.Completed, r.NotDone, r.Punted, r.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert sprint report %d/%s: %w", r.SprintID, r.Project, err)
	}
	return nil
}

// StartSync records a running sync and returns its id.
func (s *Store) StartSync(ctx context.Context, syncType string, projects []string, at time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sync_runs (sync_type, started_at, status, projects)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		syncType, at, models.SyncStatusRunning, nonNil(projects)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to start sync run: %w", err)
	}
	return id, nil
}

// CompleteSync closes a sync run. A non-empty errMsg marks it failed.
func (s *Store) CompleteSync(ctx context.Context, id int64, issues, sprints int, errMsg string, at time.Time) error {
	status := models.SyncStatusCompleted
	if errMsg != "" {
		status = models.SyncStatusFailed
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_runs SET completed_at = $2, status = $3, issues_synced = $4, sprints_synced = $5, error_message = $6
		WHERE id = $1`, id, at, status, issues, sprints, errMsg)
	if err != nil {
		return fmt.Errorf("failed to complete sync run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync run %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, what string) error {
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to write %s: %w", what, err)
		}
	}
	s.log.Debug("batch written", "table", what, "rows", batch.Len())
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// WithAdvisoryLock runs fn while holding a session advisory lock on a
// dedicated connection. It reports false without calling fn when another
// session holds the lock.
func (s *Store) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", key); err != nil {
			s.log.Warn("failed to release advisory lock", "key", key, "error", err)
		}
	}()

	return true, fn(ctx)
}
