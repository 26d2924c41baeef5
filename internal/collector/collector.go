// Package collector copies boards, sprints, issues, change history and
// sprint reports from the issue tracker into the store.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/danielolaszy/cadence/internal/jira"
	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// Source is the tracker side of a sync.
type Source interface {
	GetBoards(ctx context.Context, project string) ([]models.Board, error)
	GetSprints(ctx context.Context, board models.Board) ([]models.Sprint, error)
	SearchIssues(ctx context.Context, jql string, changelog bool, fn func(jira.IssueRecord) error) error
	GetSprintReport(ctx context.Context, sprint models.Sprint, project string) (models.SprintReport, error)
}

// Sink is the storage side of a sync.
type Sink interface {
	UpsertBoards(ctx context.Context, boards []models.Board) error
	UpsertSprints(ctx context.Context, sprints []models.Sprint) error
	UpsertIssues(ctx context.Context, issues []models.Issue) error
	InsertChangelog(ctx context.Context, events []models.ChangeEvent) error
	UpsertSprintReport(ctx context.Context, report models.SprintReport) error
	StartSync(ctx context.Context, syncType string, projects []string, at time.Time) (int64, error)
	CompleteSync(ctx context.Context, id int64, issues, sprints int, errMsg string, at time.Time) error
}

// Options controls one sync run.
type Options struct {
	Projects []string
	// Since limits issues to those updated after it. Zero fetches all.
	Since            time.Time
	Type             string
	IncludeChangelog bool
	SprintReports    bool
	BatchSize        int
}

// Result counts what a run wrote.
type Result struct {
	Boards   int
	Sprints  int
	Issues   int
	Events   int
	Reports  int
	Failures []string
}

// Collector runs syncs from a Source into a Sink.
type Collector struct {
	source Source
	sink   Sink
	now    func() time.Time
	log    *slog.Logger
}

// New returns a Collector.
func New(source Source, sink Sink) *Collector {
	return &Collector{
		source: source,
		sink:   sink,
		now:    time.Now,
		log:    logging.With("component", "collector"),
	}
}

// Run syncs every project in opts. A failing board, project or sprint
// report is logged and recorded in Result.Failures without stopping the
// run. The run fails only when no project could be synced.
func (c *Collector) Run(ctx context.Context, opts Options) (Result, error) {
	if len(opts.Projects) == 0 {
		return Result{}, errors.New("no projects configured for sync")
	}
	if opts.Type == "" {
		opts.Type = models.SyncTypeFull
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	runID, err := c.sink.StartSync(ctx, opts.Type, opts.Projects, c.now().UTC())
	if err != nil {
		return Result{}, err
	}

	log := c.log.With("sync_id", runID, "type", opts.Type)
	log.Info("starting sync", "projects", opts.Projects, "since", opts.Since)

	var res Result
	synced := 0
	for _, project := range opts.Projects {
		if err := ctx.Err(); err != nil {
			res.Failures = append(res.Failures, err.Error())
			break
		}
		if err := c.syncProject(ctx, project, opts, &res, log.With("project", project)); err != nil {
			log.Error("failed to sync project", "project", project, "error", err)
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", project, err))
			continue
		}
		synced++
	}

	var runErr error
	if synced == 0 {
		runErr = fmt.Errorf("sync failed for every project: %s", strings.Join(res.Failures, "; "))
	}

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	// The run record is closed even when ctx was cancelled.
	if err := c.sink.CompleteSync(context.WithoutCancel(ctx), runID, res.Issues, res.Sprints, errMsg, c.now().UTC()); err != nil {
		log.Error("failed to record sync completion", "error", err)
	}

	log.Info("sync complete",
		"boards", res.Boards,
		"sprints", res.Sprints,
		"issues", res.Issues,
		"events", res.Events,
		"reports", res.Reports,
		"failures", len(res.Failures))
	return res, runErr
}

func (c *Collector) syncProject(ctx context.Context, project string, opts Options, res *Result, log *slog.Logger) error {
	boards, err := c.source.GetBoards(ctx, project)
	if err != nil {
		return err
	}
	if err := c.sink.UpsertBoards(ctx, boards); err != nil {
		return err
	}
	res.Boards += len(boards)

	var closed []models.Sprint
	for _, board := range boards {
		sprints, err := c.source.GetSprints(ctx, board)
		if err != nil {
			log.Warn("failed to fetch sprints", "board", board.ID, "error", err)
			res.Failures = append(res.Failures, fmt.Sprintf("%s/board %d: %v", project, board.ID, err))
			continue
		}
		if err := c.sink.UpsertSprints(ctx, sprints); err != nil {
			return err
		}
		res.Sprints += len(sprints)
		for _, sp := range sprints {
			if sp.State == models.SprintStateClosed {
				closed = append(closed, sp)
			}
		}
	}
	log.Debug("boards synced", "boards", len(boards), "closed_sprints", len(closed))

	if err := c.syncIssues(ctx, project, opts, res, log); err != nil {
		return err
	}

	if opts.SprintReports {
		c.syncReports(ctx, project, closed, opts.Since, res, log)
	}
	return nil
}

func (c *Collector) syncIssues(ctx context.Context, project string, opts Options, res *Result, log *slog.Logger) error {
	var issues []models.Issue
	var events []models.ChangeEvent

	flush := func() error {
		if len(issues) == 0 {
			return nil
		}
		// Issues first: change events reference them.
		if err := c.sink.UpsertIssues(ctx, issues); err != nil {
			return err
		}
		if err := c.sink.InsertChangelog(ctx, events); err != nil {
			return err
		}
		res.Issues += len(issues)
		res.Events += len(events)
		log.Debug("issue batch written", "issues", len(issues), "events", len(events))
		issues, events = issues[:0], events[:0]
		return nil
	}

	err := c.source.SearchIssues(ctx, jira.IssueJQL(project, opts.Since), opts.IncludeChangelog, func(rec jira.IssueRecord) error {
		issues = append(issues, rec.Issue)
		events = append(events, rec.Events...)
		if len(issues) >= opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// syncReports fetches the report of every closed sprint that ended inside
// the sync window.
func (c *Collector) syncReports(ctx context.Context, project string, sprints []models.Sprint, since time.Time, res *Result, log *slog.Logger) {
	for _, sp := range sprints {
		if !since.IsZero() && sp.End != nil && sp.End.Before(since) {
			continue
		}
		report, err := c.source.GetSprintReport(ctx, sp, project)
		if err != nil {
			log.Warn("failed to fetch sprint report", "sprint", sp.ID, "error", err)
			res.Failures = append(res.Failures, fmt.Sprintf("%s/sprint %d: %v", project, sp.ID, err))
			continue
		}
		if err := c.sink.UpsertSprintReport(ctx, report); err != nil {
			log.Warn("failed to store sprint report", "sprint", sp.ID, "error", err)
			res.Failures = append(res.Failures, fmt.Sprintf("%s/sprint %d: %v", project, sp.ID, err))
			continue
		}
		res.Reports++
	}
}
