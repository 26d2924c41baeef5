// Package jira reads issues, change history, boards, sprints and sprint
// reports from a Jira instance and converts them into the shared models.
package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"

	"github.com/danielolaszy/cadence/internal/logging"
	"github.com/danielolaszy/cadence/pkg/models"
)

// ErrNotInitialized is returned by every call on a Client without a
// working connection.
var ErrNotInitialized = errors.New("JIRA client not initialized")

// Options configures a Client.
type Options struct {
	URL      string
	Username string
	// Token is an API token when Username is set, otherwise a personal
	// access token sent as a bearer token.
	Token string

	StoryPointsField string
	SprintField      string
	PageSize         int
}

// Client handles interactions with the JIRA API
type Client struct {
	client *jira.Client
	opts   Options
}

// IssueRecord is an issue together with its change history.
type IssueRecord struct {
	Issue  models.Issue
	Events []models.ChangeEvent
}

// NewClient creates a new JIRA client
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" || opts.Token == "" {
		return &Client{opts: opts}, fmt.Errorf("%w: URL and token are required", ErrNotInitialized)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}

	var tp interface{ Client() *http.Client }
	if opts.Username != "" {
		tp = &jira.BasicAuthTransport{Username: opts.Username, Password: opts.Token}
	} else {
		tp = &jira.BearerAuthTransport{Token: opts.Token}
	}

	client, err := jira.NewClient(tp.Client(), opts.URL)
	if err != nil {
		return &Client{opts: opts}, fmt.Errorf("failed to create JIRA client: %w", err)
	}

	logging.Debug("JIRA client created", "url", opts.URL, "auth", authMode(opts))
	return &Client{client: client, opts: opts}, nil
}

func authMode(opts Options) string {
	if opts.Username != "" {
		return "basic"
	}
	return "bearer"
}

// IssueJQL builds the search for one project's issues updated since the
// given time. A zero since selects every issue.
func IssueJQL(project string, since time.Time) string {
	jql := fmt.Sprintf("project = \"%s\"", project)
	if !since.IsZero() {
		jql += fmt.Sprintf(" AND updated >= \"%s\"", since.Format("2006-01-02 15:04"))
	}
	return jql + " ORDER BY updated DESC"
}

// SearchIssues pages through the issues matching jql and hands each one to
// fn. With changelog set the full history is expanded inline.
func (c *Client) SearchIssues(ctx context.Context, jql string, changelog bool, fn func(IssueRecord) error) error {
	if c.client == nil {
		return ErrNotInitialized
	}

	opts := &jira.SearchOptions{
		MaxResults: c.opts.PageSize,
		Fields:     c.searchFields(),
	}
	if changelog {
		opts.Expand = "changelog"
	}

	err := c.client.Issue.SearchPagesWithContext(ctx, jql, opts, func(issue jira.Issue) error {
		rec := IssueRecord{Issue: ConvertIssue(issue, c.opts.StoryPointsField, c.opts.SprintField)}
		if changelog {
			rec.Events = ConvertChangelog(issue.Key, issue.Changelog)
		}
		return fn(rec)
	})
	if err != nil {
		return fmt.Errorf("failed to search JIRA issues: %w", err)
	}
	return nil
}

func (c *Client) searchFields() []string {
	fields := []string{
		"summary", "issuetype", "status", "priority", "assignee", "reporter",
		"created", "updated", "resolutiondate", "resolution", "labels", "components", "project",
	}
	for _, f := range []string{c.opts.StoryPointsField, c.opts.SprintField} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// GetBoards returns the boards located in the given project.
func (c *Client) GetBoards(ctx context.Context, project string) ([]models.Board, error) {
	if c.client == nil {
		return nil, ErrNotInitialized
	}

	var boards []models.Board
	opts := &jira.BoardListOptions{ProjectKeyOrID: project}
	opts.MaxResults = 50
	for {
		page, _, err := c.client.Board.GetAllBoardsWithContext(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list boards for %s: %w", project, err)
		}
		for _, b := range page.Values {
			boards = append(boards, models.Board{
				ID:          int64(b.ID),
				Name:        b.Name,
				Type:        b.Type,
				LocationKey: project,
			})
		}
		if page.IsLast || len(page.Values) == 0 {
			return boards, nil
		}
		opts.StartAt += len(page.Values)
	}
}

// GetSprints returns the active and closed sprints of a scrum board.
// Kanban boards have none.
func (c *Client) GetSprints(ctx context.Context, board models.Board) ([]models.Sprint, error) {
	if c.client == nil {
		return nil, ErrNotInitialized
	}
	if strings.EqualFold(board.Type, "kanban") {
		return nil, nil
	}

	var sprints []models.Sprint
	opts := &jira.GetAllSprintsOptions{State: models.SprintStateActive + "," + models.SprintStateClosed}
	opts.MaxResults = 50
	for {
		page, _, err := c.client.Board.GetAllSprintsWithOptionsWithContext(ctx, int(board.ID), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list sprints for board %d: %w", board.ID, err)
		}
		for _, s := range page.Values {
			sprints = append(sprints, ConvertSprint(s, board))
		}
		if page.IsLast || len(page.Values) == 0 {
			return sprints, nil
		}
		opts.StartAt += len(page.Values)
	}
}

// sprintReportResponse is the part of the greenhopper sprint report we use.
type sprintReportResponse struct {
	Contents struct {
		CompletedIssues                   []reportIssue `json:"completedIssues"`
		IssuesNotCompletedInCurrentSprint []reportIssue `json:"issuesNotCompletedInCurrentSprint"`
		PuntedIssues                      []reportIssue `json:"puntedIssues"`
	} `json:"contents"`
	Sprint struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"sprint"`
}

type reportIssue struct {
	Key string `json:"key"`
}

// GetSprintReport fetches the commitment snapshot of a closed sprint.
func (c *Client) GetSprintReport(ctx context.Context, sprint models.Sprint, project string) (models.SprintReport, error) {
	if c.client == nil {
		return models.SprintReport{}, ErrNotInitialized
	}

	url := fmt.Sprintf("rest/greenhopper/1.0/rapid/charts/sprintreport?rapidViewId=%d&sprintId=%d", sprint.BoardID, sprint.ID)
	req, err := c.client.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return models.SprintReport{}, fmt.Errorf("failed to build sprint report request: %w", err)
	}

	var resp sprintReportResponse
	if _, err := c.client.Do(req, &resp); err != nil {
		return models.SprintReport{}, fmt.Errorf("failed to fetch sprint report for sprint %d: %w", sprint.ID, err)
	}
	return convertSprintReport(resp, sprint, project, time.Now().UTC()), nil
}

func convertSprintReport(resp sprintReportResponse, sprint models.Sprint, project string, at time.Time) models.SprintReport {
	name := resp.Sprint.Name
	if name == "" {
		name = sprint.Name
	}
	return models.SprintReport{
		SprintID:   sprint.ID,
		BoardID:    sprint.BoardID,
		SprintName: name,
		Project:    project,
		Completed:  len(resp.Contents.CompletedIssues),
		NotDone:    len(resp.Contents.IssuesNotCompletedInCurrentSprint),
		Punted:     len(resp.Contents.PuntedIssues),
		SyncedAt:   at,
	}
}
