package kpi

import (
	"context"
	"fmt"

	"github.com/danielolaszy/cadence/internal/lifecycle"
	"github.com/danielolaszy/cadence/pkg/models"
)

type reportKey struct {
	sprintID int64
	project  string
}

type reportResult struct {
	report models.SprintReport
	found  bool
}

// snapshot memoizes repository reads for the duration of one document so
// that every calculator sees the same data and nothing is fetched twice.
type snapshot struct {
	repo Repository
	life *lifecycle.Reconstructor

	issuesLoaded bool
	issues       []models.Issue
	issuesErr    error

	sprintsLoaded bool
	sprints       []models.Sprint
	sprintsErr    error

	changelogs  map[string][]models.ChangeEvent
	memberships map[string]lifecycle.Membership
	timelines   map[string]lifecycle.Timeline
	reports     map[reportKey]reportResult
}

func newSnapshot(repo Repository, life *lifecycle.Reconstructor) *snapshot {
	return &snapshot{
		repo:        repo,
		life:        life,
		changelogs:  make(map[string][]models.ChangeEvent),
		memberships: make(map[string]lifecycle.Membership),
		timelines:   make(map[string]lifecycle.Timeline),
		reports:     make(map[reportKey]reportResult),
	}
}

func (s *snapshot) allIssues(ctx context.Context) ([]models.Issue, error) {
	if !s.issuesLoaded {
		s.issues, s.issuesErr = s.repo.ListIssues(ctx, IssueFilter{})
		if s.issuesErr != nil {
			s.issuesErr = fmt.Errorf("failed to list issues: %w", s.issuesErr)
		}
		s.issuesLoaded = true
	}
	return s.issues, s.issuesErr
}

func (s *snapshot) closedSprints(ctx context.Context) ([]models.Sprint, error) {
	if !s.sprintsLoaded {
		s.sprints, s.sprintsErr = s.repo.ListSprints(ctx, SprintFilter{State: models.SprintStateClosed})
		if s.sprintsErr != nil {
			s.sprintsErr = fmt.Errorf("failed to list closed sprints: %w", s.sprintsErr)
		}
		s.sprintsLoaded = true
	}
	return s.sprints, s.sprintsErr
}

func (s *snapshot) changelog(ctx context.Context, key string) ([]models.ChangeEvent, error) {
	if events, ok := s.changelogs[key]; ok {
		return events, nil
	}
	events, err := s.repo.IssueChangelog(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get changelog for %s: %w", key, err)
	}
	s.changelogs[key] = events
	return events, nil
}

func (s *snapshot) timeline(ctx context.Context, key string) (lifecycle.Timeline, error) {
	if tl, ok := s.timelines[key]; ok {
		return tl, nil
	}
	events, err := s.changelog(ctx, key)
	if err != nil {
		return lifecycle.Timeline{}, err
	}
	tl := s.life.Replay(events)
	s.timelines[key] = tl
	return tl, nil
}

func (s *snapshot) membership(ctx context.Context, issue models.Issue) (lifecycle.Membership, error) {
	if m, ok := s.memberships[issue.Key]; ok {
		return m, nil
	}
	events, err := s.changelog(ctx, issue.Key)
	if err != nil {
		return lifecycle.Membership{}, err
	}
	m := s.life.Membership(issue, events)
	s.memberships[issue.Key] = m
	return m, nil
}

// sprintReport returns the stored report for a sprint and project. It never
// finds anything when the repository does not store reports.
func (s *snapshot) sprintReport(ctx context.Context, sprintID int64, project string) (models.SprintReport, bool, error) {
	reader, ok := s.repo.(SprintReportReader)
	if !ok {
		return models.SprintReport{}, false, nil
	}

	key := reportKey{sprintID: sprintID, project: project}
	if r, ok := s.reports[key]; ok {
		return r.report, r.found, nil
	}
	report, found, err := reader.SprintReport(ctx, sprintID, project)
	if err != nil {
		return models.SprintReport{}, false, fmt.Errorf("failed to get sprint report for sprint %d: %w", sprintID, err)
	}
	s.reports[key] = reportResult{report: report, found: found}
	return report, found, nil
}

func (s *snapshot) supportsReports() bool {
	_, ok := s.repo.(SprintReportReader)
	return ok
}
