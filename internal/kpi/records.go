package kpi

import (
	"time"

	"github.com/danielolaszy/cadence/pkg/models"
)

// KPI names as they appear in the document.
const (
	NameSprintPredictability = "sprint_predictability"
	NameStorySpillover       = "story_spillover"
	NameCycleTime            = "cycle_time"
	NameWorkMix              = "work_mix"
	NameUnplannedWork        = "unplanned_work"
	NameReopenedStories      = "reopened_stories"
)

// Names lists every KPI in document order.
var Names = []string{
	NameSprintPredictability,
	NameStorySpillover,
	NameCycleTime,
	NameWorkMix,
	NameUnplannedWork,
	NameReopenedStories,
}

// Data sources of a sprint row.
const (
	SourceSprintReport    = "sprint_report"
	SourceIssueMembership = "issue_membership"
)

// UnlabeledCategory collects work-mix issues without a recognized label.
const UnlabeledCategory = "unlabeled"

// SprintRow identifies the sprint a per-sprint figure belongs to.
type SprintRow struct {
	SprintID   int64  `json:"sprint_id" yaml:"sprint_id"`
	SprintName string `json:"sprint_name" yaml:"sprint_name"`
	BoardID    int64  `json:"board_id" yaml:"board_id"`
	BoardName  string `json:"board_name" yaml:"board_name"`
	Project    string `json:"project" yaml:"project"`
	Source     string `json:"source" yaml:"source"`
}

type PredictabilitySprint struct {
	SprintRow      `yaml:",inline"`
	Committed      int     `json:"committed" yaml:"committed"`
	Completed      int     `json:"completed" yaml:"completed"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
}

// SprintPredictability is the completed/committed ratio over recent closed sprints.
type SprintPredictability struct {
	OverallAverage float64                `json:"overall_average" yaml:"overall_average"`
	Sprints        []PredictabilitySprint `json:"sprints" yaml:"sprints"`
}

func EmptySprintPredictability() *SprintPredictability {
	return &SprintPredictability{Sprints: []PredictabilitySprint{}}
}

type SpilloverIssue struct {
	Key         string `json:"key" yaml:"key"`
	Summary     string `json:"summary" yaml:"summary"`
	Project     string `json:"project" yaml:"project"`
	SprintCount int    `json:"sprint_count" yaml:"sprint_count"`
	Status      string `json:"status" yaml:"status"`
}

// StorySpillover is the share of stories and tasks that spanned too many sprints.
type StorySpillover struct {
	SpilloverPercentage float64          `json:"spillover_percentage" yaml:"spillover_percentage"`
	SpilloverCount      int              `json:"spillover_count" yaml:"spillover_count"`
	TotalAnalyzed       int              `json:"total_analyzed" yaml:"total_analyzed"`
	SpilloverIssues     []SpilloverIssue `json:"spillover_issues" yaml:"spillover_issues"`
}

func EmptyStorySpillover() *StorySpillover {
	return &StorySpillover{SpilloverIssues: []SpilloverIssue{}}
}

type CycleTimeEntry struct {
	IssueKey      string `json:"issue_key" yaml:"issue_key"`
	CycleTimeDays int    `json:"cycle_time_days" yaml:"cycle_time_days"`
}

// CycleTime summarizes days from first in-progress to resolution.
type CycleTime struct {
	AverageDays    float64          `json:"average_cycle_time_days" yaml:"average_cycle_time_days"`
	MedianDays     float64          `json:"median_cycle_time_days" yaml:"median_cycle_time_days"`
	MinDays        float64          `json:"min_cycle_time_days" yaml:"min_cycle_time_days"`
	MaxDays        float64          `json:"max_cycle_time_days" yaml:"max_cycle_time_days"`
	IssuesAnalyzed int              `json:"issues_analyzed" yaml:"issues_analyzed"`
	CycleTimes     []CycleTimeEntry `json:"cycle_times" yaml:"cycle_times"`
}

func EmptyCycleTime() *CycleTime {
	return &CycleTime{CycleTimes: []CycleTimeEntry{}}
}

type WorkMixEntry struct {
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
	Name       string  `json:"name" yaml:"name"`
	Group      string  `json:"group" yaml:"group"`
}

// WorkMix is the distribution of recent work over label categories.
type WorkMix struct {
	TotalIssues  int                     `json:"total_issues" yaml:"total_issues"`
	Distribution map[string]WorkMixEntry `json:"distribution" yaml:"distribution"`
}

func EmptyWorkMix() *WorkMix {
	return &WorkMix{Distribution: map[string]WorkMixEntry{}}
}

type UnplannedSprint struct {
	SprintRow           `yaml:",inline"`
	TotalIssues         int     `json:"total_issues" yaml:"total_issues"`
	UnplannedIssues     int     `json:"unplanned_issues" yaml:"unplanned_issues"`
	UnplannedPercentage float64 `json:"unplanned_percentage" yaml:"unplanned_percentage"`
}

// UnplannedWork is the share of sprint issues labelled as unplanned.
type UnplannedWork struct {
	OverallAverage float64           `json:"overall_average" yaml:"overall_average"`
	Sprints        []UnplannedSprint `json:"sprints" yaml:"sprints"`
}

func EmptyUnplannedWork() *UnplannedWork {
	return &UnplannedWork{Sprints: []UnplannedSprint{}}
}

type ReopenedIssue struct {
	Key           string    `json:"key" yaml:"key"`
	Summary       string    `json:"summary" yaml:"summary"`
	Project       string    `json:"project" yaml:"project"`
	CurrentStatus string    `json:"current_status" yaml:"current_status"`
	Updated       time.Time `json:"updated" yaml:"updated"`
}

// ReopenedStories relates regressions from done to completions.
type ReopenedStories struct {
	ReopenedPercentage float64 `json:"reopened_percentage" yaml:"reopened_percentage"`
	ReopenedCount      int     `json:"reopened_count" yaml:"reopened_count"`
	TotalCompleted     int     `json:"total_completed" yaml:"total_completed"`
	// IssuesWithoutHistory were in scope but have no status history, so
	// whether they were reopened is unknown.
	IssuesWithoutHistory int             `json:"issues_without_history" yaml:"issues_without_history"`
	ReopenedIssues       []ReopenedIssue `json:"reopened_issues" yaml:"reopened_issues"`
}

func EmptyReopenedStories() *ReopenedStories {
	return &ReopenedStories{ReopenedIssues: []ReopenedIssue{}}
}

// Records holds one record per KPI. A nil field means the KPI is disabled.
type Records struct {
	SprintPredictability *SprintPredictability `json:"sprint_predictability,omitempty" yaml:"sprint_predictability,omitempty"`
	StorySpillover       *StorySpillover       `json:"story_spillover,omitempty" yaml:"story_spillover,omitempty"`
	CycleTime            *CycleTime            `json:"cycle_time,omitempty" yaml:"cycle_time,omitempty"`
	WorkMix              *WorkMix              `json:"work_mix,omitempty" yaml:"work_mix,omitempty"`
	UnplannedWork        *UnplannedWork        `json:"unplanned_work,omitempty" yaml:"unplanned_work,omitempty"`
	ReopenedStories      *ReopenedStories      `json:"reopened_stories,omitempty" yaml:"reopened_stories,omitempty"`
}

// AnalysisPeriod describes the windows the document was computed over.
type AnalysisPeriod struct {
	Days               int       `json:"days" yaml:"days"`
	Custom             bool      `json:"custom" yaml:"custom"`
	Start              time.Time `json:"start" yaml:"start"`
	End                time.Time `json:"end" yaml:"end"`
	SprintLookback     int       `json:"sprint_lookback" yaml:"sprint_lookback"`
	ReopenedWindowDays int       `json:"reopened_window_days" yaml:"reopened_window_days"`
}

// Document is the complete output of one CalculateAllKPIs call.
type Document struct {
	GeneratedAt      time.Time              `json:"generated_at" yaml:"generated_at"`
	Generation       uint64                 `json:"generation" yaml:"generation"`
	Projects         []string               `json:"projects" yaml:"projects"`
	AnalysisPeriod   AnalysisPeriod         `json:"analysis_period" yaml:"analysis_period"`
	LabelsConfigured bool                   `json:"labels_configured" yaml:"labels_configured"`
	KPIs             Records                `json:"kpis" yaml:"kpis"`
	KPIsByProject    map[string]Records     `json:"kpis_by_project" yaml:"kpis_by_project"`
	DatabaseStats    models.RepositoryStats `json:"database_stats" yaml:"database_stats"`
	// Warnings maps a KPI name, optionally prefixed by "<project>/", to the
	// reason its record is a placeholder or was combined.
	Warnings map[string]string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
