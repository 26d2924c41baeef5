package kpi

import (
	"fmt"

	"github.com/danielolaszy/cadence/internal/lifecycle"
)

// CategoryOrder selects how work mix picks a category for an issue carrying
// several recognized labels.
type CategoryOrder string

const (
	// OrderStored picks the first label in the order the tracker stored them.
	OrderStored CategoryOrder = "stored"
	// OrderConfigured picks the first configured category the issue carries.
	OrderConfigured CategoryOrder = "configured"
)

// Settings are the tunables of the engine. The zero value is not useful;
// start from DefaultSettings.
type Settings struct {
	DefaultDays    int
	SprintLookback int

	TerminalStatuses   []string
	InProgressStatuses []string

	SprintPredictability PredictabilitySettings
	StorySpillover       SpilloverSettings
	CycleTime            CycleTimeSettings
	WorkMix              WorkMixSettings
	UnplannedWork        UnplannedSettings
	ReopenedStories      ReopenedSettings
}

type PredictabilitySettings struct {
	Enabled bool
}

type SpilloverSettings struct {
	Enabled    bool
	MaxSprints int
	ListLimit  int
}

type CycleTimeSettings struct {
	Enabled   bool
	ListLimit int
}

type WorkMixSettings struct {
	Enabled       bool
	CategoryOrder CategoryOrder
}

type UnplannedSettings struct {
	Enabled             bool
	Labels              []string
	ExcludeEmptySprints bool
}

type ReopenedSettings struct {
	Enabled    bool
	WindowDays int
	ListLimit  int
}

// DefaultUnplannedLabels mark an issue as unplanned work.
var DefaultUnplannedLabels = []string{"unplanned", "interrupt", "urgent", "incident"}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		DefaultDays:          365,
		SprintLookback:       3,
		TerminalStatuses:     append([]string(nil), lifecycle.DefaultTerminalStatuses...),
		InProgressStatuses:   append([]string(nil), lifecycle.DefaultInProgressMarkers...),
		SprintPredictability: PredictabilitySettings{Enabled: true},
		StorySpillover:       SpilloverSettings{Enabled: true, MaxSprints: 2, ListLimit: 50},
		CycleTime:            CycleTimeSettings{Enabled: true, ListLimit: 100},
		WorkMix:              WorkMixSettings{Enabled: true, CategoryOrder: OrderStored},
		UnplannedWork:        UnplannedSettings{Enabled: true, Labels: append([]string(nil), DefaultUnplannedLabels...)},
		ReopenedStories:      ReopenedSettings{Enabled: true, WindowDays: 365, ListLimit: 50},
	}
}

// Validate reports the first setting that cannot be used.
func (s Settings) Validate() error {
	switch {
	case s.DefaultDays <= 0:
		return fmt.Errorf("default_days must be positive, got %d", s.DefaultDays)
	case s.SprintLookback <= 0:
		return fmt.Errorf("sprint_lookback must be positive, got %d", s.SprintLookback)
	case s.StorySpillover.MaxSprints < 0:
		return fmt.Errorf("story_spillover.max_sprints must not be negative, got %d", s.StorySpillover.MaxSprints)
	case s.ReopenedStories.WindowDays <= 0:
		return fmt.Errorf("reopened_stories.window_days must be positive, got %d", s.ReopenedStories.WindowDays)
	case s.StorySpillover.ListLimit < 0, s.CycleTime.ListLimit < 0, s.ReopenedStories.ListLimit < 0:
		return fmt.Errorf("list limits must not be negative")
	}

	switch s.WorkMix.CategoryOrder {
	case OrderStored, OrderConfigured:
	default:
		return fmt.Errorf("work_mix.category_order must be %q or %q, got %q", OrderStored, OrderConfigured, s.WorkMix.CategoryOrder)
	}
	return nil
}
