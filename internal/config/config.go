// Package config provides centralized configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/danielolaszy/cadence/internal/kpi"
	"github.com/danielolaszy/cadence/internal/labels"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration parameters for the application.
type Config struct {
	Jira     JiraConfig     `mapstructure:"jira"`
	Database DatabaseConfig `mapstructure:"database"`
	Projects []string       `mapstructure:"projects"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Server   ServerConfig   `mapstructure:"server"`
	KPIs     KPIConfig      `mapstructure:"kpis"`
	Labels   LabelsConfig   `mapstructure:"labels"`
}

// JiraConfig holds JIRA specific configuration.
type JiraConfig struct {
	URL              string `mapstructure:"url"`
	Username         string `mapstructure:"username"`
	Token            string `mapstructure:"token"`
	StoryPointsField string `mapstructure:"story_points_field"`
	SprintField      string `mapstructure:"sprint_field"`
}

// DatabaseConfig holds the PostgreSQL connection string.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// SyncConfig controls ingestion.
type SyncConfig struct {
	DaysBack         int    `mapstructure:"days_back"`
	IncludeChangelog bool   `mapstructure:"include_changelog"`
	SprintReports    bool   `mapstructure:"sprint_reports"`
	Schedule         string `mapstructure:"schedule"`
	PageSize         int    `mapstructure:"page_size"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type KPIConfig struct {
	AnalysisPeriods    AnalysisPeriods `mapstructure:"analysis_periods"`
	TerminalStatuses   []string        `mapstructure:"terminal_statuses"`
	InProgressStatuses []string        `mapstructure:"in_progress_statuses"`

	SprintPredictability Toggle          `mapstructure:"sprint_predictability"`
	StorySpillover       SpilloverConfig `mapstructure:"story_spillover"`
	CycleTime            CycleTimeConfig `mapstructure:"cycle_time"`
	WorkMix              WorkMixConfig   `mapstructure:"work_mix"`
	UnplannedWork        UnplannedConfig `mapstructure:"unplanned_work"`
	ReopenedStories      ReopenedConfig  `mapstructure:"reopened_stories"`
}

type AnalysisPeriods struct {
	DefaultDays    int `mapstructure:"default_days"`
	SprintLookback int `mapstructure:"sprint_lookback"`
}

type Toggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type SpilloverConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxSprints int  `mapstructure:"max_sprints"`
	ListLimit  int  `mapstructure:"list_limit"`
}

type CycleTimeConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	ListLimit int  `mapstructure:"list_limit"`
}

type WorkMixConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CategoryOrder string `mapstructure:"category_order"`
}

type UnplannedConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Labels              []string `mapstructure:"labels"`
	ExcludeEmptySprints bool     `mapstructure:"exclude_empty_sprints"`
}

type ReopenedConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	WindowDays int  `mapstructure:"window_days"`
	ListLimit  int  `mapstructure:"list_limit"`
}

// LabelsConfig is the work-category configuration. WorkCategories is the
// older flat list and only applies when Global and Spaces are both empty.
type LabelsConfig struct {
	Global         GlobalLabels     `mapstructure:"global"`
	Spaces         []SpaceLabels    `mapstructure:"spaces"`
	WorkCategories []CategoryConfig `mapstructure:"work_categories"`
}

type GlobalLabels struct {
	Enabled        bool             `mapstructure:"enabled"`
	WorkCategories []CategoryConfig `mapstructure:"work_categories"`
}

type SpaceLabels struct {
	Name           string           `mapstructure:"name"`
	Projects       []string         `mapstructure:"projects"`
	WorkCategories []CategoryConfig `mapstructure:"work_categories"`
}

// CategoryConfig is one work category. In YAML it may be written as a
// plain label string or as a mapping.
type CategoryConfig struct {
	Label       string `mapstructure:"label"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

func setDefaults(v *viper.Viper) {
	d := kpi.DefaultSettings()

	v.SetDefault("jira.url", "")
	v.SetDefault("jira.username", "")
	v.SetDefault("jira.token", "")
	v.SetDefault("jira.story_points_field", "customfield_10016")
	v.SetDefault("jira.sprint_field", "customfield_10020")
	v.SetDefault("database.url", "")
	v.SetDefault("projects", []string{})

	v.SetDefault("sync.days_back", 90)
	v.SetDefault("sync.include_changelog", true)
	v.SetDefault("sync.sprint_reports", true)
	v.SetDefault("sync.schedule", "0 */6 * * *")
	v.SetDefault("sync.page_size", 100)

	v.SetDefault("server.addr", ":8050")

	v.SetDefault("kpis.analysis_periods.default_days", d.DefaultDays)
	v.SetDefault("kpis.analysis_periods.sprint_lookback", d.SprintLookback)
	v.SetDefault("kpis.terminal_statuses", d.TerminalStatuses)
	v.SetDefault("kpis.in_progress_statuses", d.InProgressStatuses)
	v.SetDefault("kpis.sprint_predictability.enabled", true)
	v.SetDefault("kpis.story_spillover.enabled", true)
	v.SetDefault("kpis.story_spillover.max_sprints", d.StorySpillover.MaxSprints)
	v.SetDefault("kpis.story_spillover.list_limit", d.StorySpillover.ListLimit)
	v.SetDefault("kpis.cycle_time.enabled", true)
	v.SetDefault("kpis.cycle_time.list_limit", d.CycleTime.ListLimit)
	v.SetDefault("kpis.work_mix.enabled", true)
	v.SetDefault("kpis.work_mix.category_order", string(d.WorkMix.CategoryOrder))
	v.SetDefault("kpis.unplanned_work.enabled", true)
	v.SetDefault("kpis.unplanned_work.labels", d.UnplannedWork.Labels)
	v.SetDefault("kpis.unplanned_work.exclude_empty_sprints", false)
	v.SetDefault("kpis.reopened_stories.enabled", true)
	v.SetDefault("kpis.reopened_stories.window_days", d.ReopenedStories.WindowDays)
	v.SetDefault("kpis.reopened_stories.list_limit", d.ReopenedStories.ListLimit)

	v.SetDefault("labels.global.enabled", true)
}

// Load reads configuration from the YAML file at path, or from cadence.yaml
// in the usual locations when path is empty, then applies environment
// overrides. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map the legacy environment variables
	v.BindEnv("jira.url", "CADENCE_JIRA_URL", "JIRA_URL")
	v.BindEnv("jira.username", "CADENCE_JIRA_USERNAME", "JIRA_USERNAME")
	v.BindEnv("jira.token", "CADENCE_JIRA_TOKEN", "JIRA_TOKEN")
	v.BindEnv("database.url", "CADENCE_DATABASE_URL", "DATABASE_URL")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cadence")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.cadence")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		categoryHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// categoryHook decodes a bare label string into a CategoryConfig.
func categoryHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(CategoryConfig{}) {
			return data, nil
		}
		return CategoryConfig{Label: data.(string)}, nil
	}
}

// Validate checks the KPI settings.
func (c *Config) Validate() error {
	if err := c.EngineSettings().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("%w: sync.page_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ValidateJiraConfig validates JIRA-specific configuration. The username may
// be empty, in which case the token is sent as a bearer token.
func ValidateJiraConfig(config *Config) error {
	var missingVars []string

	if config.Jira.URL == "" {
		missingVars = append(missingVars, "JIRA_URL")
	}
	if config.Jira.Token == "" {
		missingVars = append(missingVars, "JIRA_TOKEN")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("%w: missing required environment variables: %v", ErrInvalidConfig, missingVars)
	}

	return nil
}

// ValidateDatabaseConfig validates the database configuration.
func ValidateDatabaseConfig(config *Config) error {
	if config.Database.URL == "" {
		return fmt.Errorf("%w: missing required environment variables: [DATABASE_URL]", ErrInvalidConfig)
	}
	return nil
}

// EngineSettings converts the KPI section into engine settings.
func (c *Config) EngineSettings() kpi.Settings {
	k := c.KPIs
	return kpi.Settings{
		DefaultDays:          k.AnalysisPeriods.DefaultDays,
		SprintLookback:       k.AnalysisPeriods.SprintLookback,
		TerminalStatuses:     k.TerminalStatuses,
		InProgressStatuses:   k.InProgressStatuses,
		SprintPredictability: kpi.PredictabilitySettings{Enabled: k.SprintPredictability.Enabled},
		StorySpillover: kpi.SpilloverSettings{
			Enabled:    k.StorySpillover.Enabled,
			MaxSprints: k.StorySpillover.MaxSprints,
			ListLimit:  k.StorySpillover.ListLimit,
		},
		CycleTime: kpi.CycleTimeSettings{
			Enabled:   k.CycleTime.Enabled,
			ListLimit: k.CycleTime.ListLimit,
		},
		WorkMix: kpi.WorkMixSettings{
			Enabled:       k.WorkMix.Enabled,
			CategoryOrder: kpi.CategoryOrder(strings.ToLower(k.WorkMix.CategoryOrder)),
		},
		UnplannedWork: kpi.UnplannedSettings{
			Enabled:             k.UnplannedWork.Enabled,
			Labels:              k.UnplannedWork.Labels,
			ExcludeEmptySprints: k.UnplannedWork.ExcludeEmptySprints,
		},
		ReopenedStories: kpi.ReopenedSettings{
			Enabled:    k.ReopenedStories.Enabled,
			WindowDays: k.ReopenedStories.WindowDays,
			ListLimit:  k.ReopenedStories.ListLimit,
		},
	}
}

// LabelTable resolves the label configuration into an immutable table.
func (c *Config) LabelTable() *labels.Table {
	l := c.Labels

	var global []labels.Category
	if l.Global.Enabled {
		global = toCategories(l.Global.WorkCategories)
	}
	if len(l.Global.WorkCategories) == 0 && len(l.Spaces) == 0 {
		global = toCategories(l.WorkCategories)
	}

	spaces := make([]labels.Space, 0, len(l.Spaces))
	for _, s := range l.Spaces {
		spaces = append(spaces, labels.Space{
			Name:       s.Name,
			Projects:   s.Projects,
			Categories: toCategories(s.WorkCategories),
		})
	}

	return labels.NewTable(global, spaces)
}

func toCategories(in []CategoryConfig) []labels.Category {
	out := make([]labels.Category, 0, len(in))
	for _, c := range in {
		out = append(out, labels.Category{
			Label:       strings.TrimSpace(c.Label),
			Name:        c.Name,
			Description: c.Description,
		})
	}
	return out
}
