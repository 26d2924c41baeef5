package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielolaszy/cadence/internal/kpi"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"JIRA_URL", "JIRA_USERNAME", "JIRA_TOKEN", "DATABASE_URL", "CADENCE_PROJECTS"} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cadence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "customfield_10020", config.Jira.SprintField)
	assert.Equal(t, 90, config.Sync.DaysBack)
	assert.True(t, config.Sync.IncludeChangelog)
	assert.Equal(t, "0 */6 * * *", config.Sync.Schedule)
	assert.Equal(t, ":8050", config.Server.Addr)
	assert.Equal(t, kpi.DefaultSettings(), config.EngineSettings())
}

func TestLoadFile(t *testing.T) {
	isolateEnv(t)

	path := writeConfig(t, `
jira:
  url: https://example.atlassian.net
  username: bot@example.com
  token: secret
projects: [PLAT, WEB]
sync:
  days_back: 30
kpis:
  analysis_periods:
    sprint_lookback: 5
  work_mix:
    category_order: configured
  reopened_stories:
    enabled: false
labels:
  global:
    enabled: true
    work_categories:
      - feature_dev
      - label: tech_debt
        name: Tech Debt
        description: Paying down debt
  spaces:
    - name: Platform
      projects: [PLAT]
      work_categories: [toil]
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.atlassian.net", config.Jira.URL)
	assert.Equal(t, []string{"PLAT", "WEB"}, config.Projects)
	assert.Equal(t, 30, config.Sync.DaysBack)
	assert.Equal(t, 100, config.Sync.PageSize, "unset keys keep their defaults")

	settings := config.EngineSettings()
	assert.Equal(t, 5, settings.SprintLookback)
	assert.Equal(t, kpi.OrderConfigured, settings.WorkMix.CategoryOrder)
	assert.False(t, settings.ReopenedStories.Enabled)
	assert.True(t, settings.CycleTime.Enabled)

	table := config.LabelTable()
	assert.Equal(t, []string{"feature_dev", "tech_debt"}, table.LabelsFor("WEB"))
	assert.Equal(t, []string{"toil"}, table.LabelsFor("PLAT"))

	c, ok := table.Lookup("tech_debt")
	require.True(t, ok)
	assert.Equal(t, "Tech Debt", c.Name)
	assert.Equal(t, "Paying down debt", c.Description)
}

func TestLoadEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("JIRA_URL", "https://legacy.example.com")
	t.Setenv("CADENCE_DATABASE_URL", "postgres://localhost/cadence")
	t.Setenv("CADENCE_PROJECTS", "A,B")
	t.Setenv("CADENCE_KPIS_STORY_SPILLOVER_MAX_SPRINTS", "4")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://legacy.example.com", config.Jira.URL)
	assert.Equal(t, "postgres://localhost/cadence", config.Database.URL)
	assert.Equal(t, []string{"A", "B"}, config.Projects)
	assert.Equal(t, 4, config.EngineSettings().StorySpillover.MaxSprints)
}

func TestLoadErrors(t *testing.T) {
	isolateEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "kpis:\n  work_mix:\n    category_order: random\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, "kpis:\n  analysis_periods:\n    sprint_lookback: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLabelTableLegacyList(t *testing.T) {
	config := &Config{Labels: LabelsConfig{
		Global:         GlobalLabels{Enabled: true},
		WorkCategories: []CategoryConfig{{Label: "feature_dev"}, {Label: " bug_fix "}},
	}}

	assert.Equal(t, []string{"feature_dev", "bug_fix"}, config.LabelTable().LabelsFor("ANY"))
}

func TestLabelTableGlobalDisabled(t *testing.T) {
	config := &Config{Labels: LabelsConfig{
		Global: GlobalLabels{Enabled: false, WorkCategories: []CategoryConfig{{Label: "feature_dev"}}},
		Spaces: []SpaceLabels{{Name: "Web", Projects: []string{"WEB"}, WorkCategories: []CategoryConfig{{Label: "ux"}}}},
	}}

	table := config.LabelTable()
	assert.Empty(t, table.LabelsFor("OTHER"))
	assert.Equal(t, []string{"ux"}, table.LabelsFor("WEB"))
}

func TestValidateJiraConfig(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		username string
		token    string
		wantErr  bool
	}{
		{
			name:     "All fields present",
			baseURL:  "https://jira.example.com",
			username: "test-user",
			token:    "test-token",
			wantErr:  false,
		},
		{
			name:     "Token without username",
			baseURL:  "https://jira.example.com",
			username: "",
			token:    "test-token",
			wantErr:  false,
		},
		{
			name:     "Missing base URL",
			baseURL:  "",
			username: "test-user",
			token:    "test-token",
			wantErr:  true,
		},
		{
			name:     "Missing token",
			baseURL:  "https://jira.example.com",
			username: "test-user",
			token:    "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{
				Jira: JiraConfig{
					URL:      tt.baseURL,
					Username: tt.username,
					Token:    tt.token,
				},
			}

			err := ValidateJiraConfig(config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDatabaseConfig(t *testing.T) {
	assert.ErrorIs(t, ValidateDatabaseConfig(&Config{}), ErrInvalidConfig)
	assert.NoError(t, ValidateDatabaseConfig(&Config{Database: DatabaseConfig{URL: "postgres://localhost/cadence"}}))
}
