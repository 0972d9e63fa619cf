package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

func writeYAML(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFrom_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	platform, err := LoadFrom("")

	require.NoError(t, err)
	assert.Equal(t, "info", platform.LogLevel)
	assert.Equal(t, constants.DefaultStepTimeout, platform.StepTimeout)
	assert.Len(t, platform.Catalog, 8)
	assert.Len(t, platform.Rules, 3)
}

func TestLoadFrom_ExplicitMissingPathFails(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, sferrors.ErrConfigInvalid)
}

func TestLoadFrom_FileOverlaysDefaults(t *testing.T) {
	path := writeYAML(t, "config.yaml", `
log_level: debug
step_timeout: 5m
webhook_url: https://hooks.example.com/sprintfoundry
budget:
  per_task_total_tokens: 123456
`)

	platform, err := LoadFrom(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", platform.LogLevel)
	assert.Equal(t, 5*time.Minute, platform.StepTimeout)
	assert.Equal(t, "https://hooks.example.com/sprintfoundry", platform.WebhookURL)
	assert.Equal(t, 123456, platform.Budget.PerTaskTotalTokens)
	// Unset fields keep their defaults.
	assert.Equal(t, constants.DefaultTaskTimeout, platform.TaskTimeout)
	assert.Len(t, platform.Catalog, 8)
}

func TestLoadFrom_MalformedYAMLFails(t *testing.T) {
	path := writeYAML(t, "config.yaml", "log_level: [unclosed")
	_, err := LoadFrom(path)
	require.ErrorIs(t, err, sferrors.ErrConfigInvalid)
}

func TestLoadFrom_EnvironmentOverridesFile(t *testing.T) {
	path := writeYAML(t, "config.yaml", "log_level: debug")
	t.Setenv("SPRINTFOUNDRY_LOG_LEVEL", "warn")

	platform, err := LoadFrom(path)

	require.NoError(t, err)
	assert.Equal(t, "warn", platform.LogLevel)
}

func TestLoadFrom_LegacyEnvToggles(t *testing.T) {
	path := writeYAML(t, "config.yaml", "log_level: info")
	t.Setenv(constants.EnvSkipRegistryPreflight, "true")
	t.Setenv(constants.EnvUseContainers, "true")

	platform, err := LoadFrom(path)

	require.NoError(t, err)
	assert.True(t, platform.SkipRegistryPreflight)
	assert.True(t, platform.UseContainers)
}

func TestLoadProject(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeYAML(t, "project.yaml", `
id: widget
repo_url: git@github.com:acme/widget.git
base_branch: develop
agent_models:
  developer:
    model: claude-opus-4-1
    provider: claude-cli
`)
		project, err := LoadProject(path)
		require.NoError(t, err)
		assert.Equal(t, "widget", project.ID)
		assert.Equal(t, "git@github.com:acme/widget.git", project.RepoURL)
		assert.Equal(t, "develop", project.BaseBranch)
		assert.Equal(t, "claude-opus-4-1", project.AgentModels["developer"].Model)
	})

	t.Run("missing id", func(t *testing.T) {
		path := writeYAML(t, "project.yaml", "repo_url: git@github.com:acme/widget.git")
		_, err := LoadProject(path)
		require.ErrorIs(t, err, sferrors.ErrConfigInvalid)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadProject(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}

func TestLoadCatalog(t *testing.T) {
	path := writeYAML(t, "catalog.yaml", `
- id: go-developer
  role: developer
  description: Go specialist
- id: qa
`)

	catalog, err := LoadCatalog(path)

	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "go-developer", catalog[0].ID)
	assert.Equal(t, constants.RoleDeveloper, catalog[0].EffectiveRole())
	assert.Equal(t, constants.RoleQA, catalog[1].EffectiveRole())
}

func TestLoadCatalog_Missing(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, sferrors.ErrMissingAgentCatalog)
}

func TestLoadRules(t *testing.T) {
	path := writeYAML(t, "rules.yaml", `
- name: security-label
  condition:
    type: label_contains
    value: security
  action:
    type: require_role
    role: security
  enforced: true
`)

	rules, err := LoadRules(path)

	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ConditionLabelContains, rules[0].Condition.Type)
	assert.Equal(t, constants.RoleSecurity, rules[0].Action.Role)
	assert.True(t, rules[0].Enforced)
}

func TestResolveModel_PrecedenceChain(t *testing.T) {
	platform := &Platform{
		AgentModels: map[string]domain.ModelConfig{
			"developer": {Model: "platform-dev"},
			"qa":        {Model: "platform-qa"},
		},
		RoleModels: map[string]domain.ModelConfig{
			"devops": {Model: "platform-devops-role"},
		},
	}
	project := &Project{
		AgentModels: map[string]domain.ModelConfig{
			"qa": {Model: "project-qa"},
		},
	}

	tests := []struct {
		name    string
		project *Project
		agentID string
		want    string
	}{
		{name: "project override wins", project: project, agentID: "qa", want: "project-qa"},
		{name: "platform per-agent", project: project, agentID: "developer", want: "platform-dev"},
		{name: "platform per-role", project: nil, agentID: "devops", want: "platform-devops-role"},
		{name: "developer fallback", project: nil, agentID: "planner", want: "platform-dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveModel(platform, tt.project, tt.agentID)
			assert.Equal(t, tt.want, got.Model)
		})
	}
}

func TestResolveRuntime(t *testing.T) {
	catalog := []domain.AgentDefinition{
		{ID: "developer", Runtime: "codex-cli"},
		{ID: "qa"},
	}

	tests := []struct {
		name     string
		platform *Platform
		agentID  string
		want     string
	}{
		{name: "catalog entry wins", platform: &Platform{Runtime: "container"}, agentID: "developer", want: "codex-cli"},
		{name: "platform runtime", platform: &Platform{Runtime: "container"}, agentID: "qa", want: "container"},
		{name: "legacy container toggle", platform: &Platform{UseContainers: true}, agentID: "qa", want: "container"},
		{name: "local default", platform: &Platform{}, agentID: "qa", want: "claude-cli"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRuntime(tt.platform, catalog, tt.agentID))
		})
	}
}

func TestResolveBudget_LayersMerge(t *testing.T) {
	platform := &Platform{Budget: domain.Budget{
		PerAgentTokens:     100_000,
		PerTaskTotalTokens: 500_000,
		MaxReworkCycles:    2,
	}}
	project := &Project{Budget: domain.Budget{PerTaskTotalTokens: 200_000}}
	ruleOverride := &domain.Budget{MaxReworkCycles: 1}

	budget := ResolveBudget(platform, project, ruleOverride)

	assert.Equal(t, 100_000, budget.PerAgentTokens)
	assert.Equal(t, 200_000, budget.PerTaskTotalTokens)
	assert.Equal(t, 1, budget.MaxReworkCycles)
}

func TestEffectiveCatalogAndRules(t *testing.T) {
	platform := DefaultPlatform()
	project := &Project{
		Catalog: []domain.AgentDefinition{{ID: "go-developer", Role: constants.RoleDeveloper}},
		Rules: []domain.Rule{{
			Name:      "extra",
			Condition: domain.RuleCondition{Type: domain.ConditionAlways},
			Action:    domain.RuleAction{Type: domain.ActionRequireRole, Role: constants.RoleQA},
		}},
	}

	assert.Len(t, EffectiveCatalog(platform, project), 1)
	assert.Len(t, EffectiveCatalog(platform, nil), 8)

	rules := EffectiveRules(platform, project)
	require.Len(t, rules, 4)
	assert.Equal(t, "extra", rules[3].Name)
	assert.Len(t, EffectiveRules(platform, nil), 3)
}
