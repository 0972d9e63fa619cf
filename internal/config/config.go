// Package config provides configuration management for SprintFoundry with
// layered precedence.
//
// Configuration sources are loaded in the following order (highest precedence
// first):
//  1. CLI flags (passed via LoadWithOverrides)
//  2. Environment variables (SPRINTFOUNDRY_* prefix)
//  3. Project config (.sprintfoundry/config.yaml in the project repo)
//  4. Global config (~/.sprintfoundry/config.yaml)
//  5. Built-in defaults
//
// The orchestration engine itself never reads files; it receives a resolved
// Platform (and optional Project) value from this package via the CLI.
//
// IMPORTANT: This package may import internal/constants, internal/domain and
// internal/errors, but MUST NOT import other internal packages.
package config

import (
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// Platform is the resolved platform-level configuration for the engine.
type Platform struct {
	// LogLevel is the minimum log level ("trace" … "error").
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// LogFile, when set, receives rotating JSON logs in addition to stderr.
	LogFile string `yaml:"log_file" mapstructure:"log_file"`

	// GlobalEventDir, when set, receives a rotating copy of every run's events.
	GlobalEventDir string `yaml:"global_event_dir" mapstructure:"global_event_dir"`

	// Runtime names the default runtime provider (e.g. "claude-cli",
	// "codex-cli", "container"). Overridable per agent via the catalog.
	Runtime string `yaml:"runtime" mapstructure:"runtime"`

	// UseContainers is the legacy container toggle, honoured only when
	// Runtime is empty. Mapped from SPRINTFOUNDRY_USE_CONTAINERS.
	UseContainers bool `yaml:"use_containers" mapstructure:"use_containers"`

	// APIKeys maps runtime provider names to API keys. Local runtimes need none.
	APIKeys map[string]string `yaml:"api_keys" mapstructure:"api_keys"`

	// AgentModels maps agent ids to model selections.
	AgentModels map[string]domain.ModelConfig `yaml:"agent_models" mapstructure:"agent_models"`

	// RoleModels maps workflow roles to model selections, consulted when an
	// agent has no entry in AgentModels.
	RoleModels map[string]domain.ModelConfig `yaml:"role_models" mapstructure:"role_models"`

	// Budget is the platform default budget layer.
	Budget domain.Budget `yaml:"budget" mapstructure:"budget"`

	// StepTimeout bounds a single agent step.
	StepTimeout time.Duration `yaml:"step_timeout" mapstructure:"step_timeout"`

	// TaskTimeout is the run's wall-clock ceiling.
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`

	// HumanGateTimeout bounds how long a human gate waits for a decision.
	HumanGateTimeout time.Duration `yaml:"human_gate_timeout" mapstructure:"human_gate_timeout"`

	// SkipRegistryPreflight bypasses the npm registry probe.
	// Mapped from SPRINTFOUNDRY_SKIP_REGISTRY_PREFLIGHT.
	SkipRegistryPreflight bool `yaml:"skip_registry_preflight" mapstructure:"skip_registry_preflight"`

	// RegistryURL overrides the npm registry probed by the preflight.
	RegistryURL string `yaml:"registry_url" mapstructure:"registry_url"`

	// Guardrails are policy fragments every step request carries.
	Guardrails []string `yaml:"guardrails" mapstructure:"guardrails"`

	// PluginPaths point at runtime plugins loaded for every step.
	PluginPaths []string `yaml:"plugin_paths" mapstructure:"plugin_paths"`

	// WebhookURL, when set, receives JSON notifications for run milestones.
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`

	// Catalog is the platform default agent catalog.
	Catalog []domain.AgentDefinition `yaml:"catalog" mapstructure:"catalog"`

	// Rules are the platform policy rules evaluated by the plan validator.
	Rules []domain.Rule `yaml:"rules" mapstructure:"rules"`
}

// Project carries project-level overrides layered on top of the platform.
type Project struct {
	// ID identifies the project; recorded on every run.
	ID string `yaml:"id" mapstructure:"id"`

	// RepoURL is the repository the workspace is cloned from.
	RepoURL string `yaml:"repo_url" mapstructure:"repo_url"`

	// BaseBranch is the branch runs fork from. Empty means "main".
	BaseBranch string `yaml:"base_branch" mapstructure:"base_branch"`

	// AgentModels are project model overrides, highest precedence.
	AgentModels map[string]domain.ModelConfig `yaml:"agent_models" mapstructure:"agent_models"`

	// Budget overrides platform budget fields.
	Budget domain.Budget `yaml:"budget" mapstructure:"budget"`

	// Catalog, when non-empty, replaces the platform agent catalog.
	Catalog []domain.AgentDefinition `yaml:"catalog" mapstructure:"catalog"`

	// Rules are appended to the platform rules.
	Rules []domain.Rule `yaml:"rules" mapstructure:"rules"`
}

// ResolveModel returns the model selection for an agent following the
// precedence chain: project override → platform per-agent → platform
// per-role → the platform "developer" default.
func ResolveModel(platform *Platform, project *Project, agentID string) domain.ModelConfig {
	if project != nil {
		if m, ok := project.AgentModels[agentID]; ok {
			return m
		}
	}
	if m, ok := platform.AgentModels[agentID]; ok {
		return m
	}
	role := constants.RoleForAgent(agentID)
	if m, ok := platform.RoleModels[string(role)]; ok {
		return m
	}
	if m, ok := platform.AgentModels[string(constants.RoleDeveloper)]; ok {
		return m
	}
	return domain.ModelConfig{}
}

// ResolveRuntime returns the runtime provider for an agent: the catalog
// entry's runtime, the platform runtime, then the legacy container toggle.
func ResolveRuntime(platform *Platform, catalog []domain.AgentDefinition, agentID string) string {
	for i := range catalog {
		if catalog[i].ID == agentID && catalog[i].Runtime != "" {
			return catalog[i].Runtime
		}
	}
	if platform.Runtime != "" {
		return platform.Runtime
	}
	if platform.UseContainers {
		return "container"
	}
	return "claude-cli"
}

// ResolveBudget merges the platform budget, project overrides, and an
// optional set_budget rule override, in that order.
func ResolveBudget(platform *Platform, project *Project, ruleOverride *domain.Budget) domain.Budget {
	budget := platform.Budget
	if project != nil {
		budget = budget.Merge(project.Budget)
	}
	if ruleOverride != nil {
		budget = budget.Merge(*ruleOverride)
	}
	return budget
}

// EffectiveCatalog returns the project catalog when set, else the platform's.
func EffectiveCatalog(platform *Platform, project *Project) []domain.AgentDefinition {
	if project != nil && len(project.Catalog) > 0 {
		return project.Catalog
	}
	return platform.Catalog
}

// EffectiveRules returns the platform rules followed by project rules.
func EffectiveRules(platform *Platform, project *Project) []domain.Rule {
	if project == nil || len(project.Rules) == 0 {
		return platform.Rules
	}
	rules := make([]domain.Rule, 0, len(platform.Rules)+len(project.Rules))
	rules = append(rules, platform.Rules...)
	rules = append(rules, project.Rules...)
	return rules
}
