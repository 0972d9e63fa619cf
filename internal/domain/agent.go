package domain

import "github.com/sprintfoundry/sprintfoundry/internal/constants"

// AgentDefinition describes one agent available to the planner and the
// rule engine. Projects ship a catalog of these (YAML); the platform carries
// a built-in default catalog.
type AgentDefinition struct {
	// ID is the stable agent identifier (e.g. "developer", "go-qa").
	ID string `json:"id" yaml:"id"`

	// Role is the agent's workflow role. Empty means "derive from ID".
	Role constants.AgentRole `json:"role,omitempty" yaml:"role"`

	// Description tells the planner what the agent is good at.
	Description string `json:"description,omitempty" yaml:"description"`

	// DefaultModel is the model used when neither the step nor the project
	// overrides specify one.
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model"`

	// Runtime names the runtime provider for the agent (e.g. "claude-cli",
	// "codex-cli", "container"). Empty means the platform default.
	Runtime string `json:"runtime,omitempty" yaml:"runtime"`
}

// EffectiveRole returns the declared role, falling back to a role derived
// from the agent id.
func (d *AgentDefinition) EffectiveRole() constants.AgentRole {
	if d.Role != "" {
		return d.Role
	}
	return constants.RoleForAgent(d.ID)
}

// ModelConfig is the fully resolved model selection handed to a runtime for
// one step.
type ModelConfig struct {
	// Model is the model identifier.
	Model string `json:"model"`

	// Provider names the runtime provider the model runs on.
	Provider string `json:"provider,omitempty"`

	// CLIFlags are extra flags for CLI-based runtimes.
	CLIFlags []string `json:"cli_flags,omitempty"`

	// ContainerCPUs is the CPU limit for container runtimes. Zero means default.
	ContainerCPUs float64 `json:"container_cpus,omitempty"`

	// ContainerMemoryMB is the memory limit for container runtimes. Zero means default.
	ContainerMemoryMB int `json:"container_memory_mb,omitempty"`
}
