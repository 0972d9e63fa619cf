package constants

import "fmt"

// Workspace layout file and directory names. The orchestration engine reads
// and writes these under the per-run workspace directory; agent runtimes and
// external observers rely on the same names.
const (
	// StateDir is the engine-owned directory inside a workspace.
	StateDir = ".sprintfoundry"

	// EventLogFileName is the per-run JSON-lines event log at the workspace root.
	EventLogFileName = ".events.jsonl"

	// SessionsFileName is the runtime session store file inside StateDir.
	SessionsFileName = "sessions.json"

	// RunFileName is the run registry snapshot file inside StateDir.
	RunFileName = "run.json"

	// ReviewsDir holds human-gate rendezvous files inside StateDir.
	ReviewsDir = "reviews"

	// StepResultsDir holds per-attempt agent result dumps inside StateDir.
	StepResultsDir = "step-results"

	// ReviewPendingSuffix is the filename suffix for pending review files.
	ReviewPendingSuffix = ".pending.json"

	// ReviewDecisionSuffix is the filename suffix for review decision files.
	ReviewDecisionSuffix = ".decision.json"

	// AgentProfileFileName is the workspace copy of the agent system profile.
	AgentProfileFileName = ".agent-profile.md"

	// AgentTaskFilePrefix prefixes per-attempt task prompt files.
	AgentTaskFilePrefix = ".agent-task.step-"

	// AgentContextDir holds per-dependency JSON dumps of previous step results.
	AgentContextDir = ".agent-context"

	// AgentResultFilePrefix prefixes per-attempt agent result files.
	AgentResultFilePrefix = ".agent-result.step-"

	// ArtifactsDir is the inter-agent artifact directory at the workspace root.
	ArtifactsDir = "artifacts"

	// HandoffDir holds inter-agent handoff notes inside ArtifactsDir.
	HandoffDir = "handoff"
)

// AgentTaskFile returns the task prompt filename for one step attempt.
// Scratch files are scoped per step and attempt because parallel-group
// members run concurrently in one workspace; only the session store and the
// event log may be shared write targets.
func AgentTaskFile(step, attempt int) string {
	return fmt.Sprintf("%s%d.attempt-%d.md", AgentTaskFilePrefix, step, attempt)
}

// AgentResultFile returns the agent result filename for one step attempt.
func AgentResultFile(step, attempt int) string {
	return fmt.Sprintf("%s%d.attempt-%d.json", AgentResultFilePrefix, step, attempt)
}

// Environment variable names the engine recognises.
const (
	// EnvNpmRegistry configures the npm registry for the preflight check.
	EnvNpmRegistry = "NPM_CONFIG_REGISTRY"

	// EnvNpmRegistryLower is the lowercase npm variant of EnvNpmRegistry.
	EnvNpmRegistryLower = "npm_config_registry"

	// EnvSkipRegistryPreflight bypasses the registry preflight entirely.
	EnvSkipRegistryPreflight = "SPRINTFOUNDRY_SKIP_REGISTRY_PREFLIGHT"

	// EnvUseContainers is the legacy container-mode toggle, honoured only
	// when no runtime override is configured.
	EnvUseContainers = "SPRINTFOUNDRY_USE_CONTAINERS"
)

// SessionIDLocalPrefixes list runtime id prefixes that identify synthetic
// (non-resumable) runtime ids. Ids with these prefixes are never recorded
// in the session store.
//
//nolint:gochecknoglobals // Read-only lookup table
var SessionIDLocalPrefixes = []string{"local-", "sprintfoundry-"}
