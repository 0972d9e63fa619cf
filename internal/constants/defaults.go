package constants

import "time"

// Default timing and budget values. These are the platform defaults layer;
// project overrides and set_budget rules merge on top of them.
const (
	// DefaultStepTimeout is the maximum duration for a single agent step.
	DefaultStepTimeout = 30 * time.Minute

	// DefaultTaskTimeout is the wall-clock ceiling for a whole run, enforced
	// at each step's preflight.
	DefaultTaskTimeout = 4 * time.Hour

	// DefaultHumanGateTimeout is how long a human gate waits for a decision
	// before treating it as rejected.
	DefaultHumanGateTimeout = 24 * time.Hour

	// HumanGatePollInterval is how often the filesystem rendezvous polls for
	// a decision file.
	HumanGatePollInterval = 1 * time.Second

	// RegistryPreflightTimeout bounds the npm registry reachability probe.
	RegistryPreflightTimeout = 5 * time.Second

	// DefaultRegistryURL is probed when no registry is configured.
	DefaultRegistryURL = "https://registry.npmjs.org/"

	// DefaultPerAgentTokens is the default token budget for one agent step.
	DefaultPerAgentTokens = 200_000

	// DefaultPerTaskTotalTokens is the default token budget for a whole run.
	DefaultPerTaskTotalTokens = 2_000_000

	// DefaultMaxReworkCycles bounds rework retries per step.
	DefaultMaxReworkCycles = 3

	// ReworkStepNumberBase is added to a failed step's number when the rework
	// planner numbers its steps, keeping them clear of the initial plan's 1..N.
	ReworkStepNumberBase = 900

	// RunSchemaVersion is the schema version written into run.json snapshots.
	RunSchemaVersion = 1

	// SessionStoreVersion is the schema version of sessions.json.
	SessionStoreVersion = 1
)

// TicketSource identifies where a ticket came from.
type TicketSource string

// Ticket source constants.
const (
	// SourceLinear identifies tickets fetched from Linear.
	SourceLinear TicketSource = "linear"

	// SourceGitHub identifies tickets fetched from GitHub issues.
	SourceGitHub TicketSource = "github"

	// SourceJira identifies tickets fetched from Jira.
	SourceJira TicketSource = "jira"

	// SourcePrompt identifies tickets synthesised from a free-form prompt.
	SourcePrompt TicketSource = "prompt"
)

// String returns the string representation of the TicketSource.
func (s TicketSource) String() string {
	return string(s)
}

// Priority is a ticket priority level.
type Priority string

// Ticket priority constants, highest first.
const (
	// PriorityP0 is the highest priority (incident/urgent).
	PriorityP0 Priority = "p0"

	// PriorityP1 is high priority.
	PriorityP1 Priority = "p1"

	// PriorityP2 is normal priority.
	PriorityP2 Priority = "p2"

	// PriorityP3 is low priority.
	PriorityP3 Priority = "p3"
)

// Classification categorizes what kind of change a plan implements.
type Classification string

// Plan classification constants.
const (
	ClassificationNewFeature      Classification = "new_feature"
	ClassificationBugFix          Classification = "bug_fix"
	ClassificationUIChange        Classification = "ui_change"
	ClassificationRefactor        Classification = "refactor"
	ClassificationInfrastructure  Classification = "infrastructure"
	ClassificationSecurityFix     Classification = "security_fix"
	ClassificationDocumentation   Classification = "documentation"
	ClassificationProductQuestion Classification = "product_question"
)

// Complexity is a planner estimate of step difficulty.
type Complexity string

// Step complexity constants.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)
