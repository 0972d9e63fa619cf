// Package errors provides centralized error handling for SprintFoundry.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the orchestration engine. All error types can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
// All errors use lowercase descriptions per Go conventions.
var (
	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrInvalidTransition indicates an attempt to make an invalid run state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrMissingAPIKey indicates that a non-local runtime was selected but no
	// API key is configured for it.
	ErrMissingAPIKey = errors.New("missing API key for runtime")

	// ErrMissingAgentCatalog indicates that the project's agent catalog could
	// not be resolved.
	ErrMissingAgentCatalog = errors.New("agent catalog not found")

	// ErrPlanInvalid indicates that a plan failed structural validation.
	ErrPlanInvalid = errors.New("plan validation failed")

	// ErrDuplicateStepNumber indicates a plan contains the same step number twice.
	ErrDuplicateStepNumber = errors.New("duplicate step number")

	// ErrUnknownDependency indicates a depends_on entry references a step that
	// does not exist in the plan.
	ErrUnknownDependency = errors.New("dependency references unknown step")

	// ErrDependencyCycle indicates the plan's depends_on graph contains a cycle.
	ErrDependencyCycle = errors.New("dependency cycle detected")

	// ErrPlannerOutput indicates the planner returned malformed output.
	ErrPlannerOutput = errors.New("malformed planner output")

	// ErrDeadlock indicates the scheduler found no executable steps while
	// uncompleted steps remain.
	ErrDeadlock = errors.New("no executable steps remaining")

	// ErrTokenBudgetExceeded indicates the run consumed its total token budget.
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")

	// ErrCostBudgetExceeded indicates the run consumed its total cost budget.
	ErrCostBudgetExceeded = errors.New("cost budget exceeded")

	// ErrTaskTimeout indicates the run exceeded its wall-clock timeout.
	ErrTaskTimeout = errors.New("task timeout exceeded")

	// ErrMaxReworkExceeded indicates a step exhausted its rework cycles.
	ErrMaxReworkExceeded = errors.New("max rework cycles exceeded")

	// ErrStepFailed indicates an agent step ended in a failed or blocked state.
	ErrStepFailed = errors.New("step failed")

	// ErrStepBlocked indicates an agent reported it cannot proceed.
	ErrStepBlocked = errors.New("step blocked")

	// ErrCheckpointFailed indicates the git checkpoint after a completed step
	// could not be persisted. This is a hard failure for the run.
	ErrCheckpointFailed = errors.New("step checkpoint commit failed")

	// ErrReviewRejected indicates a human reviewer rejected the gated work.
	ErrReviewRejected = errors.New("human review rejected")

	// ErrReviewTimeout indicates no review decision arrived before the gate timeout.
	ErrReviewTimeout = errors.New("human review timed out")

	// ErrRegistryUnreachable indicates the npm registry preflight failed.
	ErrRegistryUnreachable = errors.New("package registry unreachable")

	// ErrGitOperation indicates that a git command (clone, branch, commit, push)
	// failed during execution.
	ErrGitOperation = errors.New("git operation failed")

	// ErrPRCreationFailed indicates that pull request creation failed.
	ErrPRCreationFailed = errors.New("PR creation failed")

	// ErrTicketNotFound indicates the ticket provider could not resolve the ticket.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrUnknownTicketSource indicates an unsupported ticket source was requested.
	ErrUnknownTicketSource = errors.New("unknown ticket source")

	// ErrRunNotFound indicates the requested run does not exist in the registry.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunExists indicates an attempt to create a run that already exists.
	ErrRunExists = errors.New("run already exists")

	// ErrEventStoreClosed indicates a store was attempted after Close.
	ErrEventStoreClosed = errors.New("event store closed")

	// ErrReviewNotFound indicates the requested review rendezvous does not exist.
	ErrReviewNotFound = errors.New("review not found")

	// ErrLockTimeout indicates a file lock could not be acquired within the timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrPathTraversal indicates an attempt to use path traversal in a filename.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrSessionStoreCorrupted indicates the sessions file could not be parsed.
	ErrSessionStoreCorrupted = errors.New("session store corrupted")

	// ErrUnknownRuleCondition indicates a rule uses a condition outside the closed set.
	ErrUnknownRuleCondition = errors.New("unknown rule condition")

	// ErrUnknownRuleAction indicates a rule uses an action outside the closed set.
	ErrUnknownRuleAction = errors.New("unknown rule action")

	// ErrUnknownAgentResultStatus indicates a runtime returned a status outside
	// the AgentResult contract.
	ErrUnknownAgentResultStatus = errors.New("unknown agent result status")

	// ErrWorkspaceExists indicates an attempt to create a workspace that already exists.
	ErrWorkspaceExists = errors.New("workspace already exists")

	// ErrWorkspaceNotFound indicates the requested workspace does not exist.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrNonInteractiveMode indicates that an operation requiring a terminal
	// was attempted without one and without the corresponding flags.
	ErrNonInteractiveMode = errors.New("interactive terminal required")

	// ErrConfigInvalid indicates an invalid platform configuration value.
	ErrConfigInvalid = errors.New("invalid configuration")
)
