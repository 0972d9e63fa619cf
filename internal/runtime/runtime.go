// Package runtime defines the invocation contracts between the orchestration
// engine and external agent runtimes.
//
// Concrete runtimes (CLI subprocess, container) live outside the engine; the
// scheduler only depends on the interfaces here. The request/response shapes
// carry everything a runtime needs to run one step inside a workspace and
// everything the engine needs back for budgets, session resume, and telemetry.
package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// Resume reasons the scheduler passes to runtimes when retrying.
const (
	// ResumeReasonReworkPlan marks execution of a planner-produced rework step.
	ResumeReasonReworkPlan = "rework_plan"

	// ResumeReasonReworkRetry marks the retry of a step after its rework plan ran.
	ResumeReasonReworkRetry = "rework_retry"

	// ResumeReasonQualityGateRetry marks a retry triggered by a quality gate failure.
	ResumeReasonQualityGateRetry = "quality_gate_retry"
)

// StepRequest carries one agent step invocation.
type StepRequest struct {
	// RunID identifies the run the step belongs to.
	RunID string

	// Step is the plan step to execute.
	Step domain.PlanStep

	// Attempt is the 1-based attempt counter for the step within the run.
	Attempt int

	// WorkspacePath is the absolute per-run workspace directory.
	WorkspacePath string

	// Model is the fully resolved model selection for the step.
	Model domain.ModelConfig

	// APIKey authenticates the runtime's provider. Empty for local runtimes.
	APIKey string

	// Timeout bounds the step's execution; the runtime must honour it.
	Timeout time.Duration

	// TokenBudget is the per-agent token budget for the attempt.
	TokenBudget int

	// ResumeSessionID, when set, asks the runtime to resume that session.
	ResumeSessionID string

	// ResumeReason explains why a resume was requested
	// ("rework_retry", "rework_plan", "quality_gate_retry").
	ResumeReason string

	// Guardrails are policy fragments injected into the agent prompt.
	Guardrails []string

	// PluginPaths point at runtime plugins to load for the step.
	PluginPaths []string
}

// StepResponse is what a runtime hands back for one attempt.
//
// Resume contract: when ResumeSessionID was set, the runtime SHOULD resume
// that session. On a session-invalid error (and only that class of error) it
// MAY fall back once to a fresh session and report
// Usage.ResumeUsed/ResumeFailed/ResumeFallback accordingly. Other errors
// propagate unchanged.
type StepResponse struct {
	// Result is the agent's terminal output for the step.
	Result domain.AgentResult

	// Usage is the attempt telemetry (tokens, cost, session id, resume flags).
	Usage domain.StepUsage
}

// AgentRuntime runs one agent step inside a workspace.
type AgentRuntime interface {
	// RunStep executes the step and returns the agent result plus telemetry.
	// The runtime owns prompting, step-prefixed debug/log files in the
	// workspace, and timeout enforcement.
	RunStep(ctx context.Context, req StepRequest) (*StepResponse, error)
}

// ReworkRequest asks the planner for a minimal recovery plan after a step
// reported needs_rework.
type ReworkRequest struct {
	// Ticket is the run's ticket.
	Ticket *domain.Ticket

	// FailedStep is the step whose result triggered the rework.
	FailedStep domain.PlanStep

	// Failure is the triggering result. For merged parallel rework this is
	// the synthesised result covering every signalled sibling.
	Failure domain.AgentResult

	// WorkspacePath is the run workspace.
	WorkspacePath string

	// RunSteps is the run's attempt history so far.
	RunSteps []domain.StepExecution

	// ReworkAttempt is the 1-based rework round for the failed step.
	ReworkAttempt int

	// PreviousReworkResults are the outcomes of earlier rework rounds.
	PreviousReworkResults []domain.AgentResult
}

// ReworkPlan is the planner's recovery plan: one or two minimal steps whose
// numbers are >= 900 + the failed step's number, so they never collide with
// the initial plan.
type ReworkPlan struct {
	// Steps are executed in order before the failed step is retried.
	Steps []domain.PlanStep `json:"steps"`
}

// PlannerRuntime produces plans from tickets and rework plans from failures.
type PlannerRuntime interface {
	// GeneratePlan produces the initial execution plan for a ticket.
	GeneratePlan(ctx context.Context, ticket *domain.Ticket, agents []domain.AgentDefinition, rules []domain.Rule, workspacePath string) (*domain.ExecutionPlan, error)

	// PlanRework produces a minimal recovery plan for a failed step.
	PlanRework(ctx context.Context, req ReworkRequest) (*ReworkPlan, error)
}

// IsResumableSessionID reports whether a runtime id looks like a real,
// resumable session id worth recording. Synthetic ids minted by local
// runtimes carry known prefixes and are never recorded.
func IsResumableSessionID(id string) bool {
	if id == "" {
		return false
	}
	for _, prefix := range constants.SessionIDLocalPrefixes {
		if strings.HasPrefix(id, prefix) {
			return false
		}
	}
	return true
}
