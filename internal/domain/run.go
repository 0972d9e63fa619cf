package domain

import (
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
)

// StepExecution is the per-attempt record the scheduler appends to the run
// for every agent invocation, including rework attempts.
//
// Example JSON representation:
//
//	{
//	    "step_number": 2,
//	    "agent": "qa",
//	    "status": "completed",
//	    "tokens_used": 48213,
//	    "rework_count": 1
//	}
type StepExecution struct {
	// StepNumber is the plan step this attempt executed.
	StepNumber int `json:"step_number"`

	// Agent is the agent id that ran the attempt.
	Agent string `json:"agent"`

	// Status is the current state of this attempt.
	Status constants.StepStatus `json:"status"`

	// RuntimeID is the runtime session/process id for this attempt.
	RuntimeID string `json:"runtime_id,omitempty"`

	// TokensUsed is the attempt's token consumption.
	TokensUsed int `json:"tokens_used"`

	// CostUSD is the attempt's cost in US dollars.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the attempt finished (nil while running).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is the agent's output for the attempt, when it produced one.
	Result *AgentResult `json:"result,omitempty"`

	// ReworkCount is the step's rework counter at the time of this attempt.
	ReworkCount int `json:"rework_count"`
}

// TaskRun is the run-scoped aggregate mutated as the orchestration proceeds.
// All durable state lives under the workspace directory; run.json snapshots
// this struct after every status change.
type TaskRun struct {
	// RunID uniquely identifies the run (timestamp plus random suffix).
	RunID string `json:"run_id"`

	// ProjectID identifies the project the run belongs to.
	ProjectID string `json:"project_id"`

	// Ticket is the immutable ticket the run works on.
	Ticket *Ticket `json:"ticket,omitempty"`

	// Plan is the raw planner output.
	Plan *ExecutionPlan `json:"plan,omitempty"`

	// ValidatedPlan is the rule-augmented plan the scheduler executes.
	ValidatedPlan *ExecutionPlan `json:"validated_plan,omitempty"`

	// Status is the run's position in the lifecycle state machine.
	Status constants.RunStatus `json:"status"`

	// Steps records every step attempt, in execution order.
	Steps []StepExecution `json:"steps"`

	// TotalTokensUsed accumulates token usage across attempts. Monotonic.
	TotalTokensUsed int `json:"total_tokens_used"`

	// TotalCostUSD accumulates cost across attempts. Monotonic.
	TotalCostUSD float64 `json:"total_cost_usd"`

	// WorkspacePath is the absolute path of the per-run workspace.
	WorkspacePath string `json:"workspace_path,omitempty"`

	// BranchName is the git branch the run works on.
	BranchName string `json:"branch_name,omitempty"`

	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// PRURL is the opened pull request URL for completed runs.
	PRURL string `json:"pr_url,omitempty"`

	// Error holds the terminal error message for failed runs.
	Error string `json:"error,omitempty"`

	// SchemaVersion enables forward-compatible snapshot migrations.
	SchemaVersion int `json:"schema_version"`
}

// AddUsage accumulates step telemetry into the run totals.
// Totals only ever increase; negative inputs are ignored.
func (r *TaskRun) AddUsage(tokens int, costUSD float64) {
	if tokens > 0 {
		r.TotalTokensUsed += tokens
	}
	if costUSD > 0 {
		r.TotalCostUSD += costUSD
	}
}

// LatestExecution returns the most recent StepExecution for the given step
// number, or nil if the step has never been attempted.
func (r *TaskRun) LatestExecution(stepNumber int) *StepExecution {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].StepNumber == stepNumber {
			return &r.Steps[i]
		}
	}
	return nil
}

// AttemptCount returns how many attempts have been recorded for a step.
func (r *TaskRun) AttemptCount(stepNumber int) int {
	count := 0
	for i := range r.Steps {
		if r.Steps[i].StepNumber == stepNumber {
			count++
		}
	}
	return count
}
