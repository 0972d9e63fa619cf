package constants

// RunStatus represents the state of a task run in the SprintFoundry state machine.
// Status values use snake_case for JSON serialization compatibility.
type RunStatus string

// Run status constants define the valid states a run can be in.
// These follow the run lifecycle:
//
//	Pending → Planning
//	Planning → Executing, Failed
//	Executing → WaitingHumanReview, Completed, Failed
//	WaitingHumanReview → Executing, Failed
const (
	// RunStatusPending indicates a run has been created but planning has not started.
	RunStatusPending RunStatus = "pending"

	// RunStatusPlanning indicates the planner runtime is producing the plan.
	RunStatusPlanning RunStatus = "planning"

	// RunStatusExecuting indicates the scheduler is executing plan steps.
	RunStatusExecuting RunStatus = "executing"

	// RunStatusWaitingHumanReview indicates the run is paused at a human gate.
	RunStatusWaitingHumanReview RunStatus = "waiting_human_review"

	// RunStatusCompleted indicates every plan step finished and the PR was opened.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed indicates the run terminated with an error.
	RunStatusFailed RunStatus = "failed"
)

// String returns the string representation of the RunStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s RunStatus) String() string {
	return string(s)
}

// StepStatus represents the state of a single step execution attempt.
type StepStatus string

// Step status constants define the valid states a step execution can be in.
const (
	// StepStatusRunning indicates the agent runtime is executing the step.
	StepStatusRunning StepStatus = "running"

	// StepStatusCompleted indicates the step finished and its checkpoint was taken.
	StepStatusCompleted StepStatus = "completed"

	// StepStatusNeedsRework indicates the agent (or the quality gate) flagged
	// the step output for rework.
	StepStatusNeedsRework StepStatus = "needs_rework"

	// StepStatusFailed indicates the step terminated with an error.
	StepStatusFailed StepStatus = "failed"
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// AgentStatus represents the terminal status an agent runtime reports for a step.
type AgentStatus string

// Agent result status constants define the closed runtime output contract.
const (
	// AgentStatusComplete indicates the agent finished the step successfully.
	AgentStatusComplete AgentStatus = "complete"

	// AgentStatusNeedsRework indicates the agent found problems requiring rework
	// of an earlier step (or its own output).
	AgentStatusNeedsRework AgentStatus = "needs_rework"

	// AgentStatusBlocked indicates the agent cannot proceed without outside help.
	AgentStatusBlocked AgentStatus = "blocked"

	// AgentStatusFailed indicates the agent terminated with an error.
	AgentStatusFailed AgentStatus = "failed"
)

// String returns the string representation of the AgentStatus.
func (s AgentStatus) String() string {
	return string(s)
}

// ReviewStatus represents the state of a human review rendezvous.
type ReviewStatus string

// Review status constants define the valid states of a HumanReview.
const (
	// ReviewStatusPending indicates the review is waiting for a decision.
	ReviewStatusPending ReviewStatus = "pending"

	// ReviewStatusApproved indicates the reviewer approved the gated work.
	ReviewStatusApproved ReviewStatus = "approved"

	// ReviewStatusRejected indicates the reviewer rejected the gated work.
	ReviewStatusRejected ReviewStatus = "rejected"
)

// String returns the string representation of the ReviewStatus.
func (s ReviewStatus) String() string {
	return string(s)
}
