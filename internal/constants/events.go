package constants

// EventType identifies a kind of event in the run narration log.
// The set of event types is closed; consumers may rely on exhaustive matching.
type EventType string

// Event type constants for the run event log.
const (
	// EventTaskCreated is emitted when a run is created.
	EventTaskCreated EventType = "task.created"

	// EventTaskPlanGenerated is emitted after the planner produces a raw plan.
	EventTaskPlanGenerated EventType = "task.plan_generated"

	// EventTaskPlanValidated is emitted after the validator augments the plan.
	EventTaskPlanValidated EventType = "task.plan_validated"

	// EventTaskCompleted is emitted when a run reaches completed status.
	EventTaskCompleted EventType = "task.completed"

	// EventTaskFailed is emitted when a run fails.
	EventTaskFailed EventType = "task.failed"

	// EventStepStarted is emitted immediately before an agent runtime is invoked.
	EventStepStarted EventType = "step.started"

	// EventStepCompleted is emitted when a step attempt completes.
	EventStepCompleted EventType = "step.completed"

	// EventStepFailed is emitted when a step attempt fails terminally.
	EventStepFailed EventType = "step.failed"

	// EventStepCommitted is emitted when the git checkpoint actually committed
	// a non-empty diff. Never emitted for no-op checkpoints.
	EventStepCommitted EventType = "step.committed"

	// EventStepReworkTriggered is emitted when a step is scheduled for rework.
	EventStepReworkTriggered EventType = "step.rework_triggered"

	// EventAgentTokenLimitExceeded is emitted when a budget preflight fails.
	EventAgentTokenLimitExceeded EventType = "agent.token_limit_exceeded"

	// EventHumanGateRequested is emitted when a human review rendezvous is opened.
	EventHumanGateRequested EventType = "human_gate.requested"

	// EventHumanGateApproved is emitted when a reviewer approves a gate.
	EventHumanGateApproved EventType = "human_gate.approved"

	// EventHumanGateRejected is emitted when a reviewer rejects a gate or the
	// gate times out.
	EventHumanGateRejected EventType = "human_gate.rejected"

	// EventPRCreated is emitted after the pull request is opened.
	EventPRCreated EventType = "pr.created"

	// EventTicketUpdated is emitted after the ticket provider status update.
	EventTicketUpdated EventType = "ticket.updated"
)

// String returns the string representation of the EventType.
func (t EventType) String() string {
	return string(t)
}
