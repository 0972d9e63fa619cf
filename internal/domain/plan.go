package domain

import (
	"encoding/json"
	"fmt"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
)

// ContextInput describes one input the scheduler materialises for an agent
// step before invoking the runtime. Exactly one Kind is set per input.
type ContextInput struct {
	// Kind selects the input variant: ticket, file, directory, step_output,
	// or artifact.
	Kind string `json:"kind"`

	// Path is the file or directory path for file/directory inputs.
	Path string `json:"path,omitempty"`

	// StepNumber references an earlier step for step_output inputs.
	StepNumber int `json:"step_number,omitempty"`

	// Name is the artifact name for artifact inputs.
	Name string `json:"name,omitempty"`
}

// Context input kind constants.
const (
	// ContextKindTicket injects the run's ticket.
	ContextKindTicket = "ticket"

	// ContextKindFile injects a single workspace file.
	ContextKindFile = "file"

	// ContextKindDirectory injects a workspace directory listing.
	ContextKindDirectory = "directory"

	// ContextKindStepOutput injects a previous step's agent result.
	ContextKindStepOutput = "step_output"

	// ContextKindArtifact injects a named artifact from artifacts/.
	ContextKindArtifact = "artifact"
)

// PlanStep is one node of the execution DAG.
//
// Step numbers are unique within a plan; the validator rejects duplicates.
// Rework plans number their steps >= 900 + the failed step's number so they
// never collide with the initial plan's 1..N.
type PlanStep struct {
	// StepNumber uniquely identifies the step within its plan.
	StepNumber int `json:"step_number"`

	// Agent is the agent id that executes the step (e.g. "developer", "go-qa").
	Agent string `json:"agent"`

	// Model is the model identifier the scheduler passes to the runtime.
	// Empty means "resolve from configuration".
	Model string `json:"model,omitempty"`

	// Task is the natural-language instruction for the agent.
	Task string `json:"task"`

	// ContextInputs are materialised into the workspace before the step runs.
	ContextInputs []ContextInput `json:"context_inputs,omitempty"`

	// DependsOn lists step numbers that must be completed first.
	DependsOn []int `json:"depends_on,omitempty"`

	// EstimatedComplexity is the planner's difficulty estimate.
	EstimatedComplexity constants.Complexity `json:"estimated_complexity,omitempty"`
}

// Role returns the workflow role of the step's agent.
func (s *PlanStep) Role() constants.AgentRole {
	return constants.RoleForAgent(s.Agent)
}

// ParallelGroup is a declared set of step numbers the planner asserts have no
// inter-dependency and may run concurrently.
//
/// Planner dialects disagree on the wire shape: some emit a bare array of
// numbers, others an object {"step_numbers": [...]}. UnmarshalJSON collapses
// both into the normalised form.
type ParallelGroup struct {
	// StepNumbers are the members of the group.
	StepNumbers []int `json:"step_numbers"`
}

// UnmarshalJSON accepts both `[1,2]` and `{"step_numbers":[1,2]}`.
func (g *ParallelGroup) UnmarshalJSON(data []byte) error {
	var bare []int
	if err := json.Unmarshal(data, &bare); err == nil {
		g.StepNumbers = bare
		return nil
	}

	var obj struct {
		StepNumbers []int `json:"step_numbers"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("parallel group must be a number array or {step_numbers}: %w", err)
	}
	g.StepNumbers = obj.StepNumbers
	return nil
}

// Contains reports whether the group includes the given step number.
func (g *ParallelGroup) Contains(stepNumber int) bool {
	for _, n := range g.StepNumbers {
		if n == stepNumber {
			return true
		}
	}
	return false
}

// HumanGate declares a pause point after a step, awaiting a human decision.
type HumanGate struct {
	// AfterStep is the step number the gate waits behind.
	AfterStep int `json:"after_step"`

	// Reason explains why the gate exists (shown to the reviewer).
	Reason string `json:"reason,omitempty"`

	// Required gates block the run; non-required gates are advisory and skipped.
	Required bool `json:"required"`
}

// ExecutionPlan is the validated DAG of steps the scheduler executes.
type ExecutionPlan struct {
	// PlanID uniquely identifies this plan.
	PlanID string `json:"plan_id"`

	// TicketID links the plan back to its ticket.
	TicketID string `json:"ticket_id"`

	// Classification categorizes the change the plan implements.
	Classification constants.Classification `json:"classification"`

	// Reasoning is the planner's explanation of the plan shape.
	Reasoning string `json:"reasoning,omitempty"`

	// Steps is the full step list, in plan order.
	Steps []PlanStep `json:"steps"`

	// ParallelGroups lists disjoint sets of steps runnable concurrently.
	ParallelGroups []ParallelGroup `json:"parallel_groups,omitempty"`

	// HumanGates lists review pause points.
	HumanGates []HumanGate `json:"human_gates,omitempty"`
}

// StepByNumber returns the step with the given number, or nil.
func (p *ExecutionPlan) StepByNumber(n int) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].StepNumber == n {
			return &p.Steps[i]
		}
	}
	return nil
}

// LastStepForAgent returns the highest-positioned step executed by the given
// agent id, or nil if the agent has no steps. Used when appending human gates
// "after the last step belonging to that agent".
func (p *ExecutionPlan) LastStepForAgent(agentID string) *PlanStep {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].Agent == agentID {
			return &p.Steps[i]
		}
	}
	return nil
}

// LastStepForRole returns the highest-positioned step whose agent belongs to
// the given role, or nil.
func (p *ExecutionPlan) LastStepForRole(role constants.AgentRole) *PlanStep {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if p.Steps[i].Role() == role {
			return &p.Steps[i]
		}
	}
	return nil
}

// MaxStepNumber returns the largest step number in the plan, or 0 for an
// empty plan.
func (p *ExecutionPlan) MaxStepNumber() int {
	maxN := 0
	for i := range p.Steps {
		if p.Steps[i].StepNumber > maxN {
			maxN = p.Steps[i].StepNumber
		}
	}
	return maxN
}

// Clone returns a deep copy of the plan. The validator returns augmented
// copies and must never mutate its input.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	clone := *p
	clone.Steps = make([]PlanStep, len(p.Steps))
	for i, s := range p.Steps {
		cs := s
		cs.ContextInputs = append([]ContextInput(nil), s.ContextInputs...)
		cs.DependsOn = append([]int(nil), s.DependsOn...)
		clone.Steps[i] = cs
	}
	clone.ParallelGroups = make([]ParallelGroup, len(p.ParallelGroups))
	for i, g := range p.ParallelGroups {
		clone.ParallelGroups[i] = ParallelGroup{StepNumbers: append([]int(nil), g.StepNumbers...)}
	}
	clone.HumanGates = append([]HumanGate(nil), p.HumanGates...)
	return &clone
}
