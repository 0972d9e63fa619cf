// Package plan provides execution-plan normalization and validation.
//
// The validator takes the raw planner output plus the run's ticket, verifies
// the structural invariants of the step DAG (unique step numbers, resolvable
// dependencies, acyclicity), evaluates the configured rules, and returns a
// rule-augmented copy of the plan. The input plan is never mutated.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/scheduler, internal/orchestrator
package plan

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// InjectedMarker is prepended to the task text of every rule-injected step so
// humans and agents can tell injected steps from planner-authored ones.
const InjectedMarker = "[AUTO-INJECTED BY RULE]"

// Report summarises what validation did to a plan. The orchestrator folds it
// into the task.plan_validated event.
type Report struct {
	// OriginalSteps is the step count of the raw plan.
	OriginalSteps int `json:"original_steps"`

	// ValidatedSteps is the step count after injection.
	ValidatedSteps int `json:"validated_steps"`

	// InjectedSteps lists the step numbers the rule engine added.
	InjectedSteps []int `json:"injected_steps,omitempty"`

	// InjectedGates lists the after_step anchors of gates the rule engine added.
	InjectedGates []int `json:"injected_gates,omitempty"`

	// BudgetOverride is the merged set_budget override from matching rules,
	// nil when no set_budget rule matched. Applied by the scheduler's budget
	// resolution, never by the validator.
	BudgetOverride *domain.Budget `json:"budget_override,omitempty"`
}

// Validator performs structural and rule-driven plan validation.
type Validator struct {
	catalog []domain.AgentDefinition
	rules   []domain.Rule
	logger  zerolog.Logger
}

// NewValidator creates a validator with the given agent catalog and rules.
// The catalog is consulted when a require_role injection must pick a concrete
// agent for the role.
func NewValidator(catalog []domain.AgentDefinition, rules []domain.Rule, logger zerolog.Logger) *Validator {
	return &Validator{catalog: catalog, rules: rules, logger: logger}
}

// Validate checks the plan structure and applies matching rules, returning an
// augmented copy and a report. Structural violations are hard failures.
//
// Validate is idempotent on its own output: rule actions skip when an
// equivalent step or gate already exists.
func (v *Validator) Validate(p *domain.ExecutionPlan, ticket *domain.Ticket) (*domain.ExecutionPlan, *Report, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("%w: plan is nil", sferrors.ErrPlanInvalid)
	}

	if err := v.checkStructure(p); err != nil {
		return nil, nil, err
	}

	augmented := p.Clone()
	report := &Report{OriginalSteps: len(p.Steps)}

	for _, rule := range v.rules {
		matched, err := conditionMatches(rule.Condition, ticket, augmented)
		if err != nil {
			return nil, nil, err
		}
		if !matched {
			continue
		}
		if err := v.applyAction(rule, augmented, report); err != nil {
			return nil, nil, err
		}
	}

	report.ValidatedSteps = len(augmented.Steps)
	return augmented, report, nil
}

// checkStructure enforces the hard structural invariants of the step DAG.
func (v *Validator) checkStructure(p *domain.ExecutionPlan) error {
	seen := make(map[int]bool, len(p.Steps))
	for i := range p.Steps {
		n := p.Steps[i].StepNumber
		if seen[n] {
			return fmt.Errorf("%w: %w: step %d", sferrors.ErrPlanInvalid, sferrors.ErrDuplicateStepNumber, n)
		}
		seen[n] = true
	}

	for i := range p.Steps {
		for _, dep := range p.Steps[i].DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: %w: step %d depends on %d",
					sferrors.ErrPlanInvalid, sferrors.ErrUnknownDependency, p.Steps[i].StepNumber, dep)
			}
		}
	}

	if cycle := findCycle(p); cycle != nil {
		return fmt.Errorf("%w: %w: steps %v", sferrors.ErrPlanInvalid, sferrors.ErrDependencyCycle, cycle)
	}
	return nil
}

// findCycle runs a coloring DFS over depends_on edges and returns the step
// numbers of a cycle, or nil when the DAG is acyclic.
func findCycle(p *domain.ExecutionPlan) []int {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	color := make(map[int]int, len(p.Steps))
	deps := make(map[int][]int, len(p.Steps))
	for i := range p.Steps {
		deps[p.Steps[i].StepNumber] = p.Steps[i].DependsOn
	}

	var cycle []int
	var visit func(n int, path []int) bool
	visit = func(n int, path []int) bool {
		color[n] = gray
		path = append(path, n)
		for _, dep := range deps[n] {
			switch color[dep] {
			case gray:
				// Trim the path back to where the cycle entered.
				start := 0
				for i, m := range path {
					if m == dep {
						start = i
						break
					}
				}
				cycle = append(append([]int(nil), path[start:]...), dep)
				return true
			case white:
				if visit(dep, path) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for i := range p.Steps {
		n := p.Steps[i].StepNumber
		if color[n] == white {
			if visit(n, nil) {
				return cycle
			}
		}
	}
	return nil
}

// agentForRole picks a concrete agent id for a role, preferring the project's
// agent catalog and falling back to the role name itself (the platform's
// default agents are named after their roles).
func (v *Validator) agentForRole(role constants.AgentRole) string {
	for i := range v.catalog {
		if v.catalog[i].EffectiveRole() == role {
			return v.catalog[i].ID
		}
	}
	return string(role)
}
