package plan

import (
	"fmt"
	"path"
	"strings"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// conditionMatches evaluates one rule condition against the ticket and plan.
func conditionMatches(cond domain.RuleCondition, ticket *domain.Ticket, p *domain.ExecutionPlan) (bool, error) {
	switch cond.Type {
	case domain.ConditionAlways:
		return true, nil

	case domain.ConditionLabelContains:
		if ticket == nil {
			return false, nil
		}
		return ticket.HasLabel(cond.Value), nil

	case domain.ConditionPriorityIs:
		if ticket == nil {
			return false, nil
		}
		for _, v := range cond.Values {
			if strings.EqualFold(v, string(ticket.Priority)) {
				return true, nil
			}
		}
		return false, nil

	case domain.ConditionClassificationIs:
		for _, v := range cond.Values {
			if strings.EqualFold(v, string(p.Classification)) {
				return true, nil
			}
		}
		return false, nil

	case domain.ConditionFilePathMatches:
		for i := range p.Steps {
			for _, input := range p.Steps[i].ContextInputs {
				if input.Kind != domain.ContextKindFile {
					continue
				}
				if globMatch(cond.Pattern, input.Path) {
					return true, nil
				}
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("%w: %q", sferrors.ErrUnknownRuleCondition, cond.Type)
}

// applyAction applies one matched rule's action to the plan, updating the report.
func (v *Validator) applyAction(rule domain.Rule, p *domain.ExecutionPlan, report *Report) error {
	action := rule.Action
	switch action.Type {
	case domain.ActionRequireRole:
		if p.LastStepForRole(action.Role) != nil {
			return nil // Equivalent step already present.
		}
		agent := v.agentForRole(action.Role)
		v.injectStep(p, agent, action.Role, rule, report)
		return nil

	case domain.ActionRequireAgent:
		if p.LastStepForAgent(action.Agent) != nil {
			return nil
		}
		v.injectStep(p, action.Agent, constants.RoleForAgent(action.Agent), rule, report)
		return nil

	case domain.ActionRequireHumanGate:
		anchor := p.LastStepForAgent(action.AfterAgent)
		if anchor == nil {
			// Fall back to the role in case the plan uses a specialised agent id.
			anchor = p.LastStepForRole(constants.RoleForAgent(action.AfterAgent))
		}
		if anchor == nil {
			if rule.Enforced {
				return fmt.Errorf("%w: rule %q requires a human gate after agent %q but the plan has no such step",
					sferrors.ErrPlanInvalid, rule.Name, action.AfterAgent)
			}
			v.logger.Warn().Str("rule", rule.Name).Str("after_agent", action.AfterAgent).
				Msg("human gate rule skipped, no anchor step in plan")
			return nil
		}
		for _, g := range p.HumanGates {
			if g.AfterStep == anchor.StepNumber {
				return nil // One gate per after_step.
			}
		}
		p.HumanGates = append(p.HumanGates, domain.HumanGate{
			AfterStep: anchor.StepNumber,
			Reason:    rule.Name,
			Required:  true,
		})
		report.InjectedGates = append(report.InjectedGates, anchor.StepNumber)
		return nil

	case domain.ActionSetBudget:
		if action.Budget == nil {
			return nil
		}
		if report.BudgetOverride == nil {
			b := *action.Budget
			report.BudgetOverride = &b
			return nil
		}
		merged := report.BudgetOverride.Merge(*action.Budget)
		report.BudgetOverride = &merged
		return nil
	}

	return fmt.Errorf("%w: %q", sferrors.ErrUnknownRuleAction, action.Type)
}

// injectStep inserts a synthetic step for the given agent so the canonical
// role order (product < architect < ui-ux < developer < code-review < qa <
// security < devops) is preserved. Its dependency points at the last existing
// step of the preceding role, when one exists.
func (v *Validator) injectStep(p *domain.ExecutionPlan, agent string, role constants.AgentRole, rule domain.Rule, report *Report) {
	order := constants.RoleOrder(role)

	// Insertion position: after the last step whose role sorts at or before
	// the injected role.
	insertAt := 0
	dependsOn := 0
	for i := range p.Steps {
		if constants.RoleOrder(p.Steps[i].Role()) <= order {
			insertAt = i + 1
			dependsOn = p.Steps[i].StepNumber
		}
	}

	step := domain.PlanStep{
		StepNumber:          p.MaxStepNumber() + 1,
		Agent:               agent,
		Task:                fmt.Sprintf("%s %s review for ticket %s (rule: %s)", InjectedMarker, role, p.TicketID, rule.Name),
		ContextInputs:       []domain.ContextInput{{Kind: domain.ContextKindTicket}},
		EstimatedComplexity: constants.ComplexityLow,
	}
	if dependsOn != 0 {
		step.DependsOn = []int{dependsOn}
	}

	p.Steps = append(p.Steps, domain.PlanStep{})
	copy(p.Steps[insertAt+1:], p.Steps[insertAt:])
	p.Steps[insertAt] = step

	report.InjectedSteps = append(report.InjectedSteps, step.StepNumber)
	v.logger.Info().
		Str("rule", rule.Name).
		Str("agent", agent).
		Int("step_number", step.StepNumber).
		Msg("rule injected plan step")
}

// globMatch matches a file path against a glob pattern. path.Match covers
// single-segment patterns; "**/" prefixes are handled by retrying the
// remainder against every trailing sub-path, since planners commonly write
// patterns like "src/**/*.sql".
func globMatch(pattern, p string) bool {
	if pattern == "" {
		return false
	}
	if ok, err := path.Match(pattern, p); err == nil && ok {
		return true
	}

	idx := strings.Index(pattern, "**/")
	if idx < 0 {
		return false
	}
	prefix, rest := pattern[:idx], pattern[idx+3:]
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	remainder := strings.TrimPrefix(p, prefix)
	segments := strings.Split(remainder, "/")
	for i := range segments {
		candidate := strings.Join(segments[i:], "/")
		if ok, err := path.Match(rest, candidate); err == nil && ok {
			return true
		}
	}
	return false
}
