package domain

import "github.com/sprintfoundry/sprintfoundry/internal/constants"

// RuleConditionType selects how a rule decides whether it applies to a run.
// The set is closed; the validator rejects unknown conditions.
type RuleConditionType string

// Rule condition type constants.
const (
	// ConditionAlways matches every run.
	ConditionAlways RuleConditionType = "always"

	// ConditionLabelContains matches when any ticket label contains Value
	// (case-insensitive substring).
	ConditionLabelContains RuleConditionType = "label_contains"

	// ConditionPriorityIs matches when the ticket priority is in Values.
	ConditionPriorityIs RuleConditionType = "priority_is"

	// ConditionClassificationIs matches when the plan classification is in Values.
	ConditionClassificationIs RuleConditionType = "classification_is"

	// ConditionFilePathMatches matches when any step's file context input
	// path matches the glob Pattern.
	ConditionFilePathMatches RuleConditionType = "file_path_matches"
)

// RuleActionType selects what an applicable rule does to the plan.
// The set is closed; the validator rejects unknown actions.
type RuleActionType string

// Rule action type constants.
const (
	// ActionRequireRole ensures a step with an agent of Role exists, injecting
	// one when missing.
	ActionRequireRole RuleActionType = "require_role"

	// ActionRequireAgent ensures a step with the exact Agent id exists,
	// injecting one when missing.
	ActionRequireAgent RuleActionType = "require_agent"

	// ActionRequireHumanGate appends a required human gate after the last
	// step of AfterAgent.
	ActionRequireHumanGate RuleActionType = "require_human_gate"

	// ActionSetBudget overrides budget fields for the run. Applied by the
	// scheduler's budget resolution, not by the validator.
	ActionSetBudget RuleActionType = "set_budget"
)

// RuleCondition is the predicate half of a rule.
type RuleCondition struct {
	// Type selects the condition variant.
	Type RuleConditionType `json:"type" yaml:"type"`

	// Value is the substring for label_contains.
	Value string `json:"value,omitempty" yaml:"value"`

	// Values are the accepted values for priority_is / classification_is.
	Values []string `json:"values,omitempty" yaml:"values"`

	// Pattern is the glob for file_path_matches.
	Pattern string `json:"pattern,omitempty" yaml:"pattern"`
}

// RuleAction is the effect half of a rule.
type RuleAction struct {
	// Type selects the action variant.
	Type RuleActionType `json:"type" yaml:"type"`

	// Role is the required role for require_role.
	Role constants.AgentRole `json:"role,omitempty" yaml:"role"`

	// Agent is the required agent id for require_agent.
	Agent string `json:"agent,omitempty" yaml:"agent"`

	// AfterAgent is the gate anchor agent for require_human_gate.
	AfterAgent string `json:"after_agent,omitempty" yaml:"after_agent"`

	// Budget carries the override for set_budget.
	Budget *Budget `json:"budget,omitempty" yaml:"budget"`
}

// Rule is one policy tuple evaluated by the plan validator.
type Rule struct {
	// Name identifies the rule in logs and injected-step markers.
	Name string `json:"name,omitempty" yaml:"name"`

	// Condition decides whether the rule applies.
	Condition RuleCondition `json:"condition" yaml:"condition"`

	// Action is applied when the condition matches.
	Action RuleAction `json:"action" yaml:"action"`

	// Enforced rules fail validation when their action cannot be applied;
	// advisory rules only log.
	Enforced bool `json:"enforced,omitempty" yaml:"enforced"`
}
