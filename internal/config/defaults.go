package config

import (
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// DefaultPlatform returns a Platform with built-in defaults. These form the
// base layer that config files, environment variables, and CLI flags
// override.
func DefaultPlatform() *Platform {
	return &Platform{
		// Info keeps run narration visible without drowning operators in
		// per-step runtime chatter.
		LogLevel: "info",

		// claude-cli is the default local runtime; container mode is opt-in.
		Runtime: "",

		AgentModels: map[string]domain.ModelConfig{
			"developer":   {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
			"qa":          {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
			"code-review": {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
			"security":    {Model: "claude-opus-4-1", Provider: "claude-cli"},
			"architect":   {Model: "claude-opus-4-1", Provider: "claude-cli"},
		},
		RoleModels: map[string]domain.ModelConfig{
			string(constants.RoleProduct): {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
			string(constants.RoleUIUX):    {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
			string(constants.RoleDevOps):  {Model: "claude-sonnet-4-5", Provider: "claude-cli"},
		},

		Budget: domain.Budget{
			PerAgentTokens:     constants.DefaultPerAgentTokens,
			PerTaskTotalTokens: constants.DefaultPerTaskTotalTokens,
			PerTaskMaxCostUSD:  0, // Cost enforcement disabled unless configured.
			MaxReworkCycles:    constants.DefaultMaxReworkCycles,
		},

		StepTimeout:      constants.DefaultStepTimeout,
		TaskTimeout:      constants.DefaultTaskTimeout,
		HumanGateTimeout: constants.DefaultHumanGateTimeout,

		RegistryURL: constants.DefaultRegistryURL,

		Catalog: DefaultCatalog(),

		Rules: []domain.Rule{
			{
				Name:      "code-review-required",
				Condition: domain.RuleCondition{Type: domain.ConditionAlways},
				Action:    domain.RuleAction{Type: domain.ActionRequireRole, Role: constants.RoleCodeReview},
			},
			{
				Name: "security-review-for-security-work",
				Condition: domain.RuleCondition{
					Type:   domain.ConditionClassificationIs,
					Values: []string{string(constants.ClassificationSecurityFix)},
				},
				Action:   domain.RuleAction{Type: domain.ActionRequireRole, Role: constants.RoleSecurity},
				Enforced: true,
			},
			{
				Name: "human-gate-for-p0",
				Condition: domain.RuleCondition{
					Type:   domain.ConditionPriorityIs,
					Values: []string{string(constants.PriorityP0)},
				},
				Action: domain.RuleAction{Type: domain.ActionRequireHumanGate, AfterAgent: "qa"},
			},
		},
	}
}

// DefaultCatalog returns the built-in agent catalog. Projects may replace it
// wholesale via their project config.
func DefaultCatalog() []domain.AgentDefinition {
	return []domain.AgentDefinition{
		{ID: "product", Role: constants.RoleProduct, Description: "Clarifies requirements and acceptance criteria"},
		{ID: "architect", Role: constants.RoleArchitect, Description: "Designs the change before implementation"},
		{ID: "ui-ux", Role: constants.RoleUIUX, Description: "Reviews user-facing flows and visuals"},
		{ID: "developer", Role: constants.RoleDeveloper, Description: "Implements the change"},
		{ID: "code-review", Role: constants.RoleCodeReview, Description: "Reviews diffs for correctness and style"},
		{ID: "qa", Role: constants.RoleQA, Description: "Writes and runs tests against acceptance criteria"},
		{ID: "security", Role: constants.RoleSecurity, Description: "Audits the change for vulnerabilities"},
		{ID: "devops", Role: constants.RoleDevOps, Description: "Handles infrastructure and deployment changes"},
	}
}
