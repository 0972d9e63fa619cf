package domain

// Budget bounds a run's resource consumption. The effective budget is
// resolved by merging platform defaults, project overrides, and any
// set_budget rule action matching the ticket, in that order.
type Budget struct {
	// PerAgentTokens is the token budget for a single agent step.
	PerAgentTokens int `json:"per_agent_tokens,omitempty" yaml:"per_agent_tokens" mapstructure:"per_agent_tokens"`

	// PerTaskTotalTokens is the token ceiling for the whole run, enforced at
	// each step's preflight.
	PerTaskTotalTokens int `json:"per_task_total_tokens,omitempty" yaml:"per_task_total_tokens" mapstructure:"per_task_total_tokens"`

	// PerTaskMaxCostUSD is the cost ceiling for the whole run. Zero disables
	// cost enforcement.
	PerTaskMaxCostUSD float64 `json:"per_task_max_cost_usd,omitempty" yaml:"per_task_max_cost_usd" mapstructure:"per_task_max_cost_usd"`

	// MaxReworkCycles bounds rework retries per step. Zero means "unset"
	// (inherit from the lower layer).
	MaxReworkCycles int `json:"max_rework_cycles,omitempty" yaml:"max_rework_cycles" mapstructure:"max_rework_cycles"`
}

// Merge returns a copy of b with any set fields of override applied on top.
// Zero-valued override fields inherit from b.
func (b Budget) Merge(override Budget) Budget {
	merged := b
	if override.PerAgentTokens > 0 {
		merged.PerAgentTokens = override.PerAgentTokens
	}
	if override.PerTaskTotalTokens > 0 {
		merged.PerTaskTotalTokens = override.PerTaskTotalTokens
	}
	if override.PerTaskMaxCostUSD > 0 {
		merged.PerTaskMaxCostUSD = override.PerTaskMaxCostUSD
	}
	if override.MaxReworkCycles > 0 {
		merged.MaxReworkCycles = override.MaxReworkCycles
	}
	return merged
}
