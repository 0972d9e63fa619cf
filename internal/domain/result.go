package domain

import "github.com/sprintfoundry/sprintfoundry/internal/constants"

// AgentResult is the output contract every agent runtime fulfils for a step.
// The engine branches on Status; Metadata is opaque to the core except for
// the reserved "human_reviewed" annotation set after an approved gate.
//
// Example JSON representation:
//
//	{
//	    "status": "complete",
//	    "summary": "Implemented rate limiting middleware",
//	    "artifacts_created": ["internal/middleware/ratelimit.go"],
//	    "issues": []
//	}
type AgentResult struct {
	// Status is the agent's terminal status for the step.
	Status constants.AgentStatus `json:"status"`

	// Summary is the agent's human-readable account of what it did.
	Summary string `json:"summary,omitempty"`

	// ArtifactsCreated lists files the agent created.
	ArtifactsCreated []string `json:"artifacts_created,omitempty"`

	// ArtifactsModified lists files the agent modified.
	ArtifactsModified []string `json:"artifacts_modified,omitempty"`

	// Issues lists problems the agent found but did not fix.
	Issues []string `json:"issues,omitempty"`

	// ReworkReason explains a needs_rework status.
	ReworkReason string `json:"rework_reason,omitempty"`

	// ReworkTarget optionally names the step number the rework should target.
	ReworkTarget int `json:"rework_target,omitempty"`

	// Metadata is opaque agent data the core carries but does not inspect,
	// except for the reserved human_reviewed annotation.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MetadataKeyHumanReviewed is the reserved Metadata key the scheduler sets to
// true on a step result after its human gate is approved.
const MetadataKeyHumanReviewed = "human_reviewed"

// StepUsage is the telemetry an agent runtime reports alongside its result.
type StepUsage struct {
	// TokensUsed is the total token consumption for the attempt.
	TokensUsed int `json:"tokens_used"`

	// RuntimeID is the runtime's session/process identifier for the attempt.
	RuntimeID string `json:"runtime_id,omitempty"`

	// CostUSD is the attempt cost in US dollars, when the runtime reports it.
	CostUSD float64 `json:"cost_usd,omitempty"`

	// Usage is the runtime's raw usage breakdown, when available.
	Usage map[string]any `json:"usage,omitempty"`

	// TokenSavings is the tokens saved by session resume, when reported.
	TokenSavings int `json:"token_savings,omitempty"`

	// ResumeUsed is true when the attempt resumed a previous session.
	ResumeUsed bool `json:"resume_used,omitempty"`

	// ResumeFailed is true when the resume attempt hit a session-invalid error.
	ResumeFailed bool `json:"resume_failed,omitempty"`

	// ResumeFallback is true when the runtime fell back to a fresh session
	// after a failed resume.
	ResumeFallback bool `json:"resume_fallback,omitempty"`

	// RuntimeMetadata carries runtime-private telemetry.
	RuntimeMetadata map[string]any `json:"runtime_metadata,omitempty"`
}
