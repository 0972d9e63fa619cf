package domain

import (
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
)

// HumanReview is the durable record of one human-gate rendezvous.
// The pending form is written to
// <workspace>/.sprintfoundry/reviews/<review_id>.pending.json and an
// external operator answers with <review_id>.decision.json.
type HumanReview struct {
	// ReviewID uniquely identifies the review.
	ReviewID string `json:"review_id"`

	// RunID links the review to its run.
	RunID string `json:"run_id"`

	// AfterStep is the step number the gate waits behind.
	AfterStep int `json:"after_step"`

	// Status is pending until a decision (or timeout) resolves it.
	Status constants.ReviewStatus `json:"status"`

	// Summary describes the gated work for the reviewer.
	Summary string `json:"summary,omitempty"`

	// ArtifactsToReview lists the files the reviewer should look at.
	ArtifactsToReview []string `json:"artifacts_to_review,omitempty"`

	// ReviewerFeedback carries the reviewer's free-form comment.
	ReviewerFeedback string `json:"reviewer_feedback,omitempty"`

	// RequestedAt is when the rendezvous was opened.
	RequestedAt time.Time `json:"requested_at"`

	// DecidedAt is when the decision was observed (nil while pending).
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// ReviewDecision is the shape of a <review_id>.decision.json file written by
// an external operator (monitor UI, review CLI command, or a human by hand).
type ReviewDecision struct {
	// Status is approved or rejected.
	Status constants.ReviewStatus `json:"status"`

	// ReviewerFeedback is the operator's optional comment.
	ReviewerFeedback string `json:"reviewer_feedback,omitempty"`
}
