package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// fakeForm stands in for the huh form: it applies scripted answers.
type fakeForm struct {
	apply func()
	err   error
}

func (f *fakeForm) Run() error {
	if f.apply != nil {
		f.apply()
	}
	return f.err
}

func writePendingReview(t *testing.T, workspacePath string, review *domain.HumanReview) {
	t.Helper()
	dir := workspace.ReviewsPath(workspacePath)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	data, err := json.Marshal(review)
	require.NoError(t, err)
	path := filepath.Join(dir, review.ReviewID+constants.ReviewPendingSuffix)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func readDecision(t *testing.T, workspacePath, reviewID string) domain.ReviewDecision {
	t.Helper()
	path := filepath.Join(workspace.ReviewsPath(workspacePath), reviewID+constants.ReviewDecisionSuffix)
	data, err := os.ReadFile(path) //#nosec G304 -- test fixture path
	require.NoError(t, err)
	var decision domain.ReviewDecision
	require.NoError(t, json.Unmarshal(data, &decision))
	return decision
}

func TestRunReview_ApproveFlag(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1", RunID: "run-1", AfterStep: 2})

	var out bytes.Buffer
	err := runReview(context.Background(), &out, ws, &reviewOptions{approve: "review-1"})

	require.NoError(t, err)
	decision := readDecision(t, ws, "review-1")
	assert.Equal(t, constants.ReviewStatusApproved, decision.Status)
	assert.Contains(t, out.String(), "review-1")
}

func TestRunReview_RejectFlagWithFeedback(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1", RunID: "run-1"})

	var out bytes.Buffer
	err := runReview(context.Background(), &out, ws, &reviewOptions{
		reject:   "review-1",
		feedback: "wrong API shape",
	})

	require.NoError(t, err)
	decision := readDecision(t, ws, "review-1")
	assert.Equal(t, constants.ReviewStatusRejected, decision.Status)
	assert.Equal(t, "wrong API shape", decision.ReviewerFeedback)
}

func TestRunReview_UnknownReviewID(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1"})

	err := runReview(context.Background(), &bytes.Buffer{}, ws, &reviewOptions{approve: "review-9"})

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrReviewNotFound)
}

func TestRunReview_BothFlagsRejected(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1"})

	err := runReview(context.Background(), &bytes.Buffer{}, ws, &reviewOptions{
		approve: "review-1",
		reject:  "review-1",
	})

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrConfigInvalid)
}

func TestRunReview_NoPendingReviews(t *testing.T) {
	ws := t.TempDir()

	var out bytes.Buffer
	err := runReview(context.Background(), &out, ws, &reviewOptions{})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "No pending reviews")
}

func TestRunReview_NonInteractiveNeedsFlags(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1"})

	original := terminalCheck
	terminalCheck = func() bool { return false }
	t.Cleanup(func() { terminalCheck = original })

	err := runReview(context.Background(), &bytes.Buffer{}, ws, &reviewOptions{})

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrNonInteractiveMode)
}

func TestRunReview_InteractiveDecision(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1", RunID: "run-1", AfterStep: 3})

	originalTerm := terminalCheck
	terminalCheck = func() bool { return true }
	t.Cleanup(func() { terminalCheck = originalTerm })

	originalForm := createReviewForm
	createReviewForm = func(_ []*domain.HumanReview, reviewID *string, approved *bool, feedback *string) formRunner {
		return &fakeForm{apply: func() {
			*reviewID = "review-1"
			*approved = false
			*feedback = "needs another pass"
		}}
	}
	t.Cleanup(func() { createReviewForm = originalForm })

	var out bytes.Buffer
	err := runReview(context.Background(), &out, ws, &reviewOptions{})

	require.NoError(t, err)
	decision := readDecision(t, ws, "review-1")
	assert.Equal(t, constants.ReviewStatusRejected, decision.Status)
	assert.Equal(t, "needs another pass", decision.ReviewerFeedback)
}

func TestLoadPendingReviews_OldestFirst(t *testing.T) {
	ws := t.TempDir()
	now := time.Now().UTC()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-b", RequestedAt: now})
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-a", RequestedAt: now.Add(-time.Hour)})

	pending, err := loadPendingReviews(workspace.ReviewsPath(ws))

	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "review-a", pending[0].ReviewID)
	assert.Equal(t, "review-b", pending[1].ReviewID)
}

func TestLoadPendingReviews_IgnoresDecisionFiles(t *testing.T) {
	ws := t.TempDir()
	writePendingReview(t, ws, &domain.HumanReview{ReviewID: "review-1"})
	dir := workspace.ReviewsPath(ws)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "review-0"+constants.ReviewDecisionSuffix), []byte("{}"), 0o600))

	pending, err := loadPendingReviews(dir)

	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "review-1", pending[0].ReviewID)
}
