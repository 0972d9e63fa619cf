package humangate

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/clock"
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	"github.com/sprintfoundry/sprintfoundry/internal/logging"
)

func newTestChannel(t *testing.T) *FilesystemChannel {
	t.Helper()
	c := NewFilesystemChannel(t.TempDir(), clock.RealClock{}, logging.Nop())
	c.poll = 10 * time.Millisecond
	return c
}

func pendingReview() *domain.HumanReview {
	return &domain.HumanReview{
		ReviewID:  "rev-1",
		RunID:     "run-1",
		AfterStep: 3,
		Status:    constants.ReviewStatusPending,
		Summary:   "security changes",
	}
}

func TestFilesystemChannel_Request_WritesPendingFile(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()

	require.NoError(t, c.Request(context.Background(), review))

	data, err := os.ReadFile(c.PendingPath("rev-1")) //#nosec G304 -- test-owned path
	require.NoError(t, err)

	var onDisk domain.HumanReview
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "run-1", onDisk.RunID)
	assert.Equal(t, 3, onDisk.AfterStep)
}

func TestFilesystemChannel_Await_Approved(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	decision := domain.ReviewDecision{
		Status:           constants.ReviewStatusApproved,
		ReviewerFeedback: "looks good",
	}
	data, err := json.Marshal(decision)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.DecisionPath("rev-1"), data, 0o600))

	got, err := c.Await(context.Background(), review, time.Second)

	require.NoError(t, err)
	assert.Equal(t, constants.ReviewStatusApproved, got.Status)
	assert.Equal(t, "looks good", got.ReviewerFeedback)
	assert.NoFileExists(t, c.PendingPath("rev-1"))
}

func TestFilesystemChannel_Await_DecisionArrivesLater(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	go func() {
		time.Sleep(30 * time.Millisecond)
		data, _ := json.Marshal(domain.ReviewDecision{Status: constants.ReviewStatusRejected, ReviewerFeedback: "redo"})
		_ = os.WriteFile(c.DecisionPath("rev-1"), data, 0o600)
	}()

	got, err := c.Await(context.Background(), review, 2*time.Second)

	require.NoError(t, err)
	assert.Equal(t, constants.ReviewStatusRejected, got.Status)
	assert.Equal(t, "redo", got.ReviewerFeedback)
}

func TestFilesystemChannel_Await_TimeoutRejects(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	got, err := c.Await(context.Background(), review, 0)

	require.NoError(t, err)
	assert.Equal(t, constants.ReviewStatusRejected, got.Status)
	assert.Equal(t, "Human review timed out", got.ReviewerFeedback)
	assert.NoFileExists(t, c.PendingPath("rev-1"))
}

func TestFilesystemChannel_Await_ContextCancelled(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Await(ctx, review, time.Minute)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilesystemChannel_Await_InvalidDecisionStatus(t *testing.T) {
	c := newTestChannel(t)
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))
	require.NoError(t, os.WriteFile(c.DecisionPath("rev-1"), []byte(`{"status":"maybe"}`), 0o600))

	_, err := c.Await(context.Background(), review, time.Second)

	require.Error(t, err)
}

func TestMemoryChannel_Decide(t *testing.T) {
	c := NewMemoryChannel()
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	go c.Decide("rev-1", &domain.ReviewDecision{Status: constants.ReviewStatusApproved})

	got, err := c.Await(context.Background(), review, time.Second)
	require.NoError(t, err)
	assert.Equal(t, constants.ReviewStatusApproved, got.Status)
	require.Len(t, c.Requested(), 1)
}

func TestMemoryChannel_Timeout(t *testing.T) {
	c := NewMemoryChannel()
	review := pendingReview()
	require.NoError(t, c.Request(context.Background(), review))

	got, err := c.Await(context.Background(), review, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, constants.ReviewStatusRejected, got.Status)
	assert.Equal(t, "Human review timed out", got.ReviewerFeedback)
}
