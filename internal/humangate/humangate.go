// Package humangate implements the human-review rendezvous the scheduler
// blocks on at required gates.
//
// The production channel is filesystem-based: the engine writes a pending
// file under <workspace>/.sprintfoundry/reviews/ and polls for a decision
// file written by an external operator (monitor UI, `sprintfoundry review`,
// or a human by hand). Tests use the in-memory channel.
package humangate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/clock"
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// timedOutFeedback is the reviewer feedback recorded when a gate expires.
const timedOutFeedback = "Human review timed out"

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Channel is the rendezvous seam between the scheduler and a human reviewer.
type Channel interface {
	// Request opens a rendezvous for the review.
	Request(ctx context.Context, review *domain.HumanReview) error

	// Await blocks until a decision arrives or the timeout expires. On
	// timeout it returns a rejected decision with feedback
	// "Human review timed out" and no error. The rendezvous is closed in
	// either case.
	Await(ctx context.Context, review *domain.HumanReview, timeout time.Duration) (*domain.ReviewDecision, error)
}

// FilesystemChannel implements Channel over pending/decision JSON files.
type FilesystemChannel struct {
	reviewsDir string
	clock      clock.Clock
	poll       time.Duration
	logger     zerolog.Logger
}

// NewFilesystemChannel returns a Channel rooted at the workspace's reviews
// directory.
func NewFilesystemChannel(reviewsDir string, clk clock.Clock, logger zerolog.Logger) *FilesystemChannel {
	return &FilesystemChannel{
		reviewsDir: reviewsDir,
		clock:      clk,
		poll:       constants.HumanGatePollInterval,
		logger:     logger.With().Str("component", "humangate").Logger(),
	}
}

// PendingPath returns the pending file path for a review id.
func (c *FilesystemChannel) PendingPath(reviewID string) string {
	return filepath.Join(c.reviewsDir, reviewID+constants.ReviewPendingSuffix)
}

// DecisionPath returns the decision file path for a review id.
func (c *FilesystemChannel) DecisionPath(reviewID string) string {
	return filepath.Join(c.reviewsDir, reviewID+constants.ReviewDecisionSuffix)
}

// Request writes the pending review file for the operator to discover.
func (c *FilesystemChannel) Request(_ context.Context, review *domain.HumanReview) error {
	if err := os.MkdirAll(c.reviewsDir, dirPerm); err != nil {
		return fmt.Errorf("request review: %w", err)
	}
	data, err := json.MarshalIndent(review, "", "  ")
	if err != nil {
		return fmt.Errorf("request review: %w", err)
	}
	if err := os.WriteFile(c.PendingPath(review.ReviewID), data, filePerm); err != nil {
		return fmt.Errorf("request review: %w", err)
	}
	c.logger.Info().
		Str("review_id", review.ReviewID).
		Int("after_step", review.AfterStep).
		Msg("human review requested")
	return nil
}

// Await polls for the decision file every second until it appears or the
// timeout elapses. The pending file is removed once a decision (or timeout)
// is observed.
func (c *FilesystemChannel) Await(ctx context.Context, review *domain.HumanReview, timeout time.Duration) (*domain.ReviewDecision, error) {
	defer func() {
		if err := os.Remove(c.PendingPath(review.ReviewID)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn().Err(err).Str("review_id", review.ReviewID).Msg("pending review file not removed")
		}
	}()

	deadline := c.clock.Now().Add(timeout)
	for {
		decision, found, err := c.readDecision(review.ReviewID)
		if err != nil {
			return nil, err
		}
		if found {
			return decision, nil
		}

		if !c.clock.Now().Before(deadline) {
			c.logger.Warn().
				Str("review_id", review.ReviewID).
				Dur("timeout", timeout).
				Msg("human review timed out")
			return &domain.ReviewDecision{
				Status:           constants.ReviewStatusRejected,
				ReviewerFeedback: timedOutFeedback,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.poll):
		}
	}
}

// readDecision reads and validates the decision file if present.
func (c *FilesystemChannel) readDecision(reviewID string) (*domain.ReviewDecision, bool, error) {
	data, err := os.ReadFile(c.DecisionPath(reviewID)) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read review decision: %w", err)
	}

	var decision domain.ReviewDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, false, fmt.Errorf("read review decision: %w", err)
	}
	if decision.Status != constants.ReviewStatusApproved && decision.Status != constants.ReviewStatusRejected {
		return nil, false, fmt.Errorf("review decision %q: %w", decision.Status, sferrors.ErrInvalidTransition)
	}
	return &decision, true, nil
}

// MemoryChannel is an in-process Channel for tests. Decisions are delivered
// with Decide, keyed by review id.
type MemoryChannel struct {
	mu        sync.Mutex
	decisions map[string]chan *domain.ReviewDecision
	requested []*domain.HumanReview
}

// NewMemoryChannel returns an empty in-memory channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{decisions: make(map[string]chan *domain.ReviewDecision)}
}

// Request records the review so tests can observe it.
func (c *MemoryChannel) Request(_ context.Context, review *domain.HumanReview) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requested = append(c.requested, review)
	c.channelFor(review.ReviewID)
	return nil
}

// Requested returns the reviews opened so far.
func (c *MemoryChannel) Requested() []*domain.HumanReview {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.HumanReview, len(c.requested))
	copy(out, c.requested)
	return out
}

// Decide delivers a decision for a review id. Await pending on that id
// unblocks immediately.
func (c *MemoryChannel) Decide(reviewID string, decision *domain.ReviewDecision) {
	c.mu.Lock()
	ch := c.channelFor(reviewID)
	c.mu.Unlock()
	ch <- decision
}

// Await blocks for a delivered decision, the timeout, or ctx cancellation.
func (c *MemoryChannel) Await(ctx context.Context, review *domain.HumanReview, timeout time.Duration) (*domain.ReviewDecision, error) {
	c.mu.Lock()
	ch := c.channelFor(review.ReviewID)
	c.mu.Unlock()

	select {
	case decision := <-ch:
		return decision, nil
	case <-time.After(timeout):
		return &domain.ReviewDecision{
			Status:           constants.ReviewStatusRejected,
			ReviewerFeedback: timedOutFeedback,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MemoryChannel) channelFor(reviewID string) chan *domain.ReviewDecision {
	ch, ok := c.decisions[reviewID]
	if !ok {
		ch = make(chan *domain.ReviewDecision, 1)
		c.decisions[reviewID] = ch
	}
	return ch
}
