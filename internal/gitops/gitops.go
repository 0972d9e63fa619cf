// Package gitops provides version-control operations for SprintFoundry runs.
//
// The engine accesses the working tree only between agent steps: checkpoints
// after completed steps, final push, PR creation. That discipline lives in the
// scheduler; this package only exposes the operations.
package gitops

import (
	"context"

	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// Git defines the version-control operations the engine depends on.
// All operations run against a per-run workspace directory and use context
// for cancellation.
type Git interface {
	// CloneAndBranch clones the ticket's repository into the workspace and
	// checks out a fresh work branch derived from the ticket id. Returns the
	// branch name.
	CloneAndBranch(ctx context.Context, workspacePath string, ticket *domain.Ticket) (string, error)

	// CommitStepCheckpoint commits the working tree after a completed step.
	// Returns false (and no error) when there is no diff to commit. Engine
	// and runtime scratch files never enter the commit.
	CommitStepCheckpoint(ctx context.Context, workspacePath, runID string, stepNumber int, agentID string) (bool, error)

	// CommitAndPush commits any residual changes with the given message and
	// pushes the work branch to origin. A clean tree still pushes.
	CommitAndPush(ctx context.Context, workspacePath, message string) error

	// CreatePullRequest opens a pull request for the run's work branch and
	// returns its URL.
	CreatePullRequest(ctx context.Context, workspacePath string, run *domain.TaskRun) (string, error)
}
