package gitops

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// botOwnedPathspecs exclude engine and runtime scratch files from every
// commit. The patterns are git pathspec magic, applied on top of the
// full-tree add.
//
//nolint:gochecknoglobals // Read-only lookup table
var botOwnedPathspecs = []string{
	":(exclude)CLAUDE.md",
	":(exclude)" + constants.EventLogFileName,
	":(exclude)" + constants.StateDir,
	":(exclude)" + constants.ArtifactsDir,
	":(exclude)" + constants.AgentProfileFileName,
	":(exclude,glob)" + constants.AgentTaskFilePrefix + "*",
	":(exclude,glob)" + constants.AgentResultFilePrefix + "*",
	":(exclude)" + constants.AgentContextDir,
	":(exclude,glob).*-runtime.step-*",
}

// CLI runs git and gh as subprocesses. It is the production Git
// implementation; tests substitute a mock at the Git seam.
type CLI struct {
	repoURL    string
	baseBranch string
	logger     zerolog.Logger
}

// NewCLI returns a subprocess-backed Git implementation bound to the
// project's repository. baseBranch defaults to "main" when empty.
func NewCLI(repoURL, baseBranch string, logger zerolog.Logger) *CLI {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &CLI{
		repoURL:    repoURL,
		baseBranch: baseBranch,
		logger:     logger.With().Str("component", "gitops").Logger(),
	}
}

// run executes a git command in workDir and returns trimmed stdout.
// Errors are wrapped with ErrGitOperation and include stderr.
func (c *CLI) run(ctx context.Context, workDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //#nosec G204 -- args are constructed internally, not user input
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if stderr.Len() > 0 {
			return "", fmt.Errorf("git %s failed: %s: %w", args[0], strings.TrimSpace(stderr.String()), sferrors.ErrGitOperation)
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], sferrors.ErrGitOperation)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// CloneAndBranch clones the project repository into the workspace and checks
// out a work branch named sprintfoundry/<ticket-id> from the base branch.
func (c *CLI) CloneAndBranch(ctx context.Context, workspacePath string, ticket *domain.Ticket) (string, error) {
	if c.repoURL == "" {
		return "", fmt.Errorf("repo url: %w", sferrors.ErrEmptyValue)
	}

	if _, err := c.run(ctx, "", "clone", "--branch", c.baseBranch, "--", c.repoURL, workspacePath); err != nil {
		return "", err
	}

	branch := BranchName(ticket)
	if _, err := c.run(ctx, workspacePath, "checkout", "-b", branch); err != nil {
		return "", err
	}

	c.logger.Info().
		Str("ticket_id", ticket.ID).
		Str("branch", branch).
		Msg("workspace cloned and branched")
	return branch, nil
}

// BranchName derives the work branch name for a ticket.
func BranchName(ticket *domain.Ticket) string {
	id := strings.ToLower(strings.ReplaceAll(ticket.ID, " ", "-"))
	return "sprintfoundry/" + id
}

// CommitStepCheckpoint stages everything except bot-owned files and commits.
// Returns false when staging produced no diff.
func (c *CLI) CommitStepCheckpoint(ctx context.Context, workspacePath, runID string, stepNumber int, agentID string) (bool, error) {
	staged, err := c.stage(ctx, workspacePath)
	if err != nil {
		return false, err
	}
	if !staged {
		c.logger.Debug().
			Str("run_id", runID).
			Int("step", stepNumber).
			Msg("checkpoint skipped: no diff")
		return false, nil
	}

	message := fmt.Sprintf("chore(%s): step %d checkpoint by %s", runID, stepNumber, agentID)
	if _, err := c.run(ctx, workspacePath, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// CommitAndPush commits residual changes (if any) and pushes the current
// branch to origin.
func (c *CLI) CommitAndPush(ctx context.Context, workspacePath, message string) error {
	staged, err := c.stage(ctx, workspacePath)
	if err != nil {
		return err
	}
	if staged {
		if _, err := c.run(ctx, workspacePath, "commit", "-m", message); err != nil {
			return err
		}
	}

	branch, err := c.run(ctx, workspacePath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return err
	}
	_, err = c.run(ctx, workspacePath, "push", "--set-upstream", "origin", branch)
	return err
}

// stage adds the full tree minus bot-owned paths and reports whether anything
// ended up staged.
func (c *CLI) stage(ctx context.Context, workspacePath string) (bool, error) {
	args := append([]string{"add", "-A", "--", "."}, botOwnedPathspecs...)
	if _, err := c.run(ctx, workspacePath, args...); err != nil {
		return false, err
	}

	// diff --cached --quiet exits 1 when there are staged changes.
	out, err := c.run(ctx, workspacePath, "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// CreatePullRequest opens a PR via the gh CLI and returns its URL.
func (c *CLI) CreatePullRequest(ctx context.Context, workspacePath string, run *domain.TaskRun) (string, error) {
	title := run.Ticket.Title
	if title == "" {
		title = "SprintFoundry run " + run.RunID
	}

	body := prBody(run)

	cmd := exec.CommandContext(ctx, "gh", "pr", "create", //#nosec G204 -- args are constructed internally, not user input
		"--title", title,
		"--body", body,
		"--base", c.baseBranch,
		"--head", run.BranchName,
	)
	cmd.Dir = workspacePath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("gh pr create failed: %s: %w", strings.TrimSpace(stderr.String()), sferrors.ErrPRCreationFailed)
	}

	url := lastLine(stdout.String())
	if !strings.HasPrefix(url, "http") {
		return "", fmt.Errorf("unexpected gh output %q: %w", url, sferrors.ErrPRCreationFailed)
	}
	return url, nil
}

// prBody renders the PR description from the run's ticket and step history.
func prBody(run *domain.TaskRun) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Resolves %s (%s).\n\n", run.Ticket.ID, run.Ticket.Source))
	if run.Ticket.Description != "" {
		b.WriteString(run.Ticket.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("## Steps\n")
	for i := range run.Steps {
		step := &run.Steps[i]
		b.WriteString(fmt.Sprintf("- step %d (%s): %s\n", step.StepNumber, step.Agent, step.Status))
	}
	b.WriteString(fmt.Sprintf("\nTokens used: %d\n", run.TotalTokensUsed))
	return b.String()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
