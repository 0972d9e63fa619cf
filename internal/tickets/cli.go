package tickets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// Runner abstracts subprocess execution so tests can script provider
// behaviour without spawning processes.
type Runner interface {
	// Run executes the command and returns stdout. Stderr is folded into the
	// error.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands as real subprocesses.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //#nosec G204 -- name and args are constructed internally
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// ghIssue mirrors the fields requested from gh's JSON output.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	URL    string `json:"url"`
	Author struct {
		Login string `json:"login"`
	} `json:"author"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// GitHubCLI fetches and updates GitHub issues through the gh CLI, which the
// engine already requires for pull-request creation. Linear and Jira stay
// behind the Provider seam for external integrations; asking this provider
// for them is an error.
type GitHubCLI struct {
	runner Runner
	logger zerolog.Logger
}

// GitHubCLIOption configures a GitHubCLI.
type GitHubCLIOption func(*GitHubCLI)

// WithRunner replaces the subprocess runner, for tests.
func WithRunner(r Runner) GitHubCLIOption {
	return func(p *GitHubCLI) { p.runner = r }
}

// NewGitHubCLI returns a gh-backed ticket provider.
func NewGitHubCLI(logger zerolog.Logger, opts ...GitHubCLIOption) *GitHubCLI {
	p := &GitHubCLI{
		runner: execRunner{},
		logger: logger.With().Str("component", "tickets_gh").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fetch retrieves a GitHub issue by number or URL.
func (p *GitHubCLI) Fetch(ctx context.Context, id string, source constants.TicketSource) (*domain.Ticket, error) {
	if source != constants.SourceGitHub {
		return nil, fmt.Errorf("%w: %s (built-in provider covers github and prompt)", sferrors.ErrUnknownTicketSource, source)
	}

	out, err := p.runner.Run(ctx, "gh", "issue", "view", id,
		"--json", "number,title,body,url,author,labels")
	if err != nil {
		if strings.Contains(err.Error(), "no issues found") ||
			strings.Contains(err.Error(), "Could not resolve") {
			return nil, fmt.Errorf("%w: %s", sferrors.ErrTicketNotFound, id)
		}
		return nil, fmt.Errorf("fetch github issue %s: %w", id, err)
	}

	var issue ghIssue
	if err := json.Unmarshal(out, &issue); err != nil {
		return nil, fmt.Errorf("parse github issue %s: %w", id, err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}

	return &domain.Ticket{
		ID:          id,
		Source:      constants.SourceGitHub,
		Title:       issue.Title,
		Description: issue.Body,
		Labels:      labels,
		Priority:    priorityFromLabels(labels),
		Author:      issue.Author.Login,
		Raw:         json.RawMessage(out),
	}, nil
}

// UpdateStatus records the run outcome on the issue as a comment. GitHub has
// no workflow states beyond open/closed, so the status travels in the
// comment body and the issue itself stays open for the human merging the PR.
func (p *GitHubCLI) UpdateStatus(ctx context.Context, ticket *domain.Ticket, status, prURL string) error {
	body := fmt.Sprintf("SprintFoundry: %s", status)
	if prURL != "" {
		body += "\n\nPull request: " + prURL
	}
	if _, err := p.runner.Run(ctx, "gh", "issue", "comment", ticket.ID, "--body", body); err != nil {
		return fmt.Errorf("comment on issue %s: %w", ticket.ID, err)
	}
	p.logger.Info().Str("ticket_id", ticket.ID).Str("status", status).Msg("ticket updated")
	return nil
}

// priorityFromLabels maps provider priority labels (p0…p3) onto the ticket
// priority, defaulting to normal.
func priorityFromLabels(labels []string) constants.Priority {
	for _, l := range labels {
		switch strings.ToLower(l) {
		case "p0", "priority:p0":
			return constants.PriorityP0
		case "p1", "priority:p1":
			return constants.PriorityP1
		case "p3", "priority:p3":
			return constants.PriorityP3
		}
	}
	return constants.PriorityP2
}
