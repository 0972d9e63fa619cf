package tickets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/logging"
	"github.com/sprintfoundry/sprintfoundry/internal/testutil"
)

// scriptedRunner records commands and returns canned stdout/errors.
type scriptedRunner struct {
	commands [][]string
	out      []byte
	err      error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.commands = append(r.commands, append([]string{name}, args...))
	return r.out, r.err
}

func TestGitHubCLI_Fetch(t *testing.T) {
	runner := &scriptedRunner{out: []byte(`{
		"number": 42,
		"title": "Add webhook retries",
		"body": "Retries with backoff.",
		"url": "https://github.com/acme/api/issues/42",
		"author": {"login": "octocat"},
		"labels": [{"name": "backend"}, {"name": "p1"}]
	}`)}
	provider := NewGitHubCLI(logging.Nop(), WithRunner(runner))

	ticket, err := provider.Fetch(context.Background(), "42", constants.SourceGitHub)

	require.NoError(t, err)
	assert.Equal(t, "42", ticket.ID)
	assert.Equal(t, constants.SourceGitHub, ticket.Source)
	assert.Equal(t, "Add webhook retries", ticket.Title)
	assert.Equal(t, "Retries with backoff.", ticket.Description)
	assert.Equal(t, []string{"backend", "p1"}, ticket.Labels)
	assert.Equal(t, constants.PriorityP1, ticket.Priority)
	assert.Equal(t, "octocat", ticket.Author)
	assert.NotEmpty(t, ticket.Raw)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, []string{"gh", "issue", "view", "42", "--json", "number,title,body,url,author,labels"}, runner.commands[0])
}

func TestGitHubCLI_Fetch_DefaultPriority(t *testing.T) {
	runner := &scriptedRunner{out: []byte(`{"number": 7, "title": "t", "labels": []}`)}
	provider := NewGitHubCLI(logging.Nop(), WithRunner(runner))

	ticket, err := provider.Fetch(context.Background(), "7", constants.SourceGitHub)

	require.NoError(t, err)
	assert.Equal(t, constants.PriorityP2, ticket.Priority)
}

func TestGitHubCLI_Fetch_WrongSource(t *testing.T) {
	provider := NewGitHubCLI(logging.Nop(), WithRunner(&scriptedRunner{}))

	_, err := provider.Fetch(context.Background(), "ENG-1", constants.SourceLinear)

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrUnknownTicketSource)
}

func TestGitHubCLI_Fetch_RunnerError(t *testing.T) {
	runner := &scriptedRunner{err: testutil.ErrMockTickets}
	provider := NewGitHubCLI(logging.Nop(), WithRunner(runner))

	_, err := provider.Fetch(context.Background(), "42", constants.SourceGitHub)

	require.Error(t, err)
	require.ErrorIs(t, err, testutil.ErrMockTickets)
}

func TestGitHubCLI_Fetch_BadJSON(t *testing.T) {
	runner := &scriptedRunner{out: []byte("not json")}
	provider := NewGitHubCLI(logging.Nop(), WithRunner(runner))

	_, err := provider.Fetch(context.Background(), "42", constants.SourceGitHub)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse github issue")
}

func TestGitHubCLI_UpdateStatus(t *testing.T) {
	runner := &scriptedRunner{}
	provider := NewGitHubCLI(logging.Nop(), WithRunner(runner))
	ticket := &domain.Ticket{ID: "42", Source: constants.SourceGitHub}

	err := provider.UpdateStatus(context.Background(), ticket, "in_review", "https://github.com/acme/api/pull/9")

	require.NoError(t, err)
	require.Len(t, runner.commands, 1)
	cmd := runner.commands[0]
	assert.Equal(t, []string{"gh", "issue", "comment", "42", "--body"}, cmd[:5])
	assert.Contains(t, cmd[5], "in_review")
	assert.Contains(t, cmd[5], "https://github.com/acme/api/pull/9")
}

func TestPriorityFromLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		want   constants.Priority
	}{
		{name: "p0", labels: []string{"bug", "P0"}, want: constants.PriorityP0},
		{name: "prefixed", labels: []string{"priority:p1"}, want: constants.PriorityP1},
		{name: "low", labels: []string{"p3"}, want: constants.PriorityP3},
		{name: "none", labels: []string{"backend"}, want: constants.PriorityP2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, priorityFromLabels(tt.labels))
		})
	}
}
