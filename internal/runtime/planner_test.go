package runtime

import (
	"context"
	"encoding/json"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

func newTestPlanner(responses ...string) (*CLIPlanner, *scriptedExecutor) {
	executor := &scriptedExecutor{}
	executor.respond = func(call int, _ *exec.Cmd) ([]byte, []byte, error) {
		idx := call - 1
		if idx >= len(responses) {
			idx = len(responses) - 1
		}
		out, _ := json.Marshal(map[string]any{"result": responses[idx]})
		return out, nil, nil
	}
	p := NewCLIPlanner(
		domain.ModelConfig{Model: "claude-opus-4-1", Provider: "claude-cli"},
		"", zerolog.Nop(), WithPlannerExecutor(executor))
	return p, executor
}

func testTicket() *domain.Ticket {
	return &domain.Ticket{ID: "ENG-1", Source: constants.SourceLinear, Title: "Add endpoint"}
}

func TestGeneratePlan_ParsesBareJSON(t *testing.T) {
	p, executor := newTestPlanner(`{
		"plan_id": "plan-1",
		"steps": [
			{"step_number": 1, "agent": "developer", "task": "implement"},
			{"step_number": 2, "agent": "qa", "task": "verify", "depends_on": [1]}
		]
	}`)

	plan, err := p.GeneratePlan(context.Background(), testTicket(), nil, nil, t.TempDir())

	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "ENG-1", plan.TicketID)
	assert.Equal(t, "developer", plan.Steps[0].Agent)

	require.Len(t, executor.commands, 1)
	assert.Contains(t, executor.commands[0].Args, "--model")
	assert.Contains(t, executor.commands[0].Args, "claude-opus-4-1")
}

func TestGeneratePlan_StripsMarkdownFences(t *testing.T) {
	p, _ := newTestPlanner("Here is the plan:\n```json\n" +
		`{"plan_id": "plan-1", "steps": [{"step_number": 1, "agent": "developer", "task": "go"}]}` +
		"\n```\nLet me know if you need changes.")

	plan, err := p.GeneratePlan(context.Background(), testTicket(), nil, nil, t.TempDir())

	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
}

func TestGeneratePlan_UnparseableOutputSurfacesRaw(t *testing.T) {
	p, _ := newTestPlanner("I could not produce a plan because the ticket is unclear")

	_, err := p.GeneratePlan(context.Background(), testTicket(), nil, nil, t.TempDir())

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrPlannerOutput)
	assert.Contains(t, err.Error(), "ticket is unclear")
}

func TestGeneratePlan_PromptCarriesTicketAndAgents(t *testing.T) {
	p, executor := newTestPlanner(`{"plan_id": "p", "steps": [{"step_number": 1, "agent": "developer", "task": "go"}]}`)
	agents := []domain.AgentDefinition{{ID: "developer", Description: "Implements the change"}}

	_, err := p.GeneratePlan(context.Background(), testTicket(), agents, nil, t.TempDir())
	require.NoError(t, err)

	require.Len(t, executor.commands, 1)
	stdin := executor.commands[0].Stdin
	require.NotNil(t, stdin)
	buf := make([]byte, 16384)
	n, _ := stdin.Read(buf)
	prompt := string(buf[:n])
	assert.Contains(t, prompt, "ENG-1")
	assert.Contains(t, prompt, "developer: Implements the change")
	assert.Contains(t, prompt, "acyclic")
}

func TestPlanRework_RenumbersOutOfConventionSteps(t *testing.T) {
	p, _ := newTestPlanner(`{"steps": [
		{"step_number": 1, "agent": "developer", "task": "fix the regression"},
		{"step_number": 2, "agent": "developer", "task": "update the fixture"}
	]}`)

	rp, err := p.PlanRework(context.Background(), ReworkRequest{
		Ticket:     testTicket(),
		FailedStep: domain.PlanStep{StepNumber: 3, Agent: "qa"},
		Failure:    domain.AgentResult{Status: constants.AgentStatusNeedsRework, ReworkReason: "tests red"},
	})

	require.NoError(t, err)
	require.Len(t, rp.Steps, 2)
	assert.Equal(t, 903, rp.Steps[0].StepNumber)
	assert.Equal(t, 904, rp.Steps[1].StepNumber)
}

func TestPlanRework_KeepsConventionalNumbers(t *testing.T) {
	p, _ := newTestPlanner(`{"steps": [{"step_number": 905, "agent": "developer", "task": "fix"}]}`)

	rp, err := p.PlanRework(context.Background(), ReworkRequest{
		FailedStep: domain.PlanStep{StepNumber: 3},
		Failure:    domain.AgentResult{ReworkReason: "broken"},
	})

	require.NoError(t, err)
	require.Len(t, rp.Steps, 1)
	assert.Equal(t, 905, rp.Steps[0].StepNumber)
}

func TestPlanRework_EmptyPlanRejected(t *testing.T) {
	p, _ := newTestPlanner(`{"steps": []}`)

	_, err := p.PlanRework(context.Background(), ReworkRequest{
		FailedStep: domain.PlanStep{StepNumber: 1},
	})

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrPlannerOutput)
}

func TestPlanRework_PromptCarriesHistory(t *testing.T) {
	p, executor := newTestPlanner(`{"steps": [{"step_number": 901, "agent": "developer", "task": "fix"}]}`)

	_, err := p.PlanRework(context.Background(), ReworkRequest{
		FailedStep:    domain.PlanStep{StepNumber: 1, Agent: "qa"},
		Failure:       domain.AgentResult{Status: constants.AgentStatusNeedsRework, ReworkReason: "flaky test"},
		ReworkAttempt: 2,
		PreviousReworkResults: []domain.AgentResult{
			{ReworkReason: "missing null check"},
		},
	})
	require.NoError(t, err)

	require.Len(t, executor.commands, 1)
	buf := make([]byte, 16384)
	n, _ := executor.commands[0].Stdin.Read(buf)
	prompt := string(buf[:n])
	assert.Contains(t, prompt, "flaky test")
	assert.Contains(t, prompt, "missing null check")
	assert.Contains(t, prompt, "901")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "plain fence", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "prose around object", in: "Sure:\n{\"a\": 1}\nDone.", want: `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(extractJSON(tt.in)))
		})
	}
}
