package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// scriptedExecutor replays canned CLI behaviour and records the commands it
// saw. Safe for concurrent use; parallel-group steps share one runtime.
type scriptedExecutor struct {
	mu       sync.Mutex
	commands []*exec.Cmd
	respond  func(call int, cmd *exec.Cmd) ([]byte, []byte, error)
}

func (e *scriptedExecutor) Execute(_ context.Context, cmd *exec.Cmd) ([]byte, []byte, error) {
	e.mu.Lock()
	e.commands = append(e.commands, cmd)
	call := len(e.commands)
	e.mu.Unlock()
	return e.respond(call, cmd)
}

func envelope(t *testing.T, sessionID string, isError bool, result string, tokens int) []byte {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"type":           "result",
		"is_error":       isError,
		"result":         result,
		"session_id":     sessionID,
		"total_cost_usd": 0.25,
		"usage": map[string]any{
			"input_tokens":  tokens / 2,
			"output_tokens": tokens - tokens/2,
		},
		"num_turns": 3,
	})
	require.NoError(t, err)
	return out
}

func writeResultFile(t *testing.T, dir string, result domain.AgentResult) {
	t.Helper()
	data, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, constants.AgentResultFile(1, 1)), data, 0o600))
}

func stepRequest(dir string) StepRequest {
	return StepRequest{
		RunID:         "run-1",
		Step:          domain.PlanStep{StepNumber: 1, Agent: "developer", Task: "implement the endpoint"},
		Attempt:       1,
		WorkspacePath: dir,
		Model:         domain.ModelConfig{Model: "claude-sonnet-4-5", Provider: "claude-cli"},
		TokenBudget:   1000,
	}
}

func TestRunStep_ReadsAgentResultFile(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, cmd *exec.Cmd) ([]byte, []byte, error) {
		writeResultFile(t, cmd.Dir, domain.AgentResult{
			Status:           constants.AgentStatusComplete,
			Summary:          "endpoint added",
			ArtifactsCreated: []string{"api/health.go"},
		})
		return envelope(t, "sess-abc", false, "done", 500), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	resp, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.NoError(t, err)
	assert.Equal(t, constants.AgentStatusComplete, resp.Result.Status)
	assert.Equal(t, "endpoint added", resp.Result.Summary)
	assert.Equal(t, "sess-abc", resp.Usage.RuntimeID)
	assert.Equal(t, 500, resp.Usage.TokensUsed)
	assert.InDelta(t, 0.25, resp.Usage.CostUSD, 0.001)
	assert.False(t, resp.Usage.ResumeUsed)

	// Task file materialised; model flag passed through.
	task, err := os.ReadFile(filepath.Join(dir, constants.AgentTaskFile(1, 1)))
	require.NoError(t, err)
	assert.Contains(t, string(task), "implement the endpoint")
	assert.Contains(t, string(task), constants.AgentResultFile(1, 1))

	require.Len(t, executor.commands, 1)
	assert.Contains(t, executor.commands[0].Args, "--model")
	assert.Contains(t, executor.commands[0].Args, "claude-sonnet-4-5")
	assert.Equal(t, dir, executor.commands[0].Dir)
}

func TestRunStep_SynthesizesResultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "sess-x", false, "answered in prose", 100), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	resp, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.NoError(t, err)
	assert.Equal(t, constants.AgentStatusComplete, resp.Result.Status)
	assert.Equal(t, "answered in prose", resp.Result.Summary)
}

func TestRunStep_EnvelopeErrorBecomesFailedResult(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "sess-x", true, "credit exhausted", 10), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	resp, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.NoError(t, err)
	assert.Equal(t, constants.AgentStatusFailed, resp.Result.Status)
	assert.Equal(t, "credit exhausted", resp.Result.Summary)
}

func TestRunStep_StaleResultRemoved(t *testing.T) {
	dir := t.TempDir()
	writeResultFile(t, dir, domain.AgentResult{Status: constants.AgentStatusComplete, Summary: "stale"})

	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "sess-x", false, "fresh", 10), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	resp, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Result.Summary)
}

func TestRunStep_ResumePassesFlag(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "sess-abc", false, "resumed", 50), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	req := stepRequest(dir)
	req.ResumeSessionID = "sess-abc"
	req.ResumeReason = ResumeReasonReworkRetry

	resp, err := rt.RunStep(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.Usage.ResumeUsed)
	assert.False(t, resp.Usage.ResumeFallback)
	require.Len(t, executor.commands, 1)
	assert.Contains(t, executor.commands[0].Args, "--resume")
	assert.Contains(t, executor.commands[0].Args, "sess-abc")

	task, err := os.ReadFile(filepath.Join(dir, constants.AgentTaskFile(1, 1)))
	require.NoError(t, err)
	assert.Contains(t, string(task), ResumeReasonReworkRetry)
}

func TestRunStep_SessionInvalidFallsBackOnce(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(call int, _ *exec.Cmd) ([]byte, []byte, error) {
		if call == 1 {
			return nil, []byte("Error: no conversation found with session id sess-old"), errors.New("exit status 1")
		}
		return envelope(t, "sess-new", false, "fresh session", 50), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	req := stepRequest(dir)
	req.ResumeSessionID = "sess-old"

	resp, err := rt.RunStep(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, executor.commands, 2)
	assert.NotContains(t, executor.commands[1].Args, "--resume")
	assert.True(t, resp.Usage.ResumeUsed)
	assert.True(t, resp.Usage.ResumeFailed)
	assert.True(t, resp.Usage.ResumeFallback)
	assert.Equal(t, "sess-new", resp.Usage.RuntimeID)
}

func TestRunStep_NonSessionErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return nil, []byte("rate limited"), errors.New("exit status 1")
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	req := stepRequest(dir)
	req.ResumeSessionID = "sess-old"

	_, err := rt.RunStep(context.Background(), req)

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrStepFailed)
	assert.Len(t, executor.commands, 1)
}

func TestRunStep_MintsLocalIDWithoutSession(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "", false, "ok", 10), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	resp, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.NoError(t, err)
	assert.True(t, len(resp.Usage.RuntimeID) > 0)
	assert.False(t, IsResumableSessionID(resp.Usage.RuntimeID))
}

func TestRunStep_UnknownResultStatusRejected(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, cmd *exec.Cmd) ([]byte, []byte, error) {
		writeResultFile(t, cmd.Dir, domain.AgentResult{Status: "half-done"})
		return envelope(t, "sess-x", false, "ok", 10), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	_, err := rt.RunStep(context.Background(), stepRequest(dir))

	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrUnknownAgentResultStatus)
}

func TestRunStep_WritesAttemptLog(t *testing.T) {
	dir := t.TempDir()
	executor := &scriptedExecutor{respond: func(_ int, _ *exec.Cmd) ([]byte, []byte, error) {
		return envelope(t, "sess-x", false, "ok", 10), []byte("debug chatter"), nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	_, err := rt.RunStep(context.Background(), stepRequest(dir))
	require.NoError(t, err)

	log, err := os.ReadFile(filepath.Join(dir, ".claude-runtime.step-1.attempt-1.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "debug chatter")
}

func TestRunStep_ConcurrentStepsKeepScratchFilesSeparate(t *testing.T) {
	dir := t.TempDir()

	// The executor plays an agent that reads its own task file and answers
	// with its own name. If concurrent steps shared scratch files, a member
	// would see its sibling's prompt or result.
	executor := &scriptedExecutor{respond: func(_ int, cmd *exec.Cmd) ([]byte, []byte, error) {
		prompt, err := io.ReadAll(cmd.Stdin)
		require.NoError(t, err)
		header := strings.SplitN(string(prompt), "\n", 2)[0] // "# Step N: agent"
		fields := strings.Fields(header)
		step, err := strconv.Atoi(strings.TrimSuffix(fields[2], ":"))
		require.NoError(t, err)
		agent := fields[3]

		task, err := os.ReadFile(filepath.Join(cmd.Dir, constants.AgentTaskFile(step, 1)))
		require.NoError(t, err)
		assert.Contains(t, string(task), "work for "+agent)

		data, err := json.Marshal(domain.AgentResult{Status: constants.AgentStatusComplete, Summary: agent})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(cmd.Dir, constants.AgentResultFile(step, 1)), data, 0o600))
		return envelope(t, "sess-"+agent, false, "done", 10), nil, nil
	}}
	rt := NewCLIRuntime(zerolog.Nop(), WithExecutor(executor))

	agents := map[int]string{1: "developer-frontend", 2: "developer-backend"}
	summaries := make([]string, len(agents)+1)
	var wg sync.WaitGroup
	for n, agent := range agents {
		wg.Add(1)
		go func(n int, agent string) {
			defer wg.Done()
			req := stepRequest(dir)
			req.Step = domain.PlanStep{StepNumber: n, Agent: agent, Task: "work for " + agent}
			resp, err := rt.RunStep(context.Background(), req)
			if assert.NoError(t, err) {
				summaries[n] = resp.Result.Summary
			}
		}(n, agent)
	}
	wg.Wait()

	assert.Equal(t, "developer-frontend", summaries[1])
	assert.Equal(t, "developer-backend", summaries[2])
}

func TestBinaryFor(t *testing.T) {
	assert.Equal(t, "claude", binaryFor(""))
	assert.Equal(t, "claude", binaryFor("claude-cli"))
	assert.Equal(t, "codex", binaryFor("codex-cli"))
	assert.Equal(t, "gemini", binaryFor("gemini-cli"))
}

func TestIsSessionInvalid(t *testing.T) {
	assert.True(t, isSessionInvalid(errors.New("no conversation found with session id x")))
	assert.True(t, isSessionInvalid(errors.New("session expired")))
	assert.False(t, isSessionInvalid(errors.New("rate limited")))
	assert.False(t, isSessionInvalid(errors.New("session resumed fine but disk full")))
}
