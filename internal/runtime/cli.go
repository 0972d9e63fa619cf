package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// Executor abstracts subprocess execution so tests can script CLI behaviour
// without spawning processes.
type Executor interface {
	// Execute runs the command and returns stdout, stderr, and any error.
	Execute(ctx context.Context, cmd *exec.Cmd) (stdout, stderr []byte, err error)
}

// DefaultExecutor runs commands as real subprocesses.
type DefaultExecutor struct{}

// Execute runs the command and captures its output.
func (DefaultExecutor) Execute(_ context.Context, cmd *exec.Cmd) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// cliEnvelope is the JSON envelope agent CLIs print in non-interactive JSON
// mode.
type cliEnvelope struct {
	Type         string         `json:"type,omitempty"`
	Subtype      string         `json:"subtype,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
	Result       string         `json:"result,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	TotalCostUSD float64        `json:"total_cost_usd,omitempty"`
	Usage        map[string]any `json:"usage,omitempty"`
	NumTurns     int            `json:"num_turns,omitempty"`
}

// CLIRuntime runs agent steps through a local agent CLI (claude, codex) in
// non-interactive JSON mode. The task prompt is materialised as a
// step/attempt-scoped .agent-task file, the agent's structured output is read
// back from the matching .agent-result file, and per-attempt CLI logs land in
// step-prefixed files. Every scratch filename carries the step and attempt so
// parallel-group members never read or clobber each other's files.
type CLIRuntime struct {
	executor Executor
	logger   zerolog.Logger
}

// CLIRuntimeOption configures a CLIRuntime.
type CLIRuntimeOption func(*CLIRuntime)

// WithExecutor replaces the subprocess executor, for tests.
func WithExecutor(e Executor) CLIRuntimeOption {
	return func(r *CLIRuntime) { r.executor = e }
}

// NewCLIRuntime returns a CLI-backed agent runtime.
func NewCLIRuntime(logger zerolog.Logger, opts ...CLIRuntimeOption) *CLIRuntime {
	r := &CLIRuntime{
		executor: DefaultExecutor{},
		logger:   logger.With().Str("component", "cli_runtime").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunStep executes one agent step as a CLI subprocess.
//
// Resume contract: when ResumeSessionID is set the CLI is asked to resume
// that session; on a session-invalid error (and only that class) the runtime
// falls back once to a fresh session and reports the fallback in the usage
// telemetry. Other errors propagate unchanged.
func (r *CLIRuntime) RunStep(ctx context.Context, req StepRequest) (*StepResponse, error) {
	if req.WorkspacePath == "" {
		return nil, fmt.Errorf("run step: workspace path %w", sferrors.ErrEmptyValue)
	}

	prompt := buildStepPrompt(&req)
	if err := writeTaskFile(req.WorkspacePath, constants.AgentTaskFile(req.Step.StepNumber, req.Attempt), prompt); err != nil {
		return nil, fmt.Errorf("run step: %w", err)
	}
	// A stale result from a crashed earlier run of this attempt must never be
	// read back.
	resultPath := filepath.Join(req.WorkspacePath, constants.AgentResultFile(req.Step.StepNumber, req.Attempt))
	_ = os.Remove(resultPath)

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	env, err := r.invoke(ctx, &req, prompt, req.ResumeSessionID)
	resumeFellBack := false
	if err != nil && req.ResumeSessionID != "" && isSessionInvalid(err) {
		r.logger.Warn().
			Str("session_id", req.ResumeSessionID).
			Int("step", req.Step.StepNumber).
			Msg("session resume failed, starting fresh")
		resumeFellBack = true
		env, err = r.invoke(ctx, &req, prompt, "")
	}
	if err != nil {
		return nil, err
	}

	result, err := r.readResult(resultPath, env)
	if err != nil {
		return nil, err
	}

	usage := domain.StepUsage{
		TokensUsed:      tokensFromUsage(env.Usage),
		RuntimeID:       env.SessionID,
		CostUSD:         env.TotalCostUSD,
		Usage:           env.Usage,
		ResumeUsed:      req.ResumeSessionID != "",
		ResumeFailed:    resumeFellBack,
		ResumeFallback:  resumeFellBack,
		RuntimeMetadata: map[string]any{"num_turns": env.NumTurns},
	}
	if usage.RuntimeID == "" {
		usage.RuntimeID = "local-" + uuid.NewString()
	}

	return &StepResponse{Result: *result, Usage: usage}, nil
}

// invoke runs the CLI once and parses the JSON envelope.
func (r *CLIRuntime) invoke(ctx context.Context, req *StepRequest, prompt, resumeSession string) (*cliEnvelope, error) {
	binary := binaryFor(req.Model.Provider)
	args := []string{"-p", "--output-format", "json"}
	if req.Model.Model != "" {
		args = append(args, "--model", req.Model.Model)
	}
	if resumeSession != "" {
		args = append(args, "--resume", resumeSession)
	}
	args = append(args, req.Model.CLIFlags...)

	cmd := exec.CommandContext(ctx, binary, args...) //#nosec G204 -- binary and flags come from resolved configuration
	cmd.Dir = req.WorkspacePath
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = appendProviderEnv(os.Environ(), req.Model.Provider, req.APIKey)

	stdout, stderr, err := r.executor.Execute(ctx, cmd)
	r.writeAttemptLog(req, stdout, stderr)

	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("agent %s step %d: %w", req.Step.Agent, req.Step.StepNumber, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s step %d: %s: %s",
			sferrors.ErrStepFailed, binary, req.Step.StepNumber, err, excerpt(stderr, 512))
	}

	var env cliEnvelope
	if jsonErr := json.Unmarshal(stdout, &env); jsonErr != nil {
		return nil, fmt.Errorf("%w: %s produced unparseable output: %s: %s",
			sferrors.ErrStepFailed, binary, jsonErr, excerpt(stdout, 512))
	}
	return &env, nil
}

// readResult loads the structured agent result the CLI wrote at the
// attempt's result path, synthesising one from the envelope when the agent
// produced no file.
func (r *CLIRuntime) readResult(path string, env *cliEnvelope) (*domain.AgentResult, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is constructed internally
	if os.IsNotExist(err) {
		return synthesizeResult(env), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read agent result: %w", err)
	}

	var result domain.AgentResult
	if err := json.Unmarshal(data, &result); err != nil {
		r.logger.Warn().Err(err).Msg("agent result unparseable, falling back to envelope")
		return synthesizeResult(env), nil
	}
	if !validResultStatus(result.Status) {
		return nil, fmt.Errorf("%w: %q", sferrors.ErrUnknownAgentResultStatus, result.Status)
	}
	return &result, nil
}

// writeAttemptLog persists the CLI's raw output as a step-prefixed log file.
// Best-effort; the file is on the git denylist.
func (r *CLIRuntime) writeAttemptLog(req *StepRequest, stdout, stderr []byte) {
	name := fmt.Sprintf(".%s-runtime.step-%d.attempt-%d.log",
		binaryFor(req.Model.Provider), req.Step.StepNumber, req.Attempt)
	var buf bytes.Buffer
	buf.Write(stdout)
	if len(stderr) > 0 {
		buf.WriteString("\n--- stderr ---\n")
		buf.Write(stderr)
	}
	if err := os.WriteFile(filepath.Join(req.WorkspacePath, name), buf.Bytes(), 0o600); err != nil {
		r.logger.Debug().Err(err).Str("file", name).Msg("attempt log not written")
	}
}

// synthesizeResult builds an AgentResult from the CLI envelope for agents
// that answered in prose without writing their result file.
func synthesizeResult(env *cliEnvelope) *domain.AgentResult {
	if env.IsError {
		return &domain.AgentResult{
			Status:  constants.AgentStatusFailed,
			Summary: env.Result,
		}
	}
	return &domain.AgentResult{
		Status:  constants.AgentStatusComplete,
		Summary: env.Result,
	}
}

// buildStepPrompt renders the task prompt for one attempt. The prompt points
// the agent at the workspace scaffolding instead of inlining context: the
// profile, prior step results, and the result contract all live in files.
func buildStepPrompt(req *StepRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Step %d: %s\n\n", req.Step.StepNumber, req.Step.Agent)
	b.WriteString(req.Step.Task)
	b.WriteString("\n\n")

	if req.ResumeReason != "" {
		fmt.Fprintf(&b, "This is a follow-up attempt (%s).\n\n", req.ResumeReason)
	}

	b.WriteString("## Working agreement\n\n")
	fmt.Fprintf(&b, "- Your role profile is in %s.\n", constants.AgentProfileFileName)
	fmt.Fprintf(&b, "- Results of prior steps are JSON files under %s/.\n", constants.AgentContextDir)
	fmt.Fprintf(&b, "- When finished, write your result to %s as JSON with fields: "+
		"status (complete|needs_rework|blocked|failed), summary, artifacts_created, "+
		"artifacts_modified, issues, rework_reason.\n",
		constants.AgentResultFile(req.Step.StepNumber, req.Attempt))
	if req.TokenBudget > 0 {
		fmt.Fprintf(&b, "- Token budget for this step: %d.\n", req.TokenBudget)
	}
	for _, g := range req.Guardrails {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	return b.String()
}

// writeTaskFile materialises the prompt as the attempt's task file.
func writeTaskFile(workspacePath, name, prompt string) error {
	path := filepath.Join(workspacePath, name)
	if err := os.WriteFile(path, []byte(prompt), 0o600); err != nil {
		return fmt.Errorf("write task file: %w", err)
	}
	return nil
}

// binaryFor maps a runtime provider name to its CLI binary.
func binaryFor(provider string) string {
	switch provider {
	case "", "claude-cli":
		return "claude"
	case "codex-cli":
		return "codex"
	default:
		return strings.TrimSuffix(provider, "-cli")
	}
}

// appendProviderEnv adds the provider's API key variable when a key is set.
func appendProviderEnv(env []string, provider, apiKey string) []string {
	if apiKey == "" {
		return env
	}
	switch provider {
	case "", "claude-cli":
		return append(env, "ANTHROPIC_API_KEY="+apiKey)
	case "codex-cli":
		return append(env, "OPENAI_API_KEY="+apiKey)
	default:
		return env
	}
}

// isSessionInvalid classifies errors that justify the one-shot resume
// fallback. Anything else propagates unchanged.
func isSessionInvalid(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "session") && !strings.Contains(msg, "conversation") {
		return false
	}
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "expired")
}

// validResultStatus reports whether the agent reported a known status.
func validResultStatus(s constants.AgentStatus) bool {
	switch s {
	case constants.AgentStatusComplete, constants.AgentStatusNeedsRework,
		constants.AgentStatusBlocked, constants.AgentStatusFailed:
		return true
	default:
		return false
	}
}

// tokensFromUsage sums the token counters a CLI reports in its usage block.
func tokensFromUsage(usage map[string]any) int {
	total := 0
	for _, key := range []string{"input_tokens", "output_tokens"} {
		if v, ok := usage[key]; ok {
			if f, ok := v.(float64); ok {
				total += int(f)
			}
		}
	}
	return total
}

// excerpt returns the first n bytes of b, trimmed, for error messages.
func excerpt(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[:n]
	}
	return s
}
