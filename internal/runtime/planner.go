package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/plan"
)

// rawExcerptLen is how much raw planner output is surfaced when the output
// cannot be parsed.
const rawExcerptLen = 1024

// reworkNumberBase offsets rework step numbers so they never collide with
// initial-plan steps.
const reworkNumberBase = 900

// CLIPlanner produces execution plans by asking a planning-capable agent CLI
// for JSON output. It shares the CLIRuntime's subprocess machinery.
type CLIPlanner struct {
	model    domain.ModelConfig
	apiKey   string
	executor Executor
	logger   zerolog.Logger
}

// CLIPlannerOption configures a CLIPlanner.
type CLIPlannerOption func(*CLIPlanner)

// WithPlannerExecutor replaces the subprocess executor, for tests.
func WithPlannerExecutor(e Executor) CLIPlannerOption {
	return func(p *CLIPlanner) { p.executor = e }
}

// NewCLIPlanner returns a CLI-backed planner using the given model.
func NewCLIPlanner(model domain.ModelConfig, apiKey string, logger zerolog.Logger, opts ...CLIPlannerOption) *CLIPlanner {
	p := &CLIPlanner{
		model:    model,
		apiKey:   apiKey,
		executor: DefaultExecutor{},
		logger:   logger.With().Str("component", "cli_planner").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GeneratePlan asks the planner agent for an execution plan. Unparseable
// output fails with ErrPlannerOutput carrying the first KiB of the raw text.
func (p *CLIPlanner) GeneratePlan(ctx context.Context, ticket *domain.Ticket, agents []domain.AgentDefinition, rules []domain.Rule, workspacePath string) (*domain.ExecutionPlan, error) {
	prompt, err := buildPlanPrompt(ticket, agents, rules)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	raw, err := p.ask(ctx, workspacePath, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	parsed, err := plan.Parse(extractJSON(raw))
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w; raw output: %s", err, excerpt([]byte(raw), rawExcerptLen))
	}
	if parsed.TicketID == "" {
		parsed.TicketID = ticket.ID
	}
	p.logger.Info().
		Str("ticket_id", ticket.ID).
		Int("steps", len(parsed.Steps)).
		Msg("plan generated")
	return parsed, nil
}

// PlanRework asks the planner for a minimal recovery plan. Step numbers are
// forced into the >= 900+failed convention when the planner strays from it.
func (p *CLIPlanner) PlanRework(ctx context.Context, req ReworkRequest) (*ReworkPlan, error) {
	prompt, err := buildReworkPrompt(&req)
	if err != nil {
		return nil, fmt.Errorf("plan rework: %w", err)
	}

	raw, err := p.ask(ctx, req.WorkspacePath, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan rework: %w", err)
	}

	var rp ReworkPlan
	if err := json.Unmarshal(extractJSON(raw), &rp); err != nil {
		return nil, fmt.Errorf("plan rework: %w: %s; raw output: %s",
			sferrors.ErrPlannerOutput, err, excerpt([]byte(raw), rawExcerptLen))
	}
	if len(rp.Steps) == 0 {
		return nil, fmt.Errorf("plan rework: %w: no steps returned", sferrors.ErrPlannerOutput)
	}
	if len(rp.Steps) > 2 {
		p.logger.Warn().Int("steps", len(rp.Steps)).Msg("rework plan larger than expected")
	}

	base := reworkNumberBase + req.FailedStep.StepNumber
	for i := range rp.Steps {
		if rp.Steps[i].StepNumber < base {
			rp.Steps[i].StepNumber = base + i
		}
	}
	return &rp, nil
}

// ask runs the planner CLI once and returns the envelope's result text.
func (p *CLIPlanner) ask(ctx context.Context, workspacePath, prompt string) (string, error) {
	binary := binaryFor(p.model.Provider)
	args := []string{"-p", "--output-format", "json"}
	if p.model.Model != "" {
		args = append(args, "--model", p.model.Model)
	}
	args = append(args, p.model.CLIFlags...)

	cmd := exec.CommandContext(ctx, binary, args...) //#nosec G204 -- binary and flags come from resolved configuration
	cmd.Dir = workspacePath
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = appendProviderEnv(os.Environ(), p.model.Provider, p.apiKey)

	stdout, stderr, err := p.executor.Execute(ctx, cmd)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s: %s: %s", sferrors.ErrPlannerOutput, binary, err, excerpt(stderr, 512))
	}

	var env cliEnvelope
	if err := json.Unmarshal(stdout, &env); err != nil {
		return "", fmt.Errorf("%w: unparseable envelope: %s: %s",
			sferrors.ErrPlannerOutput, err, excerpt(stdout, rawExcerptLen))
	}
	if env.IsError {
		return "", fmt.Errorf("%w: planner reported an error: %s",
			sferrors.ErrPlannerOutput, excerpt([]byte(env.Result), rawExcerptLen))
	}
	return env.Result, nil
}

// buildPlanPrompt renders the planning instruction.
func buildPlanPrompt(ticket *domain.Ticket, agents []domain.AgentDefinition, rules []domain.Rule) (string, error) {
	ticketJSON, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are the planning agent for an automated software team. " +
		"Produce an execution plan for the ticket below.\n\n")
	b.WriteString("## Ticket\n\n```json\n")
	b.Write(ticketJSON)
	b.WriteString("\n```\n\n## Available agents\n\n")
	for i := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", agents[i].ID, agents[i].Description)
	}
	if len(rules) > 0 {
		b.WriteString("\n## Policy rules (the validator enforces these; plan accordingly)\n\n")
		for i := range rules {
			fmt.Fprintf(&b, "- %s\n", rules[i].Name)
		}
	}
	b.WriteString("\n## Output contract\n\n" +
		"Respond with ONLY a JSON object: {\"plan_id\", \"ticket_id\", \"steps\": " +
		"[{\"step_number\", \"agent\", \"task\", \"depends_on\"}], " +
		"\"parallel_groups\": [[n, …]], \"human_gates\": " +
		"[{\"after_step\", \"reason\", \"required\"}], \"reasoning\"}. " +
		"Steps must form an acyclic dependency graph. Declare a parallel group " +
		"only for steps with no inter-dependency.\n")
	return b.String(), nil
}

// buildReworkPrompt renders the recovery-planning instruction.
func buildReworkPrompt(req *ReworkRequest) (string, error) {
	failureJSON, err := json.MarshalIndent(req.Failure, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Step %d (%s) of the current plan reported needs_rework "+
		"(round %d).\n\n## Failure\n\n```json\n",
		req.FailedStep.StepNumber, req.FailedStep.Agent, req.ReworkAttempt)
	b.Write(failureJSON)
	b.WriteString("\n```\n")

	if len(req.PreviousReworkResults) > 0 {
		b.WriteString("\n## Earlier rework rounds (all insufficient)\n\n")
		for i := range req.PreviousReworkResults {
			fmt.Fprintf(&b, "- round %d: %s\n", i+1, req.PreviousReworkResults[i].ReworkReason)
		}
	}

	fmt.Fprintf(&b, "\n## Output contract\n\n"+
		"Respond with ONLY a JSON object {\"steps\": [{\"step_number\", \"agent\", "+
		"\"task\"}]} containing 1-2 minimal recovery steps. Use step numbers "+
		">= %d. The failed step is retried automatically afterwards; plan only "+
		"the fix, not the re-verification.\n",
		reworkNumberBase+req.FailedStep.StepNumber)
	return b.String(), nil
}

// extractJSON pulls the JSON object out of a CLI answer that may wrap it in
// markdown fences or prose.
func extractJSON(s string) []byte {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}
