package scheduler

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sprintfoundry/sprintfoundry/internal/config"
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/runtime"
	"github.com/sprintfoundry/sprintfoundry/internal/session"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// frame is one unit of sequential work: a step attempt plus the resume
// reason its runtime request carries. Rework uses an explicit frame stack
// instead of recursion because rework can chain; the rework counter (and the
// token budget) are the terminators.
type frame struct {
	step   *domain.PlanStep
	resume string
}

// reworkSignal is one parallel-group member's rework vote, reconciled after
// the join barrier.
type reworkSignal struct {
	step   *domain.PlanStep
	result domain.AgentResult
	resume string
}

// executeSequential drives a step (and any rework it spawns) to completion.
// On return without error the step's latest attempt is completed; the caller
// decides whether it enters the completed set (rework-plan steps never do).
func (s *Scheduler) executeSequential(ctx context.Context, st *runState, step *domain.PlanStep, resume string) error {
	stack := []frame{{step: step, resume: resume}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		result, err := s.runAttempt(ctx, st, f.step, f.resume)
		if err != nil {
			return err
		}

		switch result.Status {
		case constants.AgentStatusComplete:
			if err := s.checkpointAndComplete(ctx, st, f.step); err != nil {
				return err
			}
			gateFailure, failed := s.qualityGateFailure(ctx, st, f.step)
			if !failed {
				continue
			}
			frames, err := s.scheduleRework(ctx, st, f.step, gateFailure, runtime.ResumeReasonQualityGateRetry, false)
			if err != nil {
				return err
			}
			stack = append(stack, frames...)

		case constants.AgentStatusNeedsRework:
			frames, err := s.scheduleRework(ctx, st, f.step, *result, runtime.ResumeReasonReworkRetry, true)
			if err != nil {
				return err
			}
			stack = append(stack, frames...)

		case constants.AgentStatusBlocked:
			return s.failStep(st, f.step, fmt.Errorf("%w: %s", sferrors.ErrStepBlocked, result.Summary))

		case constants.AgentStatusFailed:
			return s.failStep(st, f.step, fmt.Errorf("%w: %s", sferrors.ErrStepFailed, result.Summary))

		default:
			return s.failStep(st, f.step, fmt.Errorf("%w: %q", sferrors.ErrUnknownAgentResultStatus, result.Status))
		}
	}
	return nil
}

// scheduleRework checks the rework budget, narrates the trigger, optionally
// asks the planner for a recovery plan, and returns the frames to push:
// the retry of the failing step below, the rework steps on top.
func (s *Scheduler) scheduleRework(ctx context.Context, st *runState, step *domain.PlanStep, failure domain.AgentResult, retryResume string, callPlanner bool) ([]frame, error) {
	n := step.StepNumber

	st.mu.Lock()
	count := st.reworkCounts[n]
	st.mu.Unlock()

	maxCycles := s.budget.MaxReworkCycles
	if count >= maxCycles {
		return nil, s.failStep(st, step, fmt.Errorf("%w: step %d reached %d cycles", sferrors.ErrMaxReworkExceeded, n, count))
	}

	st.mu.Lock()
	st.reworkCounts[n] = count + 1
	st.mu.Unlock()

	s.emit(st.run.RunID, constants.EventStepReworkTriggered, map[string]any{
		"step":         n,
		"agent":        step.Agent,
		"reason":       failure.ReworkReason,
		"rework_count": count + 1,
		"merged":       false,
	})

	frames := []frame{{step: step, resume: retryResume}}
	if !callPlanner {
		return frames, nil
	}

	plan, err := s.planRework(ctx, st, step, failure, count+1)
	if err != nil {
		return nil, err
	}
	for i := len(plan.Steps) - 1; i >= 0; i-- {
		frames = append(frames, frame{step: &plan.Steps[i], resume: runtime.ResumeReasonReworkPlan})
	}
	return frames, nil
}

// planRework calls the planner once and records the failure in the per-step
// rework history.
func (s *Scheduler) planRework(ctx context.Context, st *runState, anchor *domain.PlanStep, failure domain.AgentResult, attempt int) (*runtime.ReworkPlan, error) {
	st.mu.Lock()
	req := runtime.ReworkRequest{
		Ticket:                st.run.Ticket,
		FailedStep:            *anchor,
		Failure:               failure,
		WorkspacePath:         st.run.WorkspacePath,
		RunSteps:              append([]domain.StepExecution(nil), st.run.Steps...),
		ReworkAttempt:         attempt,
		PreviousReworkResults: append([]domain.AgentResult(nil), st.prevRework[anchor.StepNumber]...),
	}
	st.prevRework[anchor.StepNumber] = append(st.prevRework[anchor.StepNumber], failure)
	st.mu.Unlock()

	plan, err := s.planner.PlanRework(ctx, req)
	if err != nil {
		return nil, s.failStep(st, anchor, fmt.Errorf("plan rework for step %d: %w", anchor.StepNumber, err))
	}
	s.logger.Info().
		Int("step", anchor.StepNumber).
		Int("rework_steps", len(plan.Steps)).
		Int("attempt", attempt).
		Msg("rework plan received")
	return plan, nil
}

// executeGroup runs a parallel group: concurrent attempts, a join barrier,
// then sequential reconciliation. Git checkpoints and quality gates run only
// after the join so group members never touch the working tree concurrently.
func (s *Scheduler) executeGroup(ctx context.Context, st *runState, members []int) error {
	type memberResult struct {
		step   *domain.PlanStep
		result *domain.AgentResult
	}

	results := make([]memberResult, len(members))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range members {
		step := st.plan.StepByNumber(n)
		resume := st.pendingResume[n]
		delete(st.pendingResume, n)

		g.Go(func() error {
			result, err := s.runAttempt(gctx, st, step, resume)
			if err != nil {
				return err
			}
			switch result.Status {
			case constants.AgentStatusBlocked:
				return s.failStep(st, step, fmt.Errorf("%w: %s", sferrors.ErrStepBlocked, result.Summary))
			case constants.AgentStatusFailed:
				return s.failStep(st, step, fmt.Errorf("%w: %s", sferrors.ErrStepFailed, result.Summary))
			}
			results[i] = memberResult{step: step, result: result}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var signals []reworkSignal
	for _, mr := range results {
		if mr.result.Status == constants.AgentStatusNeedsRework {
			signals = append(signals, reworkSignal{step: mr.step, result: *mr.result, resume: runtime.ResumeReasonReworkRetry})
		}
	}

	// Sequential post-step path for the members that completed.
	for _, mr := range results {
		if mr.result.Status != constants.AgentStatusComplete {
			continue
		}
		if err := s.checkpointAndComplete(ctx, st, mr.step); err != nil {
			return err
		}
		if gateFailure, failed := s.qualityGateFailure(ctx, st, mr.step); failed {
			signals = append(signals, reworkSignal{step: mr.step, result: gateFailure, resume: runtime.ResumeReasonQualityGateRetry})
			continue
		}
		st.completed[mr.step.StepNumber] = true
	}

	if len(signals) == 0 {
		return nil
	}
	return s.mergeAndRework(ctx, st, signals)
}

// mergeAndRework reconciles a group's rework signals: one synthesised failure,
// one planner call, rework steps executed sequentially. The signalled members
// stay out of the completed set so the outer loop picks them up again.
func (s *Scheduler) mergeAndRework(ctx context.Context, st *runState, signals []reworkSignal) error {
	for _, sig := range signals {
		st.mu.Lock()
		count := st.reworkCounts[sig.step.StepNumber]
		st.mu.Unlock()
		if count >= s.budget.MaxReworkCycles {
			return s.failStep(st, sig.step, fmt.Errorf("%w: step %d reached %d cycles", sferrors.ErrMaxReworkExceeded, sig.step.StepNumber, count))
		}
	}

	merged := signals[0].result
	if len(signals) > 1 {
		parts := make([]string, 0, len(signals))
		for _, sig := range signals {
			parts = append(parts, fmt.Sprintf("[%s] %s", sig.step.Agent, sig.result.ReworkReason))
		}
		merged = domain.AgentResult{
			Status:       constants.AgentStatusNeedsRework,
			ReworkReason: strings.Join(parts, "; "),
		}
	}

	mergedFlag := len(signals) > 1
	for _, sig := range signals {
		st.mu.Lock()
		st.reworkCounts[sig.step.StepNumber]++
		count := st.reworkCounts[sig.step.StepNumber]
		st.mu.Unlock()

		s.emit(st.run.RunID, constants.EventStepReworkTriggered, map[string]any{
			"step":         sig.step.StepNumber,
			"agent":        sig.step.Agent,
			"reason":       sig.result.ReworkReason,
			"rework_count": count,
			"merged":       mergedFlag,
		})
		st.pendingResume[sig.step.StepNumber] = sig.resume
	}

	primary := signals[0].step
	st.mu.Lock()
	attempt := st.reworkCounts[primary.StepNumber]
	st.mu.Unlock()

	plan, err := s.planRework(ctx, st, primary, merged, attempt)
	if err != nil {
		return err
	}
	for i := range plan.Steps {
		if err := s.executeSequential(ctx, st, &plan.Steps[i], runtime.ResumeReasonReworkPlan); err != nil {
			return err
		}
	}
	return nil
}

// checkpointAndComplete marks the step's latest attempt completed, commits
// the checkpoint, and narrates. A checkpoint error is a hard run failure:
// the step did real work whose persistence failed, and subsequent steps
// would see an inconsistent tree.
func (s *Scheduler) checkpointAndComplete(ctx context.Context, st *runState, step *domain.PlanStep) error {
	committed, err := s.git.CommitStepCheckpoint(ctx, st.run.WorkspacePath, st.run.RunID, step.StepNumber, step.Agent)
	if err != nil {
		return s.failStep(st, step, fmt.Errorf("%w: %s", sferrors.ErrCheckpointFailed, err))
	}

	st.mu.Lock()
	s.markLatestExec(st, step.StepNumber, constants.StepStatusCompleted)
	st.mu.Unlock()

	s.emit(st.run.RunID, constants.EventStepCompleted, map[string]any{
		"step":  step.StepNumber,
		"agent": step.Agent,
	})
	if committed {
		s.emit(st.run.RunID, constants.EventStepCommitted, map[string]any{
			"step":  step.StepNumber,
			"agent": step.Agent,
		})
	}
	return nil
}

// qualityGateFailure runs the quality gate after a completed developer-role
// step. The gate never errors; failures surface as a synthesised
// needs_rework result.
func (s *Scheduler) qualityGateFailure(ctx context.Context, st *runState, step *domain.PlanStep) (domain.AgentResult, bool) {
	if s.quality == nil || step.Role() != constants.RoleDeveloper {
		return domain.AgentResult{}, false
	}

	report := s.quality.Check(ctx, st.run.WorkspacePath)
	if report.Passed {
		return domain.AgentResult{}, false
	}

	reason := "Quality gate failed: " + strings.Join(report.Failures, "; ")
	s.logger.Warn().
		Int("step", step.StepNumber).
		Strs("failures", report.Failures).
		Msg("quality gate failed")
	return domain.AgentResult{
		Status:       constants.AgentStatusNeedsRework,
		ReworkReason: reason,
	}, true
}

// runAttempt performs one step attempt end to end: budget preflight, runtime
// invocation, telemetry, session recording, result archival. It does not
// branch on the agent's status; callers own that.
func (s *Scheduler) runAttempt(ctx context.Context, st *runState, step *domain.PlanStep, resume string) (*domain.AgentResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if err := s.preflight(st, step); err != nil {
		return nil, err
	}

	st.mu.Lock()
	reworkCount := st.reworkCounts[step.StepNumber]
	st.run.Steps = append(st.run.Steps, domain.StepExecution{
		StepNumber:  step.StepNumber,
		Agent:       step.Agent,
		Status:      constants.StepStatusRunning,
		StartedAt:   s.clock.Now().UTC(),
		ReworkCount: reworkCount,
	})
	execIdx := len(st.run.Steps) - 1
	attempt := st.run.AttemptCount(step.StepNumber)
	st.mu.Unlock()

	req := s.buildRequest(ctx, st, step, attempt, resume)
	s.materializeContext(st, step)

	s.emit(st.run.RunID, constants.EventStepStarted, map[string]any{
		"step":              step.StepNumber,
		"agent":             step.Agent,
		"attempt":           attempt,
		"rework_count":      reworkCount,
		"resume_reason":     resume,
		"resume_session_id": req.ResumeSessionID,
	})

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout())
	defer cancel()

	resp, err := s.agents.RunStep(stepCtx, req)
	now := s.clock.Now().UTC()

	if err != nil {
		st.mu.Lock()
		st.run.Steps[execIdx].Status = constants.StepStatusFailed
		st.run.Steps[execIdx].CompletedAt = &now
		st.mu.Unlock()
		return nil, s.failStep(st, step, fmt.Errorf("%w: %s", sferrors.ErrStepFailed, err))
	}

	st.mu.Lock()
	exec := &st.run.Steps[execIdx]
	exec.RuntimeID = resp.Usage.RuntimeID
	exec.TokensUsed = resp.Usage.TokensUsed
	exec.CostUSD = resp.Usage.CostUSD
	exec.CompletedAt = &now
	result := resp.Result
	exec.Result = &result
	st.run.AddUsage(resp.Usage.TokensUsed, resp.Usage.CostUSD)
	st.mu.Unlock()

	s.recordSession(ctx, st, step, attempt, &resp.Usage, req.Model.Model)

	if err := workspace.WriteStepResult(st.run.WorkspacePath, step.StepNumber, attempt, step.Agent, &result); err != nil {
		s.logger.Warn().Err(err).Int("step", step.StepNumber).Msg("step result not archived")
	}

	return &result, nil
}

// preflight enforces the token, cost, and wall-clock budgets before an
// attempt starts. A violation records a failed attempt for the step.
func (s *Scheduler) preflight(st *runState, step *domain.PlanStep) error {
	st.mu.Lock()
	tokens := st.run.TotalTokensUsed
	cost := st.run.TotalCostUSD
	started := st.run.CreatedAt
	st.mu.Unlock()

	if tokens >= s.budget.PerTaskTotalTokens {
		s.emit(st.run.RunID, constants.EventAgentTokenLimitExceeded, map[string]any{
			"step":              step.StepNumber,
			"agent":             step.Agent,
			"reason":            "tokens",
			"total_tokens_used": tokens,
			"budget":            s.budget.PerTaskTotalTokens,
		})
		return s.failPreflight(st, step, fmt.Errorf("%w: %d of %d tokens used", sferrors.ErrTokenBudgetExceeded, tokens, s.budget.PerTaskTotalTokens))
	}

	if s.budget.PerTaskMaxCostUSD > 0 && cost >= s.budget.PerTaskMaxCostUSD {
		s.emit(st.run.RunID, constants.EventAgentTokenLimitExceeded, map[string]any{
			"step":           step.StepNumber,
			"agent":          step.Agent,
			"reason":         "cost",
			"total_cost_usd": cost,
			"budget_usd":     s.budget.PerTaskMaxCostUSD,
		})
		return s.failPreflight(st, step, fmt.Errorf("%w: $%.2f of $%.2f spent", sferrors.ErrCostBudgetExceeded, cost, s.budget.PerTaskMaxCostUSD))
	}

	if !started.IsZero() && s.clock.Now().Sub(started) >= s.taskTimeout() {
		return s.failPreflight(st, step, fmt.Errorf("%w: run exceeded %s", sferrors.ErrTaskTimeout, s.taskTimeout()))
	}
	return nil
}

// failPreflight records a failed attempt for a step that never started.
func (s *Scheduler) failPreflight(st *runState, step *domain.PlanStep, cause error) error {
	now := s.clock.Now().UTC()
	st.mu.Lock()
	st.run.Steps = append(st.run.Steps, domain.StepExecution{
		StepNumber:  step.StepNumber,
		Agent:       step.Agent,
		Status:      constants.StepStatusFailed,
		StartedAt:   now,
		CompletedAt: &now,
		ReworkCount: st.reworkCounts[step.StepNumber],
	})
	st.mu.Unlock()

	s.emit(st.run.RunID, constants.EventStepFailed, map[string]any{
		"step":  step.StepNumber,
		"agent": step.Agent,
		"error": cause.Error(),
	})
	return cause
}

// failStep marks the step's latest attempt failed and narrates it.
func (s *Scheduler) failStep(st *runState, step *domain.PlanStep, cause error) error {
	now := s.clock.Now().UTC()
	st.mu.Lock()
	if exec := s.latestExecLocked(st, step.StepNumber); exec != nil {
		exec.Status = constants.StepStatusFailed
		if exec.CompletedAt == nil {
			exec.CompletedAt = &now
		}
	}
	st.mu.Unlock()

	s.emit(st.run.RunID, constants.EventStepFailed, map[string]any{
		"step":  step.StepNumber,
		"agent": step.Agent,
		"error": cause.Error(),
	})
	return cause
}

// buildRequest resolves model, runtime, budget, and resume session for an
// attempt.
func (s *Scheduler) buildRequest(ctx context.Context, st *runState, step *domain.PlanStep, attempt int, resume string) runtime.StepRequest {
	model := config.ResolveModel(s.platform, s.project, step.Agent)
	if step.Model != "" {
		model.Model = step.Model
	}
	catalog := config.EffectiveCatalog(s.platform, s.project)
	runtimeName := config.ResolveRuntime(s.platform, catalog, step.Agent)

	req := runtime.StepRequest{
		RunID:         st.run.RunID,
		Step:          *step,
		Attempt:       attempt,
		WorkspacePath: st.run.WorkspacePath,
		Model:         model,
		APIKey:        s.platform.APIKeys[runtimeName],
		Timeout:       s.stepTimeout(),
		TokenBudget:   s.budget.PerAgentTokens,
		ResumeReason:  resume,
		Guardrails:    s.platform.Guardrails,
		PluginPaths:   s.platform.PluginPaths,
	}

	if resume != "" {
		rec, err := s.sessions.FindLatestByAgent(ctx, st.run.RunID, step.Agent)
		if err != nil {
			s.logger.Warn().Err(err).Str("agent", step.Agent).Msg("session lookup failed, starting fresh")
		} else if rec != nil {
			req.ResumeSessionID = rec.SessionID
		}
	}
	return req
}

// recordSession stores the attempt's session id when it looks resumable.
func (s *Scheduler) recordSession(ctx context.Context, st *runState, step *domain.PlanStep, attempt int, usage *domain.StepUsage, model string) {
	if !runtime.IsResumableSessionID(usage.RuntimeID) {
		return
	}
	rec := session.Record{
		RunID:        st.run.RunID,
		Agent:        step.Agent,
		StepNumber:   step.StepNumber,
		StepAttempt:  attempt,
		SessionID:    usage.RuntimeID,
		Model:        model,
		TokensUsed:   usage.TokensUsed,
		ResumeUsed:   usage.ResumeUsed,
		TokenSavings: usage.TokenSavings,
		UpdatedAt:    s.clock.Now().UTC(),
	}
	if err := s.sessions.Record(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("agent", step.Agent).Msg("session not recorded")
	}
}

// materializeContext dumps the results of the step's dependencies and
// step_output inputs into .agent-context/ for the runtime. Best-effort.
// Serialised via ctxMu: parallel-group members share the directory and their
// dependency sets are identical by the time the group is ready.
func (s *Scheduler) materializeContext(st *runState, step *domain.PlanStep) {
	wanted := make(map[int]bool, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		wanted[dep] = true
	}
	for _, in := range step.ContextInputs {
		if in.Kind == domain.ContextKindStepOutput {
			wanted[in.StepNumber] = true
		}
	}
	if len(wanted) == 0 {
		return
	}

	results := make(map[int]*domain.AgentResult, len(wanted))
	st.mu.Lock()
	for n := range wanted {
		if exec := s.latestExecLocked(st, n); exec != nil && exec.Result != nil {
			copied := *exec.Result
			results[n] = &copied
		}
	}
	st.mu.Unlock()

	st.ctxMu.Lock()
	err := workspace.WriteStepContext(st.run.WorkspacePath, results)
	st.ctxMu.Unlock()
	if err != nil {
		s.logger.Warn().Err(err).Int("step", step.StepNumber).Msg("step context not written")
	}
}

// latestExecLocked returns the most recent attempt record for a step.
// Callers hold st.mu.
func (s *Scheduler) latestExecLocked(st *runState, stepNumber int) *domain.StepExecution {
	for i := len(st.run.Steps) - 1; i >= 0; i-- {
		if st.run.Steps[i].StepNumber == stepNumber {
			return &st.run.Steps[i]
		}
	}
	return nil
}

// markLatestExec sets the status of a step's most recent attempt. Callers
// hold st.mu.
func (s *Scheduler) markLatestExec(st *runState, stepNumber int, status constants.StepStatus) {
	if exec := s.latestExecLocked(st, stepNumber); exec != nil {
		exec.Status = status
		if exec.CompletedAt == nil {
			now := s.clock.Now().UTC()
			exec.CompletedAt = &now
		}
	}
}
