// Package scheduler executes a validated execution plan to terminal run
// status.
//
// The scheduler owns the dependency-driven ready-set loop, parallel group
// execution with merged rework, budget and timeout preflights, the per-step
// git checkpoint, the developer quality gate, and human-gate rendezvous. It
// mutates the run aggregate and narrates everything into the event store, but
// never touches the plan: rework steps execute out-of-band and only original
// plan steps enter the completed set.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/clock"
	"github.com/sprintfoundry/sprintfoundry/internal/config"
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/events"
	"github.com/sprintfoundry/sprintfoundry/internal/gitops"
	"github.com/sprintfoundry/sprintfoundry/internal/humangate"
	"github.com/sprintfoundry/sprintfoundry/internal/runtime"
	"github.com/sprintfoundry/sprintfoundry/internal/session"
)

// Config carries the scheduler's dependencies and policy.
type Config struct {
	// Agents runs individual plan steps.
	Agents runtime.AgentRuntime

	// Planner produces rework plans when a step needs rework.
	Planner runtime.PlannerRuntime

	// Git performs the per-step checkpoint commits.
	Git gitops.Git

	// Events narrates run progress.
	Events *events.Store

	// Sessions records resumable runtime sessions.
	Sessions *session.Store

	// Gate is the human-review rendezvous channel.
	Gate humangate.Channel

	// Quality is the post-developer-step quality gate. Nil disables it.
	Quality QualityGate

	// Platform is the resolved platform configuration.
	Platform *config.Platform

	// Project carries project-level overrides; may be nil.
	Project *config.Project

	// Budget is the fully merged budget for this run.
	Budget domain.Budget

	// Clock abstracts time for tests. Nil means the real clock.
	Clock clock.Clock

	// Logger is the scheduler's structured logger.
	Logger zerolog.Logger
}

// Scheduler executes validated plans.
type Scheduler struct {
	agents   runtime.AgentRuntime
	planner  runtime.PlannerRuntime
	git      gitops.Git
	events   *events.Store
	sessions *session.Store
	gate     humangate.Channel
	quality  QualityGate
	platform *config.Platform
	project  *config.Project
	budget   domain.Budget
	clock    clock.Clock
	logger   zerolog.Logger
}

// New validates the config and constructs a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Agents == nil {
		return nil, fmt.Errorf("scheduler agents runtime: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("scheduler planner runtime: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Git == nil {
		return nil, fmt.Errorf("scheduler git: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Events == nil {
		return nil, fmt.Errorf("scheduler event store: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("scheduler session store: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("scheduler human gate channel: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("scheduler platform config: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	budget := cfg.Budget
	if budget.PerTaskTotalTokens == 0 {
		budget.PerTaskTotalTokens = constants.DefaultPerTaskTotalTokens
	}
	if budget.MaxReworkCycles == 0 {
		budget.MaxReworkCycles = constants.DefaultMaxReworkCycles
	}

	return &Scheduler{
		agents:   cfg.Agents,
		planner:  cfg.Planner,
		git:      cfg.Git,
		events:   cfg.Events,
		sessions: cfg.Sessions,
		gate:     cfg.Gate,
		quality:  cfg.Quality,
		platform: cfg.Platform,
		project:  cfg.Project,
		budget:   budget,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// runState is the per-execution bookkeeping. The plan itself is never
// mutated. mu serialises run mutations under parallel-group execution;
// everything else is touched only from the sequential loop.
type runState struct {
	mu            sync.Mutex
	ctxMu         sync.Mutex
	run           *domain.TaskRun
	plan          *domain.ExecutionPlan
	completed     map[int]bool
	reworkCounts  map[int]int
	reviewedGates map[int]bool
	// pendingResume maps step numbers to the resume reason their next
	// attempt should carry (set after a rework plan has run).
	pendingResume map[int]string
	// prevRework accumulates the failure results already handed to the
	// rework planner, per anchor step.
	prevRework map[int][]domain.AgentResult
}

// ExecutePlan runs the validated plan to completion or failure, mutating the
// run in place. The returned error is the run's terminal error, already
// recorded on run.Error and narrated in the event log.
func (s *Scheduler) ExecutePlan(ctx context.Context, run *domain.TaskRun, plan *domain.ExecutionPlan) error {
	run.Status = constants.RunStatusExecuting

	st := &runState{
		run:           run,
		plan:          plan,
		completed:     make(map[int]bool, len(plan.Steps)),
		reworkCounts:  make(map[int]int),
		reviewedGates: make(map[int]bool),
		pendingResume: make(map[int]string),
		prevRework:    make(map[int][]domain.AgentResult),
	}

	if err := s.runLoop(ctx, st); err != nil {
		s.failRun(run, err)
		return err
	}

	run.Status = constants.RunStatusCompleted
	return nil
}

// runLoop is the main ready-set loop.
func (s *Scheduler) runLoop(ctx context.Context, st *runState) error {
	for len(st.completed) < len(st.plan.Steps) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready := s.readySteps(st)
		if len(ready) == 0 {
			return fmt.Errorf("Deadlock: %w", sferrors.ErrDeadlock)
		}

		group := s.largestReadyGroup(st, ready)
		if len(group) > 1 {
			if err := s.executeGroup(ctx, st, group); err != nil {
				return err
			}
		} else {
			step := st.plan.StepByNumber(ready[0])
			resume := st.pendingResume[step.StepNumber]
			delete(st.pendingResume, step.StepNumber)
			if err := s.executeSequential(ctx, st, step, resume); err != nil {
				return err
			}
			st.completed[step.StepNumber] = true
		}

		if err := s.processHumanGates(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// readySteps returns uncompleted steps whose dependencies are all completed,
// ordered by step number.
func (s *Scheduler) readySteps(st *runState) []int {
	var ready []int
	for i := range st.plan.Steps {
		step := &st.plan.Steps[i]
		if st.completed[step.StepNumber] {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			if !st.completed[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step.StepNumber)
		}
	}
	sort.Ints(ready)
	return ready
}

// largestReadyGroup returns the members of the largest declared parallel
// group whose members are all ready, or the first ready step alone. A group
// with members that are not all ready falls back to sequential execution.
func (s *Scheduler) largestReadyGroup(st *runState, ready []int) []int {
	readySet := make(map[int]bool, len(ready))
	for _, n := range ready {
		readySet[n] = true
	}

	var best []int
	for i := range st.plan.ParallelGroups {
		members := st.plan.ParallelGroups[i].StepNumbers
		allReady := len(members) > 0
		for _, n := range members {
			if !readySet[n] {
				allReady = false
				break
			}
		}
		if allReady && len(members) > len(best) {
			best = members
		}
	}
	if len(best) > 1 {
		return best
	}
	return ready[:1]
}

// processHumanGates blocks on every required, unreviewed gate whose step is
// completed. Rejection (including timeout) fails the run.
func (s *Scheduler) processHumanGates(ctx context.Context, st *runState) error {
	for i := range st.plan.HumanGates {
		gate := &st.plan.HumanGates[i]
		if !gate.Required || st.reviewedGates[gate.AfterStep] || !st.completed[gate.AfterStep] {
			continue
		}
		st.reviewedGates[gate.AfterStep] = true
		if err := s.awaitGate(ctx, st, gate); err != nil {
			return err
		}
	}
	return nil
}

// awaitGate runs one human-gate rendezvous.
func (s *Scheduler) awaitGate(ctx context.Context, st *runState, gate *domain.HumanGate) error {
	run := st.run
	run.Status = constants.RunStatusWaitingHumanReview

	exec := run.LatestExecution(gate.AfterStep)
	review := &domain.HumanReview{
		ReviewID:    "rev-" + uuid.NewString(),
		RunID:       run.RunID,
		AfterStep:   gate.AfterStep,
		Status:      constants.ReviewStatusPending,
		Summary:     gate.Reason,
		RequestedAt: s.clock.Now().UTC(),
	}
	if exec != nil && exec.Result != nil {
		if review.Summary == "" {
			review.Summary = exec.Result.Summary
		}
		review.ArtifactsToReview = append(exec.Result.ArtifactsCreated, exec.Result.ArtifactsModified...)
	}

	s.emit(run.RunID, constants.EventHumanGateRequested, map[string]any{
		"review_id":  review.ReviewID,
		"after_step": gate.AfterStep,
		"reason":     gate.Reason,
	})

	if err := s.gate.Request(ctx, review); err != nil {
		return fmt.Errorf("open human review: %w", err)
	}

	timeout := s.platform.HumanGateTimeout
	if timeout == 0 {
		timeout = constants.DefaultHumanGateTimeout
	}
	decision, err := s.gate.Await(ctx, review, timeout)
	if err != nil {
		return fmt.Errorf("await human review: %w", err)
	}

	now := s.clock.Now().UTC()
	review.DecidedAt = &now
	review.Status = decision.Status
	review.ReviewerFeedback = decision.ReviewerFeedback

	if decision.Status == constants.ReviewStatusApproved {
		s.emit(run.RunID, constants.EventHumanGateApproved, map[string]any{
			"review_id":  review.ReviewID,
			"after_step": gate.AfterStep,
			"feedback":   decision.ReviewerFeedback,
		})
		if exec != nil && exec.Result != nil {
			if exec.Result.Metadata == nil {
				exec.Result.Metadata = make(map[string]any)
			}
			exec.Result.Metadata[domain.MetadataKeyHumanReviewed] = true
		}
		run.Status = constants.RunStatusExecuting
		return nil
	}

	s.emit(run.RunID, constants.EventHumanGateRejected, map[string]any{
		"review_id":  review.ReviewID,
		"after_step": gate.AfterStep,
		"feedback":   decision.ReviewerFeedback,
	})
	return fmt.Errorf("%w: %s", sferrors.ErrReviewRejected, decision.ReviewerFeedback)
}

// failRun stamps the terminal failure onto the run and narrates it.
func (s *Scheduler) failRun(run *domain.TaskRun, err error) {
	run.Status = constants.RunStatusFailed
	run.Error = err.Error()
	now := s.clock.Now().UTC()
	run.CompletedAt = &now
	s.emit(run.RunID, constants.EventTaskFailed, map[string]any{"error": err.Error()})
	s.logger.Error().Err(err).Str("run_id", run.RunID).Msg("run failed")
}

// emit appends an event, logging (not failing) on error.
func (s *Scheduler) emit(runID string, eventType constants.EventType, data map[string]any) {
	if err := s.events.Append(runID, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType.String()).Msg("event not recorded")
	}
}

// stepTimeout returns the per-step timeout.
func (s *Scheduler) stepTimeout() time.Duration {
	if s.platform.StepTimeout > 0 {
		return s.platform.StepTimeout
	}
	return constants.DefaultStepTimeout
}

// taskTimeout returns the run wall-clock ceiling.
func (s *Scheduler) taskTimeout() time.Duration {
	if s.platform.TaskTimeout > 0 {
		return s.platform.TaskTimeout
	}
	return constants.DefaultTaskTimeout
}
