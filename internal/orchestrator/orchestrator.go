// Package orchestrator binds tickets, workspace, git, planning, validation,
// scheduling, and notifications into the end-to-end HandleTask pipeline.
//
// The orchestrator owns run lifecycle bookkeeping (run.json snapshots, the
// terminal task.completed / task.failed narration, notifications) and defers
// all step execution to the scheduler. One orchestrator handles one task at a
// time; concurrent runs want separate instances because the event store is a
// single-writer resource.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
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
	"github.com/sprintfoundry/sprintfoundry/internal/notify"
	"github.com/sprintfoundry/sprintfoundry/internal/plan"
	"github.com/sprintfoundry/sprintfoundry/internal/runtime"
	"github.com/sprintfoundry/sprintfoundry/internal/scheduler"
	"github.com/sprintfoundry/sprintfoundry/internal/session"
	"github.com/sprintfoundry/sprintfoundry/internal/tickets"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// TicketStatusInReview is the provider status a ticket moves to once the
// run's pull request is open.
const TicketStatusInReview = "in_review"

// Config carries the orchestrator's dependencies.
type Config struct {
	// Tickets fetches and updates provider tickets. Nil restricts the
	// orchestrator to prompt-synthesised tickets.
	Tickets tickets.Provider

	// Agents runs plan steps.
	Agents runtime.AgentRuntime

	// Planner generates execution and rework plans.
	Planner runtime.PlannerRuntime

	// Git performs clone, checkpoint, push, and PR operations.
	Git gitops.Git

	// Workspaces creates and prepares per-run workspace directories.
	Workspaces *workspace.Manager

	// Gate is the human-review channel. Nil means a filesystem channel
	// rooted in each run's reviews directory.
	Gate humangate.Channel

	// Quality is the post-developer-step quality gate. Nil disables it.
	Quality scheduler.QualityGate

	// Notifier receives run-milestone notifications. Nil disables them.
	Notifier notify.Notifier

	// Platform is the resolved platform configuration.
	Platform *config.Platform

	// Project carries project overrides; may be nil.
	Project *config.Project

	// Clock abstracts time for tests. Nil means the real clock.
	Clock clock.Clock

	// Logger is the orchestrator's structured logger.
	Logger zerolog.Logger
}

// Orchestrator executes tasks end to end.
type Orchestrator struct {
	tickets    tickets.Provider
	agents     runtime.AgentRuntime
	planner    runtime.PlannerRuntime
	git        gitops.Git
	workspaces *workspace.Manager
	gate       humangate.Channel
	quality    scheduler.QualityGate
	notifier   notify.Notifier
	platform   *config.Platform
	project    *config.Project
	clock      clock.Clock
	logger     zerolog.Logger
}

// New validates the config and constructs an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Agents == nil {
		return nil, fmt.Errorf("orchestrator agent runtime: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Planner == nil {
		return nil, fmt.Errorf("orchestrator planner runtime: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Git == nil {
		return nil, fmt.Errorf("orchestrator git: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Workspaces == nil {
		return nil, fmt.Errorf("orchestrator workspace manager: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Platform == nil {
		return nil, fmt.Errorf("orchestrator platform config: %w", sferrors.ErrEmptyValue)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	return &Orchestrator{
		tickets:    cfg.Tickets,
		agents:     cfg.Agents,
		planner:    cfg.Planner,
		git:        cfg.Git,
		workspaces: cfg.Workspaces,
		gate:       cfg.Gate,
		quality:    cfg.Quality,
		notifier:   cfg.Notifier,
		platform:   cfg.Platform,
		project:    cfg.Project,
		clock:      cfg.Clock,
		logger:     cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// NewRunID mints a run id from the current time plus a random suffix.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// HandleTask drives one ticket from fetch to pull request. The returned run
// is always non-nil once created; on failure its Status is failed and Error
// carries the cause, which is also returned.
func (o *Orchestrator) HandleTask(ctx context.Context, ticketID string, source constants.TicketSource, promptText string) (*domain.TaskRun, error) {
	run := &domain.TaskRun{
		RunID:     NewRunID(o.clock.Now()),
		Status:    constants.RunStatusPending,
		CreatedAt: o.clock.Now().UTC(),
	}
	if o.project != nil {
		run.ProjectID = o.project.ID
	}

	store := events.NewStore(o.logger, o.storeOptions()...)
	defer func() {
		if err := store.Close(); err != nil {
			o.logger.Warn().Err(err).Msg("event store close failed")
		}
	}()

	o.emit(store, run, constants.EventTaskCreated, map[string]any{
		"ticket_id": ticketID,
		"source":    string(source),
	})

	ticket, err := tickets.Resolve(ctx, o.tickets, ticketID, source, promptText)
	if err != nil {
		return run, o.failRun(ctx, store, run, fmt.Errorf("resolve ticket %s: %w", ticketID, err))
	}
	run.Ticket = ticket

	if err := o.prepareWorkspace(ctx, store, run); err != nil {
		return run, o.failRun(ctx, store, run, err)
	}
	o.snapshot(run)

	if err := scheduler.RegistryPreflight(ctx, run.WorkspacePath, o.platform.RegistryURL, o.platform.SkipRegistryPreflight, o.logger); err != nil {
		return run, o.failRun(ctx, store, run, err)
	}

	validated, budget, err := o.planAndValidate(ctx, store, run)
	if err != nil {
		return run, o.failRun(ctx, store, run, err)
	}
	o.snapshot(run)

	if err := o.execute(ctx, store, run, validated, budget); err != nil {
		// The scheduler already stamped the failure and emitted task.failed.
		o.snapshot(run)
		o.notify(ctx, run, err.Error())
		return run, err
	}

	if err := o.openPullRequest(ctx, store, run); err != nil {
		return run, o.failRun(ctx, store, run, err)
	}

	now := o.clock.Now().UTC()
	run.CompletedAt = &now
	o.emit(store, run, constants.EventTaskCompleted, map[string]any{
		"pr_url":            run.PRURL,
		"total_tokens_used": run.TotalTokensUsed,
		"total_cost_usd":    run.TotalCostUSD,
	})
	o.snapshot(run)
	o.notify(ctx, run, "")

	o.logger.Info().
		Str("run_id", run.RunID).
		Str("pr_url", run.PRURL).
		Int("total_tokens", run.TotalTokensUsed).
		Msg("task completed")
	return run, nil
}

// prepareWorkspace creates the run directory, clones and branches the repo,
// lays out the agent scaffolding, and starts durable event appends. The
// event store initializes only after the clone: a pre-created log file makes
// the clone target non-empty.
func (o *Orchestrator) prepareWorkspace(ctx context.Context, store *events.Store, run *domain.TaskRun) error {
	wsPath, err := o.workspaces.Create(run.RunID)
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	run.WorkspacePath = wsPath

	branch, err := o.git.CloneAndBranch(ctx, wsPath, run.Ticket)
	if err != nil {
		return fmt.Errorf("clone workspace: %w", err)
	}
	run.BranchName = branch

	if err := o.workspaces.Prepare(wsPath); err != nil {
		return fmt.Errorf("prepare workspace: %w", err)
	}
	if err := store.Initialize(wsPath); err != nil {
		return fmt.Errorf("initialize event store: %w", err)
	}
	return nil
}

// planAndValidate runs the planner and the plan validator, returning the
// validated plan and the fully resolved budget.
func (o *Orchestrator) planAndValidate(ctx context.Context, store *events.Store, run *domain.TaskRun) (*domain.ExecutionPlan, domain.Budget, error) {
	run.Status = constants.RunStatusPlanning
	o.snapshot(run)

	catalog := config.EffectiveCatalog(o.platform, o.project)
	rules := config.EffectiveRules(o.platform, o.project)

	raw, err := o.planner.GeneratePlan(ctx, run.Ticket, catalog, rules, run.WorkspacePath)
	if err != nil {
		return nil, domain.Budget{}, fmt.Errorf("generate plan: %w", err)
	}
	run.Plan = raw
	o.emit(store, run, constants.EventTaskPlanGenerated, map[string]any{
		"plan_id": raw.PlanID,
		"steps":   len(raw.Steps),
	})

	validator := plan.NewValidator(catalog, rules, o.logger)
	validated, report, err := validator.Validate(raw, run.Ticket)
	if err != nil {
		return nil, domain.Budget{}, fmt.Errorf("validate plan: %w", err)
	}
	run.ValidatedPlan = validated
	o.emit(store, run, constants.EventTaskPlanValidated, map[string]any{
		"original_steps":  report.OriginalSteps,
		"validated_steps": report.ValidatedSteps,
		"injected_steps":  report.InjectedSteps,
	})

	return validated, config.ResolveBudget(o.platform, o.project, report.BudgetOverride), nil
}

// execute hands the validated plan to the scheduler.
func (o *Orchestrator) execute(ctx context.Context, store *events.Store, run *domain.TaskRun, validated *domain.ExecutionPlan, budget domain.Budget) error {
	gate := o.gate
	if gate == nil {
		gate = humangate.NewFilesystemChannel(workspace.ReviewsPath(run.WorkspacePath), o.clock, o.logger)
	}

	sched, err := scheduler.New(scheduler.Config{
		Agents:   o.agents,
		Planner:  o.planner,
		Git:      o.git,
		Events:   store,
		Sessions: session.NewStore(run.WorkspacePath),
		Gate:     gate,
		Quality:  o.quality,
		Platform: o.platform,
		Project:  o.project,
		Budget:   budget,
		Clock:    o.clock,
		Logger:   o.logger,
	})
	if err != nil {
		return err
	}

	o.snapshot(run)
	return sched.ExecutePlan(ctx, run, validated)
}

// openPullRequest pushes the branch, opens the PR, and moves the ticket to
// in_review. A ticket-update failure is logged, not fatal: the pull request
// already exists and failing the run would strand it.
func (o *Orchestrator) openPullRequest(ctx context.Context, store *events.Store, run *domain.TaskRun) error {
	message := prCommitMessage(run.Ticket)
	if err := o.git.CommitAndPush(ctx, run.WorkspacePath, message); err != nil {
		return fmt.Errorf("push branch: %w", err)
	}

	prURL, err := o.git.CreatePullRequest(ctx, run.WorkspacePath, run)
	if err != nil {
		return fmt.Errorf("create pull request: %w", err)
	}
	run.PRURL = prURL
	o.emit(store, run, constants.EventPRCreated, map[string]any{"pr_url": prURL})

	if o.tickets != nil && run.Ticket.Source != constants.SourcePrompt {
		if err := o.tickets.UpdateStatus(ctx, run.Ticket, TicketStatusInReview, prURL); err != nil {
			o.logger.Warn().Err(err).Str("ticket_id", run.Ticket.ID).Msg("ticket status not updated")
		} else {
			o.emit(store, run, constants.EventTicketUpdated, map[string]any{
				"ticket_id": run.Ticket.ID,
				"status":    TicketStatusInReview,
			})
		}
	}
	return nil
}

// failRun stamps a pre-scheduler failure onto the run and narrates it. The
// scheduler narrates its own failures; this path covers everything before
// and after plan execution.
func (o *Orchestrator) failRun(ctx context.Context, store *events.Store, run *domain.TaskRun, cause error) error {
	run.Status = constants.RunStatusFailed
	run.Error = cause.Error()
	now := o.clock.Now().UTC()
	run.CompletedAt = &now

	o.emit(store, run, constants.EventTaskFailed, map[string]any{"error": cause.Error()})
	o.snapshot(run)
	o.notify(ctx, run, cause.Error())

	o.logger.Error().Err(cause).Str("run_id", run.RunID).Msg("task failed")
	return cause
}

// snapshot persists run.json. Best-effort: a snapshot failure never aborts
// the run.
func (o *Orchestrator) snapshot(run *domain.TaskRun) {
	if run.WorkspacePath == "" {
		return
	}
	if err := workspace.SaveRun(run.WorkspacePath, run); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("run snapshot not written")
	}
}

// emit appends an event, logging (not failing) on error.
func (o *Orchestrator) emit(store *events.Store, run *domain.TaskRun, eventType constants.EventType, data map[string]any) {
	if err := store.Append(run.RunID, eventType, data); err != nil {
		o.logger.Warn().Err(err).Str("event_type", eventType.String()).Msg("event not recorded")
	}
}

// notify delivers the run-milestone notification when a notifier is wired.
func (o *Orchestrator) notify(ctx context.Context, run *domain.TaskRun, detail string) {
	if o.notifier == nil {
		return
	}
	msg := notify.ForRun(run)
	msg.Detail = detail
	if err := o.notifier.Notify(ctx, msg); err != nil {
		o.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("notification not delivered")
	}
}

// storeOptions derives event store options from the platform configuration.
func (o *Orchestrator) storeOptions() []events.Option {
	if o.platform.GlobalEventDir == "" {
		return nil
	}
	return []events.Option{events.WithGlobalLogDir(o.platform.GlobalEventDir)}
}

// prCommitMessage builds the residual-changes commit message for the push
// before PR creation.
func prCommitMessage(ticket *domain.Ticket) string {
	title := strings.TrimSpace(ticket.Title)
	if title == "" {
		title = "automated changes"
	}
	return fmt.Sprintf("%s: %s", ticket.ID, title)
}
