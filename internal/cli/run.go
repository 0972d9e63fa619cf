package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sprintfoundry/sprintfoundry/internal/config"
	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/ctxutil"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/gitops"
	"github.com/sprintfoundry/sprintfoundry/internal/notify"
	"github.com/sprintfoundry/sprintfoundry/internal/orchestrator"
	"github.com/sprintfoundry/sprintfoundry/internal/runtime"
	"github.com/sprintfoundry/sprintfoundry/internal/scheduler"
	"github.com/sprintfoundry/sprintfoundry/internal/tickets"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// plannerAgentID is the agent id used to resolve the planner's model through
// the normal model precedence chain.
const plannerAgentID = "planner"

// runOptions are the run command's flag values.
type runOptions struct {
	source        string
	prompt        string
	workspaceRoot string
	repoURL       string
	baseBranch    string
	projectConfig string
	catalogPath   string
	rulesPath     string
}

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command, flags *GlobalFlags) {
	root.AddCommand(newRunCmd(flags))
}

// newRunCmd creates the run command.
func newRunCmd(flags *GlobalFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [ticket-id]",
		Short: "Execute a ticket end to end and open a pull request",
		Long: `Run fetches (or synthesises) a ticket, plans it, executes the plan with
AI agents inside a fresh workspace clone, and opens a pull request.

With --prompt the ticket is synthesised from the prompt text and no ticket
provider is contacted; the ticket id argument becomes optional.

Examples:
  sprintfoundry run ENG-1234 --repo git@github.com:acme/widget.git
  sprintfoundry run --prompt "Add a /healthz endpoint" --repo git@github.com:acme/widget.git`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), os.Stdout, flags, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", string(constants.SourceGitHub), "ticket source (github, linear, jira, prompt; only github has a built-in provider)")
	f.StringVar(&opts.prompt, "prompt", "", "synthesise the ticket from this prompt text")
	f.StringVar(&opts.workspaceRoot, "workspace-root", "", "directory run workspaces are created under (default ~/.sprintfoundry/workspaces)")
	f.StringVar(&opts.repoURL, "repo", "", "repository URL to clone (overrides project config)")
	f.StringVar(&opts.baseBranch, "base-branch", "", "branch runs fork from (overrides project config)")
	f.StringVar(&opts.projectConfig, "project", "", "project config file (default ./.sprintfoundry/config.yaml when present)")
	f.StringVar(&opts.catalogPath, "catalog", "", "agent catalog YAML file (replaces the platform catalog)")
	f.StringVar(&opts.rulesPath, "rules", "", "policy rules YAML file (appended to the platform rules)")

	return cmd
}

// runRun executes the run command.
func runRun(ctx context.Context, w io.Writer, flags *GlobalFlags, opts *runOptions, args []string) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	logger := GetLogger()

	platform, err := config.LoadFrom(flags.Config)
	if err != nil {
		return err
	}
	if opts.catalogPath != "" {
		catalog, err := config.LoadCatalog(opts.catalogPath)
		if err != nil {
			return err
		}
		platform.Catalog = catalog
	}
	if opts.rulesPath != "" {
		rules, err := config.LoadRules(opts.rulesPath)
		if err != nil {
			return err
		}
		platform.Rules = append(platform.Rules, rules...)
	}

	project, err := resolveProject(opts)
	if err != nil {
		return err
	}

	ticketID, source, err := resolveTicketRef(opts, args)
	if err != nil {
		return err
	}

	repoURL, baseBranch := opts.repoURL, opts.baseBranch
	if project != nil {
		if repoURL == "" {
			repoURL = project.RepoURL
		}
		if baseBranch == "" {
			baseBranch = project.BaseBranch
		}
	}
	if repoURL == "" {
		return fmt.Errorf("%w: no repository URL (use --repo or a project config)", sferrors.ErrConfigInvalid)
	}

	workspaceRoot := opts.workspaceRoot
	if workspaceRoot == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve workspace root: %w", err)
		}
		workspaceRoot = filepath.Join(home, constants.StateDir, "workspaces")
	}

	plannerModel := config.ResolveModel(platform, project, plannerAgentID)
	var notifier notify.Notifier
	if platform.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(platform.WebhookURL, logger)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Tickets:    tickets.NewGitHubCLI(logger),
		Agents:     runtime.NewCLIRuntime(logger),
		Planner:    runtime.NewCLIPlanner(plannerModel, platform.APIKeys[plannerModel.Provider], logger),
		Git:        gitops.NewCLI(repoURL, baseBranch, logger),
		Workspaces: workspace.NewManager(workspaceRoot, logger),
		Quality:    scheduler.NewCommandGate(logger),
		Notifier:   notifier,
		Platform:   platform,
		Project:    project,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	run, err := orch.HandleTask(ctx, ticketID, source, opts.prompt)
	if run != nil {
		printRunSummary(w, run.RunID, run.WorkspacePath, run.PRURL, run.Error)
	}
	return err
}

// resolveProject loads the project config from the --project flag, or from
// ./.sprintfoundry/config.yaml when it exists. No project config is fine.
func resolveProject(opts *runOptions) (*config.Project, error) {
	path := opts.projectConfig
	if path == "" {
		candidate := filepath.Join(".", constants.StateDir, "config.yaml")
		if _, err := os.Stat(candidate); err != nil {
			return nil, nil
		}
		path = candidate
	}
	return config.LoadProject(path)
}

// resolveTicketRef decides the ticket id and source from flags and args.
// A prompt forces the prompt source; otherwise a ticket id is required.
func resolveTicketRef(opts *runOptions, args []string) (string, constants.TicketSource, error) {
	if opts.prompt != "" {
		id := "prompt-" + uuid.NewString()[:8]
		if len(args) > 0 {
			id = args[0]
		}
		return id, constants.SourcePrompt, nil
	}

	if len(args) == 0 {
		return "", "", fmt.Errorf("ticket id: %w", sferrors.ErrEmptyValue)
	}
	source := constants.TicketSource(opts.source)
	switch source {
	case constants.SourceLinear, constants.SourceGitHub, constants.SourceJira, constants.SourcePrompt:
		return args[0], source, nil
	default:
		return "", "", fmt.Errorf("%w: %s", sferrors.ErrUnknownTicketSource, opts.source)
	}
}

// printRunSummary writes the human-facing run outcome.
func printRunSummary(w io.Writer, runID, workspacePath, prURL, runErr string) {
	label := lipgloss.NewStyle().Bold(true)
	ok := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	bad := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	fmt.Fprintf(w, "%s %s\n", label.Render("Run:"), runID)
	if workspacePath != "" {
		fmt.Fprintf(w, "%s %s\n", label.Render("Workspace:"), workspacePath)
	}
	switch {
	case prURL != "":
		fmt.Fprintf(w, "%s %s\n", label.Render("Pull request:"), ok.Render(prURL))
	case runErr != "":
		fmt.Fprintf(w, "%s %s\n", label.Render("Failed:"), bad.Render(runErr))
	}
}
