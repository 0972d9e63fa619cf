package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/ctxutil"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// decisionFilePerm is the mode for decision files the command writes.
const decisionFilePerm = 0o600

// reviewOptions are the review command's flag values.
type reviewOptions struct {
	approve  string
	reject   string
	feedback string
}

// AddReviewCommand adds the review command to the root command.
func AddReviewCommand(root *cobra.Command) {
	root.AddCommand(newReviewCmd())
}

// newReviewCmd creates the review command.
func newReviewCmd() *cobra.Command {
	opts := &reviewOptions{}

	cmd := &cobra.Command{
		Use:   "review <workspace-path>",
		Short: "Decide pending human-review gates for a run",
		Long: `Review lists the pending human-review gates in a run workspace and records
a decision for one of them. The engine blocks at required gates until a
decision file appears, so this command is how an operator unblocks a run.

Without flags the command is interactive. In scripts (or without a TTY) pass
--approve or --reject with the review id.

Examples:
  sprintfoundry review ~/.sprintfoundry/workspaces/run-20260825-101501-ab12cd34
  sprintfoundry review <workspace> --reject review-3 --feedback "wrong API shape"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd.Context(), os.Stdout, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.approve, "approve", "", "approve the given review id")
	f.StringVar(&opts.reject, "reject", "", "reject the given review id")
	f.StringVar(&opts.feedback, "feedback", "", "reviewer feedback recorded with the decision")

	return cmd
}

// runReview executes the review command.
func runReview(ctx context.Context, w io.Writer, workspacePath string, opts *reviewOptions) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}

	reviewsDir := workspace.ReviewsPath(workspacePath)
	pending, err := loadPendingReviews(reviewsDir)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(w, "No pending reviews.")
		return nil
	}

	if opts.approve != "" || opts.reject != "" {
		return decideFromFlags(w, reviewsDir, pending, opts)
	}

	if !terminalCheck() {
		return fmt.Errorf("pass --approve or --reject: %w", sferrors.ErrNonInteractiveMode)
	}
	return decideInteractive(w, reviewsDir, pending)
}

// loadPendingReviews reads every pending review file in the reviews directory,
// oldest first.
func loadPendingReviews(reviewsDir string) ([]*domain.HumanReview, error) {
	entries, err := os.ReadDir(reviewsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reviews: %w", err)
	}

	var pending []*domain.HumanReview
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.ReviewPendingSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(reviewsDir, entry.Name())) //#nosec G304 -- path is inside the reviews directory
		if err != nil {
			return nil, fmt.Errorf("read review %s: %w", entry.Name(), err)
		}
		var review domain.HumanReview
		if err := json.Unmarshal(data, &review); err != nil {
			return nil, fmt.Errorf("parse review %s: %w", entry.Name(), err)
		}
		pending = append(pending, &review)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	return pending, nil
}

// decideFromFlags records the decision named by --approve/--reject.
func decideFromFlags(w io.Writer, reviewsDir string, pending []*domain.HumanReview, opts *reviewOptions) error {
	if opts.approve != "" && opts.reject != "" {
		return fmt.Errorf("%w: --approve and --reject are mutually exclusive", sferrors.ErrConfigInvalid)
	}

	reviewID, status := opts.approve, constants.ReviewStatusApproved
	if opts.reject != "" {
		reviewID, status = opts.reject, constants.ReviewStatusRejected
	}

	if findReview(pending, reviewID) == nil {
		return fmt.Errorf("review %s: %w", reviewID, sferrors.ErrReviewNotFound)
	}
	return writeDecision(w, reviewsDir, reviewID, status, opts.feedback)
}

// decideInteractive walks the operator through selecting a review and a
// verdict.
func decideInteractive(w io.Writer, reviewsDir string, pending []*domain.HumanReview) error {
	var (
		reviewID string
		approved bool
		feedback string
	)

	form := createReviewForm(pending, &reviewID, &approved, &feedback)
	if err := form.Run(); err != nil {
		return fmt.Errorf("review form: %w", err)
	}

	status := constants.ReviewStatusRejected
	if approved {
		status = constants.ReviewStatusApproved
	}
	return writeDecision(w, reviewsDir, reviewID, status, feedback)
}

// writeDecision writes the decision file the engine's rendezvous polls for.
func writeDecision(w io.Writer, reviewsDir, reviewID string, status constants.ReviewStatus, feedback string) error {
	decision := domain.ReviewDecision{Status: status, ReviewerFeedback: feedback}
	data, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}

	path := filepath.Join(reviewsDir, reviewID+constants.ReviewDecisionSuffix)
	if err := os.WriteFile(path, data, decisionFilePerm); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	if status == constants.ReviewStatusApproved {
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	}
	fmt.Fprintf(w, "Review %s: %s\n", reviewID, style.Render(string(status)))
	return nil
}

// findReview returns the pending review with the given id, or nil.
func findReview(pending []*domain.HumanReview, reviewID string) *domain.HumanReview {
	for _, review := range pending {
		if review.ReviewID == reviewID {
			return review
		}
	}
	return nil
}

// formRunner matches huh.Form's Run method so tests can inject a scripted
// form.
type formRunner interface {
	Run() error
}

// createReviewForm is the factory for the interactive review form. Tests
// override it to script decisions.
//
//nolint:gochecknoglobals // Test injection point
var createReviewForm = defaultCreateReviewForm

// defaultCreateReviewForm builds the huh form for selecting and deciding a
// pending review.
func defaultCreateReviewForm(pending []*domain.HumanReview, reviewID *string, approved *bool, feedback *string) formRunner {
	options := make([]huh.Option[string], 0, len(pending))
	for _, review := range pending {
		title := fmt.Sprintf("%s (run %s, after step %d)", review.ReviewID, review.RunID, review.AfterStep)
		if review.Summary != "" {
			title += ": " + review.Summary
		}
		options = append(options, huh.NewOption(title, review.ReviewID))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Pending reviews").
				Options(options...).
				Value(reviewID),
			huh.NewConfirm().
				Title("Approve this work?").
				Affirmative("Approve").
				Negative("Reject").
				Value(approved),
			huh.NewInput().
				Title("Feedback (optional)").
				Value(feedback),
		),
	)
}

// terminalCheck reports whether stdin is an interactive terminal. Variable so
// tests can force either mode.
//
//nolint:gochecknoglobals // Test injection point
var terminalCheck = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
