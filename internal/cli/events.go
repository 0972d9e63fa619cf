package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	"github.com/sprintfoundry/sprintfoundry/internal/workspace"
)

// followPollInterval is how often --follow re-checks the log for new lines.
const followPollInterval = 1 * time.Second

// eventsOptions are the events command's flag values.
type eventsOptions struct {
	types  []string
	follow bool
	asJSON bool
}

// AddEventsCommand adds the events command to the root command.
func AddEventsCommand(root *cobra.Command) {
	root.AddCommand(newEventsCmd())
}

// newEventsCmd creates the events command.
func newEventsCmd() *cobra.Command {
	opts := &eventsOptions{}

	cmd := &cobra.Command{
		Use:   "events <workspace-path>",
		Short: "Print a run's event log",
		Long: `Events prints the append-only event log of a run workspace, optionally
filtered by event type and optionally following the log as the run
progresses.

Examples:
  sprintfoundry events <workspace>
  sprintfoundry events <workspace> --type step.failed --type rework_triggered
  sprintfoundry events <workspace> --follow`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd.Context(), os.Stdout, args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.types, "type", nil, "only show events of this type (repeatable)")
	f.BoolVarP(&opts.follow, "follow", "f", false, "keep reading as new events are appended")
	f.BoolVar(&opts.asJSON, "json", false, "print raw JSON lines instead of formatted output")

	return cmd
}

// runEvents executes the events command.
func runEvents(ctx context.Context, w io.Writer, workspacePath string, opts *eventsOptions) error {
	path := workspace.EventLogPath(workspacePath)

	file, err := os.Open(path) //#nosec G304 -- path is derived from the workspace argument
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = file.Close() }()

	filter := typeFilter(opts.types)
	reader := bufio.NewReader(file)

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			printEventLine(w, strings.TrimRight(line, "\n"), filter, opts.asJSON)
		}
		if err == nil {
			continue
		}
		if err != io.EOF {
			return fmt.Errorf("read event log: %w", err)
		}
		if !opts.follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(followPollInterval):
		}
	}
}

// typeFilter builds a set from the --type flags. Empty means "all".
func typeFilter(types []string) map[constants.EventType]bool {
	if len(types) == 0 {
		return nil
	}
	filter := make(map[constants.EventType]bool, len(types))
	for _, t := range types {
		filter[constants.EventType(t)] = true
	}
	return filter
}

// printEventLine parses one log line and prints it if it passes the filter.
// Unparseable lines (a crash mid-write leaves at most one) are skipped.
func printEventLine(w io.Writer, line string, filter map[constants.EventType]bool, asJSON bool) {
	var event domain.Event
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return
	}
	if filter != nil && !filter[event.EventType] {
		return
	}
	if asJSON {
		fmt.Fprintln(w, line)
		return
	}
	fmt.Fprintln(w, formatEvent(&event))
}

// formatEvent renders one event for the terminal.
func formatEvent(event *domain.Event) string {
	var b strings.Builder
	b.WriteString(event.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString("  ")
	b.WriteString(eventTypeStyle(event.EventType).Render(string(event.EventType)))

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s=%v", k, event.Data[k])
	}
	return b.String()
}

// eventTypeStyle colours event types by outcome class.
func eventTypeStyle(eventType constants.EventType) lipgloss.Style {
	name := string(eventType)
	switch {
	case strings.HasSuffix(name, ".failed") || strings.HasSuffix(name, "_exceeded"):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	case strings.HasSuffix(name, ".completed") || name == "pr.created":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	case strings.Contains(name, "rework") || strings.HasPrefix(name, "human_gate"):
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	}
}
