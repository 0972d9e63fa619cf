// Package cli provides the command-line interface for SprintFoundry.
package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sprintfoundry/sprintfoundry/internal/logging"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// GlobalFlags are the persistent flags shared by every subcommand.
type GlobalFlags struct {
	// Config is an explicit platform config file path.
	Config string

	// LogLevel overrides the configured log level.
	LogLevel string

	// LogFile receives rotating JSON logs in addition to stderr.
	LogFile string

	// Verbose forces debug-level logging.
	Verbose bool

	// Quiet suppresses console log output.
	Quiet bool
}

// globalLogger stores the initialized logger for use by subcommands.
// This is set during PersistentPreRunE and should be accessed via GetLogger.
// Access is protected by globalLoggerMu for thread safety.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the initialized logger for use by subcommands.
//
// This function MUST only be called after the root command's
// PersistentPreRunE has executed; before that it returns a zero-value
// logger that discards all output. Safe for concurrent use.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// newRootCmd creates and returns the root command for the sprintfoundry CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprintfoundry",
		Short: "SprintFoundry - AI software delivery orchestration engine",
		Long: `SprintFoundry drives a ticket from plan to pull request with a team of
AI agents: a planner decomposes the ticket, specialised agents execute the
steps inside an isolated workspace, and the engine enforces budgets, quality
gates, and human review along the way.`,
		Version: formatVersion(info),
		// Run displays help when the root command is invoked without
		// subcommands, ensuring PersistentPreRunE still runs.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level := flags.LogLevel
			if flags.Verbose {
				level = "debug"
			}

			globalLoggerMu.Lock()
			globalLogger = logging.New(logging.Options{
				Level:    level,
				Console:  !flags.Quiet,
				FilePath: flags.LogFile,
			})
			globalLoggerMu.Unlock()
			return nil
		},
		// We handle our own error messages.
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.Config, "config", "", "platform config file (default ~/.sprintfoundry/config.yaml)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "minimum log level (trace, debug, info, warn, error)")
	pf.StringVar(&flags.LogFile, "log-file", "", "write rotating JSON logs to this file")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "debug-level logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress console log output")

	AddRunCommand(cmd, flags)
	AddReviewCommand(cmd)
	AddEventsCommand(cmd)

	return cmd
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	return cmd.ExecuteContext(ctx)
}
