// Package workspace manages the per-run workspace directory layout and the
// run.json registry snapshot.
//
// A workspace is exclusive to one run. The engine-owned state lives under
// .sprintfoundry/; agent-facing scratch files (the per-attempt
// .agent-task.step-* and .agent-result.step-* files, .agent-context/) sit at
// the workspace root where runtimes expect them.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// dirPerm is the mode for engine-created directories.
const dirPerm = 0o750

// filePerm is the mode for engine-created files.
const filePerm = 0o600

// Manager creates and prepares run workspaces under a root directory.
type Manager struct {
	root   string
	logger zerolog.Logger
}

// NewManager returns a Manager rooted at the given directory.
func NewManager(root string, logger zerolog.Logger) *Manager {
	return &Manager{
		root:   root,
		logger: logger.With().Str("component", "workspace").Logger(),
	}
}

// Create allocates a new empty workspace directory for a run. The directory
// must not already exist: workspaces are never shared between runs.
//
// Create intentionally does NOT populate the directory. Git clone requires an
// empty (or absent) target, so all layout preparation happens in Prepare,
// after the clone.
func (m *Manager) Create(runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id: %w", sferrors.ErrEmptyValue)
	}
	path := filepath.Join(m.root, runID)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", sferrors.ErrWorkspaceExists, path)
	}
	if err := os.MkdirAll(m.root, dirPerm); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}
	return path, nil
}

// Prepare lays out the engine-owned directories inside a cloned workspace and
// copies the agent system profile into place. Call after git clone.
func (m *Manager) Prepare(workspacePath string) error {
	if _, err := os.Stat(workspacePath); err != nil {
		return fmt.Errorf("%w: %s", sferrors.ErrWorkspaceNotFound, workspacePath)
	}

	for _, dir := range []string{
		filepath.Join(workspacePath, constants.StateDir),
		filepath.Join(workspacePath, constants.StateDir, constants.ReviewsDir),
		filepath.Join(workspacePath, constants.StateDir, constants.StepResultsDir),
		filepath.Join(workspacePath, constants.ArtifactsDir, constants.HandoffDir),
		filepath.Join(workspacePath, constants.AgentContextDir),
	} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("prepare workspace: %w", err)
		}
	}

	if err := m.copyAgentProfile(workspacePath); err != nil {
		return err
	}

	m.logger.Debug().Str("workspace", workspacePath).Msg("workspace prepared")
	return nil
}

// copyAgentProfile copies CLAUDE.md or AGENTS.md (first found) to
// .agent-profile.md. A repository without a profile is fine.
func (m *Manager) copyAgentProfile(workspacePath string) error {
	for _, name := range []string{"CLAUDE.md", "AGENTS.md"} {
		src := filepath.Join(workspacePath, name)
		data, err := os.ReadFile(src) //#nosec G304 -- path is built from constants inside the workspace
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("read agent profile: %w", err)
		}
		dst := filepath.Join(workspacePath, constants.AgentProfileFileName)
		if err := os.WriteFile(dst, data, filePerm); err != nil {
			return fmt.Errorf("copy agent profile: %w", err)
		}
		return nil
	}
	return nil
}

// StateDirPath returns the engine-owned state directory for a workspace.
func StateDirPath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.StateDir)
}

// SessionsPath returns the runtime session store file for a workspace.
func SessionsPath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.StateDir, constants.SessionsFileName)
}

// ReviewsPath returns the human-gate rendezvous directory for a workspace.
func ReviewsPath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.StateDir, constants.ReviewsDir)
}

// EventLogPath returns the per-run event log file for a workspace.
func EventLogPath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.EventLogFileName)
}
