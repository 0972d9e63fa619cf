package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
)

// WriteStepContext dumps the results of a step's dependencies into
// .agent-context/ as step-<n>.json files, replacing whatever the previous
// step left there. Runtimes read these to give the agent its upstream
// context.
func WriteStepContext(workspacePath string, results map[int]*domain.AgentResult) error {
	dir := filepath.Join(workspacePath, constants.AgentContextDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear step context: %w", err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("write step context: %w", err)
	}

	for stepNumber, result := range results {
		if result == nil {
			continue
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("write step context: %w", err)
		}
		name := fmt.Sprintf("step-%d.json", stepNumber)
		if err := os.WriteFile(filepath.Join(dir, name), data, filePerm); err != nil {
			return fmt.Errorf("write step context: %w", err)
		}
	}
	return nil
}

// WriteStepResult archives an attempt's agent result under
// .sprintfoundry/step-results/step-<n>.attempt-<k>.<agent>.json. Archival is
// best-effort from the scheduler's point of view, but errors are still
// returned for logging.
func WriteStepResult(workspacePath string, stepNumber, attempt int, agent string, result *domain.AgentResult) error {
	dir := filepath.Join(workspacePath, constants.StateDir, constants.StepResultsDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("archive step result: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("archive step result: %w", err)
	}

	name := fmt.Sprintf("step-%d.attempt-%d.%s.json", stepNumber, attempt, agent)
	if err := os.WriteFile(filepath.Join(dir, name), data, filePerm); err != nil {
		return fmt.Errorf("archive step result: %w", err)
	}
	return nil
}
