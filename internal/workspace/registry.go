package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// RunFilePath returns the run.json location for a workspace.
func RunFilePath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.StateDir, constants.RunFileName)
}

// SaveRun snapshots the run to run.json atomically (write-then-rename). The
// orchestrator calls this after every run status change so external observers
// always see a consistent snapshot.
func SaveRun(workspacePath string, run *domain.TaskRun) error {
	if run.SchemaVersion == 0 {
		run.SchemaVersion = constants.RunSchemaVersion
	}

	path := RunFilePath(workspacePath)
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePerm); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// LoadRun reads a run.json snapshot.
func LoadRun(workspacePath string) (*domain.TaskRun, error) {
	data, err := os.ReadFile(RunFilePath(workspacePath)) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sferrors.ErrRunNotFound, workspacePath)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	var run domain.TaskRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return &run, nil
}
