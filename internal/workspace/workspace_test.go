package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/logging"
)

func TestManager_Create(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Nop())

	path, err := m.Create("run-1")
	require.NoError(t, err)
	assert.Contains(t, path, "run-1")

	// The directory itself must not exist yet: git clone needs it absent.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestManager_Create_ExistingWorkspace(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, logging.Nop())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run-1"), 0o750))

	_, err := m.Create("run-1")
	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrWorkspaceExists)
}

func TestManager_Create_EmptyRunID(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Nop())

	_, err := m.Create("")
	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrEmptyValue)
}

func TestManager_Prepare(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CLAUDE.md"), []byte("profile\n"), 0o600))

	m := NewManager(t.TempDir(), logging.Nop())
	require.NoError(t, m.Prepare(dir))

	assert.DirExists(t, filepath.Join(dir, constants.StateDir, constants.ReviewsDir))
	assert.DirExists(t, filepath.Join(dir, constants.StateDir, constants.StepResultsDir))
	assert.DirExists(t, filepath.Join(dir, constants.ArtifactsDir, constants.HandoffDir))

	profile, err := os.ReadFile(filepath.Join(dir, constants.AgentProfileFileName))
	require.NoError(t, err)
	assert.Equal(t, "profile\n", string(profile))
}

func TestManager_Prepare_AgentsFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte("agents\n"), 0o600))

	m := NewManager(t.TempDir(), logging.Nop())
	require.NoError(t, m.Prepare(dir))

	profile, err := os.ReadFile(filepath.Join(dir, constants.AgentProfileFileName))
	require.NoError(t, err)
	assert.Equal(t, "agents\n", string(profile))
}

func TestManager_Prepare_NoProfileIsFine(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(t.TempDir(), logging.Nop())

	require.NoError(t, m.Prepare(dir))
	assert.NoFileExists(t, filepath.Join(dir, constants.AgentProfileFileName))
}

func TestManager_Prepare_MissingWorkspace(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Nop())

	err := m.Prepare(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrWorkspaceNotFound)
}

func TestSaveRun_LoadRun_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	run := &domain.TaskRun{
		RunID:  "run-2",
		Status: constants.RunStatusExecuting,
		Ticket: &domain.Ticket{ID: "ENG-2", Source: constants.SourceGitHub},
	}

	require.NoError(t, SaveRun(dir, run))
	assert.Equal(t, constants.RunSchemaVersion, run.SchemaVersion)

	loaded, err := LoadRun(dir)
	require.NoError(t, err)
	assert.Equal(t, "run-2", loaded.RunID)
	assert.Equal(t, constants.RunStatusExecuting, loaded.Status)
	assert.Equal(t, "ENG-2", loaded.Ticket.ID)
}

func TestLoadRun_Missing(t *testing.T) {
	_, err := LoadRun(t.TempDir())
	require.Error(t, err)
	require.ErrorIs(t, err, sferrors.ErrRunNotFound)
}

func TestSaveRun_NoPartialFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveRun(dir, &domain.TaskRun{RunID: "run-3"}))

	// The temp file must not survive the rename.
	assert.NoFileExists(t, RunFilePath(dir)+".tmp")
}

func TestWriteStepContext_ReplacesPrevious(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, WriteStepContext(dir, map[int]*domain.AgentResult{
		1: {Status: constants.AgentStatusComplete, Summary: "did step one"},
	}))
	assert.FileExists(t, filepath.Join(dir, constants.AgentContextDir, "step-1.json"))

	require.NoError(t, WriteStepContext(dir, map[int]*domain.AgentResult{
		2: {Status: constants.AgentStatusComplete, Summary: "did step two"},
	}))
	assert.NoFileExists(t, filepath.Join(dir, constants.AgentContextDir, "step-1.json"))
	assert.FileExists(t, filepath.Join(dir, constants.AgentContextDir, "step-2.json"))
}

func TestWriteStepResult(t *testing.T) {
	dir := t.TempDir()
	result := &domain.AgentResult{Status: constants.AgentStatusNeedsRework, ReworkReason: "tests fail"}

	require.NoError(t, WriteStepResult(dir, 3, 2, "qa", result))

	path := filepath.Join(dir, constants.StateDir, constants.StepResultsDir, "step-3.attempt-2.qa.json")
	data, err := os.ReadFile(path) //#nosec G304 -- test-owned path
	require.NoError(t, err)
	assert.Contains(t, string(data), "tests fail")
}
