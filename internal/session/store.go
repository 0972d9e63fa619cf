// Package session provides the durable runtime session store.
//
// Resumable runtimes hand back a session_id per step attempt; the scheduler
// records it here and queries the latest session for an agent when a retry
// wants to resume cached context. The store is a single JSON file inside the
// workspace state directory, rewritten read-modify-write under an exclusive
// file lock so parallel-group completions never lose records.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
	"github.com/sprintfoundry/sprintfoundry/internal/flock"
)

// LockTimeout is the maximum duration to wait for acquiring the store lock.
const LockTimeout = 5 * time.Second

// File permission constants.
const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Record is one runtime session entry, keyed on
// (run_id, agent, step_number, step_attempt).
type Record struct {
	// RunID is the run the session belongs to.
	RunID string `json:"run_id"`

	// Agent is the agent id that owns the session.
	Agent string `json:"agent"`

	// StepNumber is the plan step of the recording attempt.
	StepNumber int `json:"step_number"`

	// StepAttempt is the 1-based attempt counter for the step.
	StepAttempt int `json:"step_attempt"`

	// SessionID is the runtime's resumable session identifier.
	SessionID string `json:"session_id"`

	// Runtime names the runtime provider that issued the session.
	Runtime string `json:"runtime,omitempty"`

	// Model is the model the session ran with.
	Model string `json:"model,omitempty"`

	// TokensUsed is the attempt's token consumption.
	TokensUsed int `json:"tokens_used,omitempty"`

	// ResumeUsed is true when the attempt itself resumed an earlier session.
	ResumeUsed bool `json:"resume_used,omitempty"`

	// TokenSavings is the tokens saved by resuming, when reported.
	TokenSavings int `json:"token_savings,omitempty"`

	// UpdatedAt is when the record was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// fileShape is the on-disk schema of sessions.json.
type fileShape struct {
	Version  int      `json:"version"`
	Sessions []Record `json:"sessions"`
}

// Store persists runtime session records for one workspace.
type Store struct {
	workspacePath string
}

// NewStore creates a session store rooted at the given workspace.
func NewStore(workspacePath string) *Store {
	return &Store{workspacePath: workspacePath}
}

// Path returns the sessions.json location for the workspace.
func (s *Store) Path() string {
	return filepath.Join(s.workspacePath, constants.StateDir, constants.SessionsFileName)
}

// Record upserts a session record. An existing record with the same
// (run, agent, step, attempt) key is replaced; otherwise the record is
// appended. The whole cycle runs under the store lock.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.RunID == "" {
		return fmt.Errorf("record session: run id %w", sferrors.ErrEmptyValue)
	}
	if rec.Agent == "" {
		return fmt.Errorf("record session: agent %w", sferrors.ErrEmptyValue)
	}
	if rec.SessionID == "" {
		return fmt.Errorf("record session: session id %w", sferrors.ErrEmptyValue)
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	lockFile, err := s.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	shape, err := s.load()
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}

	replaced := false
	for i := range shape.Sessions {
		existing := &shape.Sessions[i]
		if existing.RunID == rec.RunID && existing.Agent == rec.Agent &&
			existing.StepNumber == rec.StepNumber && existing.StepAttempt == rec.StepAttempt {
			*existing = rec
			replaced = true
			break
		}
	}
	if !replaced {
		shape.Sessions = append(shape.Sessions, rec)
	}

	if err := s.save(shape); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// FindLatestByAgent returns the most recent session record for the given
// (run, agent) pair, or nil when none exists. "Latest" orders by updated_at,
// then step number, then attempt, all descending.
func (s *Store) FindLatestByAgent(ctx context.Context, runID, agent string) (*Record, error) {
	lockFile, err := s.acquireLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	defer func() { _ = s.releaseLock(lockFile) }()

	shape, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}

	var best *Record
	for i := range shape.Sessions {
		rec := &shape.Sessions[i]
		if rec.RunID != runID || rec.Agent != agent {
			continue
		}
		if best == nil || newerThan(rec, best) {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

// newerThan reports whether a should sort before b under the latest-first order.
func newerThan(a, b *Record) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if a.StepNumber != b.StepNumber {
		return a.StepNumber > b.StepNumber
	}
	return a.StepAttempt > b.StepAttempt
}

// load reads sessions.json, tolerating a missing file (empty store).
func (s *Store) load() (*fileShape, error) {
	data, err := os.ReadFile(s.Path()) //#nosec G304 -- path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return &fileShape{Version: constants.SessionStoreVersion}, nil
		}
		return nil, err
	}
	var shape fileShape
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("%w: %s", sferrors.ErrSessionStoreCorrupted, err)
	}
	if shape.Version == 0 {
		shape.Version = constants.SessionStoreVersion
	}
	return &shape, nil
}

// save writes sessions.json atomically (write-then-rename).
func (s *Store) save(shape *fileShape) error {
	path := s.Path()
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	data, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, filePerm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// acquireLock acquires the exclusive store lock, retrying until LockTimeout.
func (s *Store) acquireLock(ctx context.Context) (*os.File, error) {
	lockPath := s.Path() + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), dirPerm); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(LockTimeout)
	for {
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, ctx.Err()
		default:
		}

		if err := flock.Exclusive(f.Fd()); err == nil {
			return f, nil
		}

		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, sferrors.ErrLockTimeout
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// releaseLock releases the store lock.
func (s *Store) releaseLock(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := flock.Unlock(f.Fd()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
