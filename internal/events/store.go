// Package events provides the append-only event log that narrates a run.
//
// Every state change the scheduler and orchestrator make is recorded as an
// Event, buffered in memory for filtered reads and appended as JSON lines to
// the per-run .events.jsonl file in the workspace. An optional process-wide
// log directory receives a rotating copy of every event across runs.
//
// Import rules:
//   - CAN import: internal/constants, internal/domain, internal/errors, std lib
//   - MUST NOT import: internal/scheduler, internal/orchestrator
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	"github.com/sprintfoundry/sprintfoundry/internal/domain"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

// File permission constants.
const (
	dirPerm  = 0o750 // Secure directory permissions
	filePerm = 0o600 // Secure file permissions
)

// Store is the append-only event log for runs. A single Store instance is the
// single writer for its run; Store methods are safe for concurrent use but
// callers must not share one workspace file across Store instances.
type Store struct {
	mu     sync.Mutex
	buffer []domain.Event
	file   *os.File
	global *lumberjack.Logger
	closed bool
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithGlobalLogDir additionally appends every event to a rotating
// events.jsonl inside the given directory, across all runs of the process.
func WithGlobalLogDir(dir string) Option {
	return func(s *Store) {
		s.global = &lumberjack.Logger{
			Filename:   filepath.Join(dir, "events.jsonl"),
			MaxSize:    100, // MB
			MaxBackups: 10,
			Compress:   true,
		}
	}
}

// NewStore creates an event store with an empty buffer. Call Initialize once
// the workspace directory has been populated to start durable appends.
func NewStore(logger zerolog.Logger, opts ...Option) *Store {
	s := &Store{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens the per-run JSONL file under the workspace. It is
// idempotent: repeated calls (with any path) after the first are no-ops.
//
// Initialize must be called AFTER the workspace has been populated by git
// clone. Creating .events.jsonl first makes the clone target non-empty and
// `git clone . <dir>` fails.
func (s *Store) Initialize(workspacePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sferrors.ErrEventStoreClosed
	}
	if s.file != nil {
		return nil
	}
	if workspacePath == "" {
		return fmt.Errorf("initialize event store: workspace path %w", sferrors.ErrEmptyValue)
	}

	if err := os.MkdirAll(workspacePath, dirPerm); err != nil {
		return fmt.Errorf("initialize event store: %w", err)
	}

	path := filepath.Join(workspacePath, constants.EventLogFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm) //#nosec G304 -- path is constructed internally
	if err != nil {
		return fmt.Errorf("initialize event store: %w", err)
	}
	s.file = f

	// Events appended before the workspace existed (task.created and friends
	// precede the clone) are replayed so the durable log is complete.
	for _, event := range s.buffer {
		line, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if _, err := s.file.Write(append(line, '\n')); err != nil {
			s.logger.Warn().Err(err).Msg("failed to replay buffered event")
			break
		}
	}
	return nil
}

// Append records an event of the given type for a run. The event id and
// timestamp are filled in here so callers only supply type and data.
func (s *Store) Append(runID string, eventType constants.EventType, data map[string]any) error {
	event := domain.Event{
		EventID:   "evt-" + uuid.NewString(),
		RunID:     runID,
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	return s.StoreEvent(event)
}

// StoreEvent appends a fully formed event to the buffer and, once
// initialized, to the workspace file and the global log.
//
// Durable-write errors are logged but do not fail the caller; the run
// narration is best-effort durable, never a reason to abort work.
func (s *Store) StoreEvent(event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sferrors.ErrEventStoreClosed
	}

	s.buffer = append(s.buffer, event)

	line, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.EventType.String()).Msg("event not serializable, kept in buffer only")
		return nil
	}
	line = append(line, '\n')

	if s.file != nil {
		if _, err := s.file.Write(line); err != nil {
			s.logger.Warn().Err(err).Str("event_type", event.EventType.String()).Msg("failed to append event to workspace log")
		}
	}
	if s.global != nil {
		if _, err := s.global.Write(line); err != nil {
			s.logger.Warn().Err(err).Msg("failed to append event to global log")
		}
	}
	return nil
}

// GetAll returns a copy of the buffered events in append order.
func (s *Store) GetAll() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// GetByRunID returns buffered events for one run, in append order.
func (s *Store) GetByRunID(runID string) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.buffer {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// GetByType returns buffered events of one type, in append order.
func (s *Store) GetByType(eventType constants.EventType) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.buffer {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// LoadFromFile parses a JSONL event file and seeds the buffer with its
// events. Lines that do not parse as events are skipped: a crash can leave a
// partial final line and readers must tolerate it.
func (s *Store) LoadFromFile(path string) error {
	f, err := os.Open(path) //#nosec G304 -- caller supplies a workspace-local path
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var loaded []domain.Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event domain.Event
		if err := json.Unmarshal(line, &event); err != nil {
			// Partial or corrupt line; skip it.
			continue
		}
		loaded = append(loaded, event)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sferrors.ErrEventStoreClosed
	}
	s.buffer = append(s.buffer, loaded...)
	return nil
}

// Close flushes and closes the durable writers. Further stores return
// ErrEventStoreClosed. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.file != nil {
		if err := s.file.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.file = nil
	}
	if s.global != nil {
		if err := s.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return fmt.Errorf("close event store: %w", firstErr)
	}
	return nil
}
