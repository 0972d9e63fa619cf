package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprintfoundry/sprintfoundry/internal/constants"
	sferrors "github.com/sprintfoundry/sprintfoundry/internal/errors"
)

func record(agent string, step, attempt int, sessionID string, updatedAt time.Time) Record {
	return Record{
		RunID:       "run-1",
		Agent:       agent,
		StepNumber:  step,
		StepAttempt: attempt,
		SessionID:   sessionID,
		Runtime:     "claude-cli",
		UpdatedAt:   updatedAt,
	}
}

func TestStore_RecordAndFind(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, record("developer", 1, 1, "sess-a", now)))

	found, err := s.FindLatestByAgent(ctx, "run-1", "developer")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "sess-a", found.SessionID)

	missing, err := s.FindLatestByAgent(ctx, "run-1", "qa")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_FileShape(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Record(context.Background(), record("developer", 1, 1, "sess-a", time.Now().UTC())))

	data, err := os.ReadFile(s.Path()) //#nosec G304 -- test fixture path
	require.NoError(t, err)

	var shape struct {
		Version  int      `json:"version"`
		Sessions []Record `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(data, &shape))
	assert.Equal(t, constants.SessionStoreVersion, shape.Version)
	require.Len(t, shape.Sessions, 1)
}

func TestStore_UpsertReplacesSameKey(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, record("developer", 1, 1, "sess-a", now)))
	require.NoError(t, s.Record(ctx, record("developer", 1, 1, "sess-b", now.Add(time.Minute))))

	found, err := s.FindLatestByAgent(ctx, "run-1", "developer")
	require.NoError(t, err)
	assert.Equal(t, "sess-b", found.SessionID)

	data, err := os.ReadFile(s.Path()) //#nosec G304 -- test fixture path
	require.NoError(t, err)
	var shape struct {
		Sessions []Record `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(data, &shape))
	assert.Len(t, shape.Sessions, 1)
}

func TestStore_LatestOrdering(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name    string
		records []Record
		want    string
	}{
		{
			name: "updated_at wins",
			records: []Record{
				record("developer", 5, 1, "sess-old", now.Add(-time.Hour)),
				record("developer", 1, 1, "sess-new", now),
			},
			want: "sess-new",
		},
		{
			name: "step breaks updated_at tie",
			records: []Record{
				record("developer", 1, 1, "sess-step1", now),
				record("developer", 3, 1, "sess-step3", now),
			},
			want: "sess-step3",
		},
		{
			name: "attempt breaks step tie",
			records: []Record{
				record("developer", 2, 1, "sess-first", now),
				record("developer", 2, 3, "sess-retry", now),
			},
			want: "sess-retry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(t.TempDir())
			for _, rec := range tt.records {
				require.NoError(t, s.Record(ctx, rec))
			}
			found, err := s.FindLatestByAgent(ctx, "run-1", "developer")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, tt.want, found.SessionID)
		})
	}
}

func TestStore_ScopedToRun(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	rec := record("developer", 1, 1, "sess-a", now)
	require.NoError(t, s.Record(ctx, rec))
	other := rec
	other.RunID = "run-2"
	other.SessionID = "sess-other"
	other.UpdatedAt = now.Add(time.Hour)
	require.NoError(t, s.Record(ctx, other))

	found, err := s.FindLatestByAgent(ctx, "run-1", "developer")
	require.NoError(t, err)
	assert.Equal(t, "sess-a", found.SessionID)
}

func TestStore_RecordValidation(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "missing run id", rec: Record{Agent: "developer", SessionID: "s", UpdatedAt: now}},
		{name: "missing agent", rec: Record{RunID: "run-1", SessionID: "s", UpdatedAt: now}},
		{name: "missing session id", rec: Record{RunID: "run-1", Agent: "developer", UpdatedAt: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, s.Record(ctx, tt.rec), sferrors.ErrEmptyValue)
		})
	}
}

func TestStore_CorruptFileSurfaces(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, os.MkdirAll(s.workspacePath+"/"+constants.StateDir, 0o750))
	require.NoError(t, os.WriteFile(s.Path(), []byte("not json"), 0o600))

	err := s.Record(context.Background(), record("developer", 1, 1, "sess-a", time.Now().UTC()))
	require.ErrorIs(t, err, sferrors.ErrSessionStoreCorrupted)
}

func TestStore_ConcurrentRecordsAllSurvive(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	agents := []string{"developer-frontend", "developer-backend", "qa", "code-review"}
	for i, agent := range agents {
		wg.Add(1)
		go func(step int, agent string) {
			defer wg.Done()
			assert.NoError(t, s.Record(ctx, record(agent, step, 1, "sess-"+agent, now)))
		}(i+1, agent)
	}
	wg.Wait()

	for _, agent := range agents {
		found, err := s.FindLatestByAgent(ctx, "run-1", agent)
		require.NoError(t, err)
		require.NotNil(t, found, "agent %s", agent)
		assert.Equal(t, "sess-"+agent, found.SessionID)
	}
}
