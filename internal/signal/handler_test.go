package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_SignalCancelsContext(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	h.handleSignal()

	require.ErrorIs(t, h.Context().Err(), context.Canceled)
	select {
	case <-h.Interrupted():
	default:
		t.Fatal("interrupted channel should be closed after signal")
	}
}

func TestHandler_RepeatedSignalsProcessedOnce(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	h.handleSignal()
	h.handleSignal()
	h.handleSignal()

	require.Error(t, h.Context().Err())
}

func TestHandler_ListenSurvivesRepeatedSignals(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	// If listen exited after the first signal the second send would block.
	h.sigChan <- nil
	h.sigChan <- nil

	select {
	case <-h.Interrupted():
	case <-time.After(5 * time.Second):
		t.Fatal("signal not processed")
	}
	assert.ErrorIs(t, h.Context().Err(), context.Canceled)
}

func TestHandler_StopCancelsAndIsIdempotent(t *testing.T) {
	h := NewHandler(context.Background())

	h.Stop()
	h.Stop()

	assert.Error(t, h.Context().Err())
}

func TestHandler_RespectsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := NewHandler(parent)
	defer h.Stop()

	cancel()

	assert.Error(t, h.Context().Err())
}

func TestHandler_InitialState(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	assert.NoError(t, h.Context().Err())
	select {
	case <-h.Interrupted():
		t.Fatal("interrupted channel should be open initially")
	default:
	}
}
