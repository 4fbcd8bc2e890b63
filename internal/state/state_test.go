package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStateMissingReturnsNilNil(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)

	st, err := s.LoadState()
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)

	in := LoopState{StartedAt: time.Now().UTC().Truncate(time.Second), LastTaskRef: "t1", LastIteration: 3}
	require.NoError(t, s.SaveState(in))

	out, err := s.LoadState()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.NotEmpty(t, out.SessionID, "a missing session id is auto-generated")
	assert.Equal(t, "t1", out.LastTaskRef)
	assert.Equal(t, 3, out.LastIteration)
}

func TestSaveStatePreservesGivenSessionID(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)

	require.NoError(t, s.SaveState(LoopState{SessionID: "fixed-id"}))
	out, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", out.SessionID)
}

func TestClearStateRemovesFile(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)
	require.NoError(t, s.SaveState(LoopState{SessionID: "x"}))

	require.NoError(t, s.ClearState())
	out, err := s.LoadState()
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestClearStateOnMissingFileIsNoop(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)
	assert.NoError(t, s.ClearState())
}

func TestAcquireReleaseLock(t *testing.T) {
	s, err := Open(t.TempDir(), "ns")
	require.NoError(t, err)

	require.NoError(t, s.AcquireLock(context.Background()))
	require.NoError(t, s.ReleaseLock())
	assert.NoError(t, s.ReleaseLock(), "releasing an already-released lock is a no-op")
}
