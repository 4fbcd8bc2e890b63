package filelock

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenUnlockAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	lock, err := Acquire(path, time.Second)
	require.NoError(t, err)

	lock.Unlock()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	lock2, err := Acquire(path, time.Second)
	require.NoError(t, err)
	lock2.Unlock()
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	held, err := Acquire(path, time.Second)
	require.NoError(t, err)
	defer held.Unlock()

	_, err = Acquire(path, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestAcquireReclaimsStaleLockFromDeadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	require.NoError(t, os.WriteFile(path, []byte("999999999\n1\n"), 0644))

	lock, err := Acquire(path, time.Second)
	require.NoError(t, err)
	lock.Unlock()
}

func TestUnlockIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	lock, err := Acquire(path, time.Second)
	require.NoError(t, err)

	lock.Unlock()
	assert.NotPanics(t, func() { lock.Unlock() })
}

func TestIsAliveForSelf(t *testing.T) {
	assert.True(t, IsAlive(os.Getpid()))
}

func TestIsAliveForImpossiblePID(t *testing.T) {
	assert.False(t, IsAlive(999999999))
}
