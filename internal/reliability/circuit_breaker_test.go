package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 2, ResetTimeout: time.Minute})
	boom := errors.New("boom")

	assert.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Minute})
	boom := errors.New("boom")

	require.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	require.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(context.Background(), func() error { called = true; return nil })
	assert.Error(t, err)
	assert.False(t, called, "an open breaker never invokes the guarded function")
}

func TestCircuitBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})
	boom := errors.New("boom")

	require.Error(t, cb.Execute(context.Background(), func() error { return boom }))
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerResetReturnsToClosed(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "test", MaxFailures: 1})
	require.Error(t, cb.Execute(context.Background(), func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreakerManagerGetOrCreateIsStable(t *testing.T) {
	m := NewCircuitBreakerManager()
	a := m.GetOrCreate("ns1", Config{MaxFailures: 3})
	b := m.GetOrCreate("ns1", Config{MaxFailures: 10})
	assert.Same(t, a, b, "GetOrCreate returns the same breaker for a known name, ignoring the second config")
}

func TestCircuitBreakerManagerResetAll(t *testing.T) {
	m := NewCircuitBreakerManager()
	cb := m.GetOrCreate("ns1", Config{MaxFailures: 1})
	_ = cb.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, StateOpen, cb.GetState())

	m.ResetAll()
	assert.Equal(t, StateClosed, cb.GetState())
}
