package rotator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pools() ([]Entry, []Entry) {
	exec := []Entry{{Name: "a", Tool: "claude", Model: "opus"}, {Name: "b", Tool: "codex", Model: "gpt"}}
	fallback := []Entry{{Name: "c", Tool: "claude", Model: "sonnet"}}
	return exec, fallback
}

func TestNextRoundRobin(t *testing.T) {
	exec, fb := pools()
	r := New(exec, fb)

	e1, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "a", e1.Name)

	e2, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "b", e2.Name)

	e3, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "a", e3.Name, "round-robin wraps back to the first entry")
}

func TestNextEmptyPool(t *testing.T) {
	r := New(nil, nil)
	_, ok := r.Next()
	assert.False(t, ok)
}

func TestSwitchToFallbackIsIdempotent(t *testing.T) {
	exec, fb := pools()
	r := New(exec, fb)

	assert.False(t, r.UsingFallback())
	r.SwitchToFallback()
	r.SwitchToFallback()
	assert.True(t, r.UsingFallback())

	e, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "c", e.Name)
}

func TestResetFallbackReturnsToPrimary(t *testing.T) {
	exec, fb := pools()
	r := New(exec, fb)

	r.SwitchToFallback()
	assert.True(t, r.UsingFallback())
	r.ResetFallback()
	assert.False(t, r.UsingFallback())

	e, ok := r.Next()
	assert.True(t, ok)
	assert.Equal(t, "a", e.Name)
}

func TestPoolLengths(t *testing.T) {
	exec, fb := pools()
	r := New(exec, fb)
	assert.Equal(t, 2, r.PrimaryLen())
	assert.Equal(t, 1, r.FallbackLen())
}
