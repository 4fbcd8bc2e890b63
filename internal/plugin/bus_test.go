package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnTaskStartCriticalErrorAborts(t *testing.T) {
	r := NewRegistry()
	failErr := errors.New("boom")
	critical := newMockPlugin("critical", Critical, failErr)
	after := newMockPlugin("after", Enhancement, nil)
	require.NoError(t, r.Register(critical))
	require.NoError(t, r.Register(after))

	bus := NewBus(r)
	err := bus.OnTaskStart(context.Background(), TaskContext{TaskID: "t1"})

	assert.ErrorIs(t, err, failErr)
	assert.Equal(t, 0, after.calls, "a plugin after a critical failure never runs")
}

func TestOnTaskStartEnhancementErrorIsRecordedAndContinues(t *testing.T) {
	r := NewRegistry()
	failErr := errors.New("boom")
	flaky := newMockPlugin("flaky", Enhancement, failErr)
	after := newMockPlugin("after", Enhancement, nil)
	require.NoError(t, r.Register(flaky))
	require.NoError(t, r.Register(after))

	bus := NewBus(r)
	err := bus.OnTaskStart(context.Background(), TaskContext{TaskID: "t1"})

	assert.Error(t, err)
	assert.Equal(t, 1, after.calls)
	assert.Equal(t, 1, r.FailureCount("flaky"))
}

func TestSkipOfflineModeSkipsNetworkPlugins(t *testing.T) {
	r := NewRegistry()
	p := &mockPlugin{NoopPlugin: NoopPlugin{Meta: Metadata{Name: "net", Classification: Enhancement, RequiresNetwork: true}}}
	require.NoError(t, r.Register(p))

	bus := NewBus(r)
	bus.OfflineMode = true
	require.NoError(t, bus.OnLoopStart(context.Background(), "ns"))
	assert.Equal(t, 0, p.calls)
}

func TestSkipReducedFunctionalitySkipsNonCritical(t *testing.T) {
	r := NewRegistry()
	enhancement := &mockPlugin{NoopPlugin: NoopPlugin{Meta: Metadata{Name: "enh", Classification: Enhancement}}}
	critical := &mockPlugin{NoopPlugin: NoopPlugin{Meta: Metadata{Name: "crit", Classification: Critical}}}
	require.NoError(t, r.Register(enhancement))
	require.NoError(t, r.Register(critical))

	bus := NewBus(r)
	bus.ReducedFunctionality = true
	require.NoError(t, bus.OnLoopStart(context.Background(), "ns"))

	assert.Equal(t, 0, enhancement.calls)
	assert.Equal(t, 1, critical.calls)
}

func TestDisabledPluginIsSkipped(t *testing.T) {
	r := NewRegistry().WithMaxFailures(1)
	failErr := errors.New("boom")
	flaky := newMockPlugin("flaky", Enhancement, failErr)
	require.NoError(t, r.Register(flaky))

	bus := NewBus(r)
	_ = bus.OnLoopStart(context.Background(), "ns")
	assert.True(t, r.IsDisabled("flaky"))

	_ = bus.OnLoopStart(context.Background(), "ns")
	assert.Equal(t, 1, flaky.calls, "disabled plugin is skipped on later hooks")
}
