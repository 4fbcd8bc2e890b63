package plugin

import "context"

// mockPlugin is a configurable Plugin for tests: every hook returns err
// and increments calls.
type mockPlugin struct {
	NoopPlugin
	err   error
	calls int
}

func newMockPlugin(name string, class Classification, err error) *mockPlugin {
	return &mockPlugin{NoopPlugin: NoopPlugin{Meta: Metadata{Name: name, Classification: class}}, err: err}
}

func (m *mockPlugin) OnTaskStart(ctx context.Context, tc TaskContext) error {
	m.calls++
	return m.err
}

func (m *mockPlugin) OnLoopStart(ctx context.Context, namespace string) error {
	m.calls++
	return m.err
}
