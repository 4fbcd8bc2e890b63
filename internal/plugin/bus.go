package plugin

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Bus dispatches lifecycle hooks across a Registry's plugins, serially and
// in registration order.
type Bus struct {
	Registry             *Registry
	ReducedFunctionality bool
	OfflineMode          bool
}

// NewBus returns a Bus over registry with degraded-mode gating disabled.
func NewBus(registry *Registry) *Bus {
	return &Bus{Registry: registry}
}

// skip reports whether meta should be skipped entirely for the current
// gating mode.
func (b *Bus) skip(meta Metadata) bool {
	if b.OfflineMode && meta.RequiresNetwork {
		return true
	}
	if b.ReducedFunctionality && meta.Classification != Critical {
		return true
	}
	return false
}

// runInterceptor invokes call for every eligible plugin in order. A
// Critical plugin's error aborts immediately; any other error is recorded
// against the plugin (and may auto-disable it) and dispatch continues.
func (b *Bus) runInterceptor(call func(Plugin) error) error {
	var result *multierror.Error
	for _, p := range b.Registry.GetAll() {
		meta := p.Metadata()
		if b.Registry.IsDisabled(meta.Name) || b.skip(meta) {
			continue
		}
		if err := call(p); err != nil {
			if meta.Classification == Critical {
				return err
			}
			b.Registry.recordFailure(meta.Name)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// OnBackendReady is an interceptor hook: a Critical plugin's error aborts.
func (b *Bus) OnBackendReady(ctx context.Context, store any) error {
	return b.runInterceptor(func(p Plugin) error { return p.OnBackendReady(ctx, store) })
}

// OnTaskStart is an interceptor hook: a Critical plugin's error aborts the
// iteration.
func (b *Bus) OnTaskStart(ctx context.Context, tc TaskContext) error {
	return b.runInterceptor(func(p Plugin) error { return p.OnTaskStart(ctx, tc) })
}

// runNonCritical invokes call for every eligible plugin; every error —
// Critical plugin or not — is recorded and dispatch continues. Used for
// hooks that aren't interceptors.
func (b *Bus) runNonCritical(call func(Plugin) error) error {
	var result *multierror.Error
	for _, p := range b.Registry.GetAll() {
		meta := p.Metadata()
		if b.Registry.IsDisabled(meta.Name) || b.skip(meta) {
			continue
		}
		if err := call(p); err != nil {
			b.Registry.recordFailure(meta.Name)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (b *Bus) OnLoopStart(ctx context.Context, namespace string) error {
	return b.runNonCritical(func(p Plugin) error { return p.OnLoopStart(ctx, namespace) })
}

func (b *Bus) OnTaskComplete(ctx context.Context, tc TaskContext, result TaskResult) error {
	return b.runNonCritical(func(p Plugin) error { return p.OnTaskComplete(ctx, tc, result) })
}

func (b *Bus) OnTaskFailed(ctx context.Context, tc TaskContext, cause error) error {
	return b.runNonCritical(func(p Plugin) error { return p.OnTaskFailed(ctx, tc, cause) })
}

func (b *Bus) OnLoopEnd(ctx context.Context, stats LoopStats) error {
	return b.runNonCritical(func(p Plugin) error { return p.OnLoopEnd(ctx, stats) })
}

// ApplyConfigHooks threads config through every eligible plugin's
// OnConfigLoad in registration order. A Critical plugin's error aborts and
// returns the config as it stood before that plugin ran; any other
// plugin's error is recorded and that plugin's mutation is skipped, but
// the chain continues with the config as it stood before the failing call.
func (b *Bus) ApplyConfigHooks(ctx context.Context, config any) (any, error) {
	current := config
	for _, p := range b.Registry.GetAll() {
		meta := p.Metadata()
		if b.Registry.IsDisabled(meta.Name) || b.skip(meta) {
			continue
		}
		next, err := p.OnConfigLoad(ctx, current)
		if err != nil {
			if meta.Classification == Critical {
				return current, err
			}
			b.Registry.recordFailure(meta.Name)
			continue
		}
		current = next
	}
	return current, nil
}
