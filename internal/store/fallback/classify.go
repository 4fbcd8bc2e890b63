// Package fallback composes a primary and secondary task.Store into one
// backend that degrades gracefully: connection-class failures on the
// primary fall through to the secondary, and failures on both are queued
// to disk for replay.
package fallback

import (
	"context"
	"errors"
	"net"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// Classification buckets a Store error for fallback routing purposes.
type Classification int

const (
	// NonConnection means the failure is intrinsic to the request itself
	// (corrupt document, illegal state transition) and replaying it
	// against another backend would only repeat the failure, or worse,
	// corrupt it too. These surface immediately.
	NonConnection Classification = iota
	// Connection means the primary backend was simply unreachable; the
	// same write is expected to succeed elsewhere.
	Connection
)

// Classify inspects err and reports whether it warrants falling through to
// the secondary backend (Connection) or should surface immediately
// (NonConnection).
func Classify(err error) Classification {
	if err == nil {
		return NonConnection
	}
	if errors.Is(err, task.ErrStoreCorrupt) || errors.Is(err, task.ErrInvalidState) {
		return NonConnection
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Connection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Connection
	}
	if errors.Is(err, task.ErrStoreWriteFailed) || errors.Is(err, task.ErrStoreNotFound) || errors.Is(err, task.ErrLockTimeout) {
		return Connection
	}
	return NonConnection
}
