package executor

import "errors"

// ErrNoCLIFound is returned at construction when none of the configured
// tool specs resolve to an executable on PATH or a well-known install
// directory.
var ErrNoCLIFound = errors.New("executor: no AI CLI tool found")

// ErrUnknownTool is returned when a rotator.Entry names a tool that was
// not discovered at construction.
var ErrUnknownTool = errors.New("executor: tool not discovered")
