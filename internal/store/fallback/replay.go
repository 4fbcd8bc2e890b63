package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nadimtuhin/loopwork/internal/reliability"
	"github.com/nadimtuhin/loopwork/internal/task"
)

// replay re-applies one queued write against target. It mirrors the
// writeThrough dispatch in fallback.go but unmarshals args back out of
// their JSON Lines encoding. A result that can never succeed on retry
// (an unknown op, or the target rejecting the state transition outright)
// is wrapped in reliability.PermanentError so Drain stops retrying it
// and surfaces the failure instead of looping until MaxAttempts.
func replay(ctx context.Context, target task.Store, rec QueuedWrite) error {
	err := dispatchReplay(ctx, target, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, task.ErrInvalidState) || errors.Is(err, task.ErrTaskNotFound) {
		return reliability.PermanentError{Err: err}
	}
	return err
}

func dispatchReplay(ctx context.Context, target task.Store, rec QueuedWrite) error {
	switch rec.Op {
	case "markInProgress":
		_, err := target.MarkInProgress(ctx, rec.TaskID)
		return err
	case "markCompleted":
		var comment string
		if err := unmarshalIfPresent(rec.Args, &comment); err != nil {
			return err
		}
		_, err := target.MarkCompleted(ctx, rec.TaskID, comment)
		return err
	case "markFailed":
		var causeMsg string
		if err := unmarshalIfPresent(rec.Args, &causeMsg); err != nil {
			return err
		}
		var cause error
		if causeMsg != "" {
			cause = errors.New(causeMsg)
		}
		_, err := target.MarkFailed(ctx, rec.TaskID, cause)
		return err
	case "markQuarantined":
		var reason string
		if err := unmarshalIfPresent(rec.Args, &reason); err != nil {
			return err
		}
		_, err := target.MarkQuarantined(ctx, rec.TaskID, reason)
		return err
	case "resetToPending":
		_, err := target.ResetToPending(ctx, rec.TaskID)
		return err
	case "rescheduleCompleted":
		var when *time.Time
		if err := unmarshalIfPresent(rec.Args, &when); err != nil {
			return err
		}
		_, err := target.RescheduleCompleted(ctx, rec.TaskID, when)
		return err
	case "addComment":
		var text string
		if err := unmarshalIfPresent(rec.Args, &text); err != nil {
			return err
		}
		_, err := target.AddComment(ctx, rec.TaskID, text)
		return err
	case "setPriority":
		var priority task.Priority
		if err := unmarshalIfPresent(rec.Args, &priority); err != nil {
			return err
		}
		_, err := target.SetPriority(ctx, rec.TaskID, priority)
		return err
	case "createTask":
		var fields task.NewFields
		if err := unmarshalIfPresent(rec.Args, &fields); err != nil {
			return err
		}
		_, err := target.CreateTask(ctx, fields)
		return err
	case "createSubTask":
		var fields task.NewFields
		if err := unmarshalIfPresent(rec.Args, &fields); err != nil {
			return err
		}
		_, err := target.CreateSubTask(ctx, rec.TaskID, fields)
		return err
	case "addDependency":
		var dependsOnID string
		if err := unmarshalIfPresent(rec.Args, &dependsOnID); err != nil {
			return err
		}
		_, err := target.AddDependency(ctx, rec.TaskID, dependsOnID)
		return err
	case "removeDependency":
		var dependsOnID string
		if err := unmarshalIfPresent(rec.Args, &dependsOnID); err != nil {
			return err
		}
		_, err := target.RemoveDependency(ctx, rec.TaskID, dependsOnID)
		return err
	default:
		return reliability.PermanentError{Err: errors.New("fallback: unknown queued op " + rec.Op)}
	}
}

func unmarshalIfPresent(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
