package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/nadimtuhin/loopwork/internal/rotator"
)

// Dispatch drives one task attempt to completion across the Rotator's
// combined primary+fallback pool: it keeps picking the next viable (tool, model),
// backing off on rate-limit markers and engaging the fallback pool on
// quota-exhaustion markers, until a call returns success or the maximum
// number of attempts (primary pool size + fallback pool size) is spent.
//
// outputFile is reused across attempts within the same task dispatch so
// the Scheduler's logs/iteration-N-output.txt accumulates every attempt's
// output, not just the last one.
func (e *Executor) Dispatch(ctx context.Context, rot *rotator.Rotator, prompt, outputFile string, timeout time.Duration) (Result, error) {
	maxAttempts := rot.PrimaryLen() + rot.FallbackLen()
	if maxAttempts == 0 {
		return Result{}, fmt.Errorf("executor: dispatch: rotator has no entries")
	}

	fallbackEngaged := rot.UsingFallback()
	rateLimitHits := 0
	var last Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entry, ok := rot.Next()
		if !ok {
			break
		}

		res, err := e.Run(ctx, entry, Request{
			ToolName:   entry.Tool,
			Model:      entry.Model,
			Prompt:     prompt,
			OutputFile: outputFile,
			Timeout:    timeout,
		})
		if err != nil {
			return res, err
		}
		last = res

		switch res.Outcome {
		case OutcomeSuccess:
			return res, nil
		case OutcomeRateLimited:
			rateLimitHits++
			if err := e.WaitRateLimitBackoff(ctx, rateLimitHits); err != nil {
				return res, err
			}
		case OutcomeQuotaExhausted:
			rot.SwitchToFallback()
			fallbackEngaged = true
		case OutcomeFailure:
			if !fallbackEngaged && rot.FallbackLen() > 0 && attempt == rot.PrimaryLen()-1 {
				fallbackEngaged = true
				rot.SwitchToFallback()
			}
		}
	}
	return last, nil
}
