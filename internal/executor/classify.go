package executor

import "regexp"

var (
	rateLimitPattern = regexp.MustCompile(`(?i)rate[ -]?limit(ed)?|too many requests|429`)
	quotaPattern      = regexp.MustCompile(`(?i)quota (exceeded|exhausted)|usage limit reached|insufficient (credits?|balance)`)
)

// classify applies output-classification rules to the
// process's exit code and output tail.
func classify(exitCode int, timedOut bool, tail string) Outcome {
	if !timedOut {
		if rateLimitPattern.MatchString(tail) {
			return OutcomeRateLimited
		}
		if quotaPattern.MatchString(tail) {
			return OutcomeQuotaExhausted
		}
		if exitCode == 0 {
			return OutcomeSuccess
		}
	}
	return OutcomeFailure
}
