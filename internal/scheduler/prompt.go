package scheduler

import (
	"fmt"
	"strings"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// criteriaRule maps a keyword found in a task's title+description to a
// heuristic success-criteria line.
type criteriaRule struct {
	keywords []string
	criteria string
}

var criteriaRules = []criteriaRule{
	{[]string{"test", "tests", "testing"}, "All new and existing tests pass."},
	{[]string{"api", "endpoint"}, "The endpoint returns correct responses for documented inputs, including error cases."},
	{[]string{"ui", "component"}, "The component renders correctly and responds to user interaction as described."},
	{[]string{"database", "migration"}, "The migration applies cleanly and the schema matches the intended shape."},
	{[]string{"fix", "bug"}, "The reported defect no longer reproduces."},
	{[]string{"refactor"}, "Behavior is unchanged; the code is restructured as described."},
}

var defaultCriteria = []string{
	"The change compiles and existing tests continue to pass.",
	"The implementation matches the task's description.",
}

// successCriteria derives heuristic completion criteria from keywords in
// title+description, falling back to defaultCriteria if nothing matches.
func successCriteria(title, description string) []string {
	haystack := strings.ToLower(title + " " + description)
	var out []string
	seen := make(map[string]bool)
	for _, rule := range criteriaRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) && !seen[rule.criteria] {
				out = append(out, rule.criteria)
				seen[rule.criteria] = true
				break
			}
		}
	}
	if len(out) == 0 {
		return defaultCriteria
	}
	return out
}

// retryContext is built from the last 1 KiB of a prior failed attempt's
// output.
type retryContext struct {
	attempt    int
	outputTail string
}

// buildPrompt renders the deterministic prompt template.
func buildPrompt(t *task.Task, retry *retryContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Task %s\n\n", t.ID)
	fmt.Fprintf(&b, "## Title\n\n%s\n\n", t.Title)
	fmt.Fprintf(&b, "## PRD\n\n%s\n\n", t.Description)

	b.WriteString("## Success Criteria\n\n")
	for _, c := range successCriteria(t.Title, t.Description) {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\n## Failure Criteria\n\n")
	b.WriteString("- Tests fail, the build breaks, or the change does not address the task.\n\n")

	b.WriteString("## Instructions\n\n")
	b.WriteString("Implement this task to completion. Make the smallest change that satisfies the success criteria above.\n")

	if retry != nil {
		fmt.Fprintf(&b, "\n## Previous Attempt Context\n\n")
		fmt.Fprintf(&b, "Attempt %d failed. Last output:\n\n```\n%s\n```\n", retry.attempt, retry.outputTail)
	}

	return b.String()
}
