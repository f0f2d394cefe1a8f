// parser.go parses generator output into ordered plan steps.
package plan

import (
	"fmt"
	"strings"

	"github.com/bosun-sh/bosun/internal/session"
)

// ParseSteps parses a generated plan into ordered steps. The generator is
// prompted to emit one step per line as a numbered list, but model output
// drifts, so markdown bullets and "Step N:" headings are accepted too.
// Returns an error if no steps are found.
func ParseSteps(output string) ([]session.PlanStep, error) {
	var steps []session.PlanStep

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		desc, ok := parseStepLine(trimmed)
		if !ok || desc == "" {
			continue
		}
		steps = append(steps, session.PlanStep{
			Description: desc,
			Status:      session.StepPending,
		})
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("no steps found in plan output")
	}
	return steps, nil
}

// parseStepLine extracts the step description from a single line. Accepted
// forms: "1. desc", "1) desc", "- desc", "* desc", "### Step 1: desc",
// "Step 1: desc".
func parseStepLine(line string) (string, bool) {
	// Markdown bullets.
	for _, prefix := range []string{"- ", "* "} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix)), true
		}
	}

	// "Step N:" headings, with or without markdown hashes.
	heading := strings.TrimLeft(line, "# ")
	if strings.HasPrefix(strings.ToLower(heading), "step ") {
		if _, after, found := strings.Cut(heading, ":"); found {
			return strings.TrimSpace(after), true
		}
	}

	// Numbered list: "1. desc" or "1) desc".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:]), true
	}

	return "", false
}
