// Package prompts embeds the prompt templates sent to the text generator.
package prompts

import (
	_ "embed"
	"strconv"
	"strings"
)

//go:embed chat/system.md
var ChatSystemPrompt string

//go:embed plan/decompose.md.tmpl
var planTemplate string

//go:embed plan/step.md.tmpl
var stepTemplate string

// BuildPlanPrompt renders the plan-decomposition prompt for a user query.
func BuildPlanPrompt(query string) string {
	return strings.ReplaceAll(planTemplate, "{{query}}", query)
}

// BuildStepPrompt renders the execution prompt for a single plan step.
func BuildStepPrompt(query, step string, index, total int) string {
	r := strings.NewReplacer(
		"{{query}}", query,
		"{{step}}", step,
		"{{index}}", strconv.Itoa(index),
		"{{total}}", strconv.Itoa(total),
	)
	return r.Replace(stepTemplate)
}
