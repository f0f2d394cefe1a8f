package prompts

import (
	"strings"
	"testing"
)

func TestBuildPlanPrompt(t *testing.T) {
	prompt := BuildPlanPrompt("organize the garage")
	if !strings.Contains(prompt, "organize the garage") {
		t.Error("query must be substituted into the plan prompt")
	}
	if strings.Contains(prompt, "{{query}}") {
		t.Error("placeholder must not survive substitution")
	}
}

func TestBuildStepPrompt(t *testing.T) {
	prompt := BuildStepPrompt("organize the garage", "sort the tools", 2, 5)
	for _, want := range []string{"organize the garage", "sort the tools", "2", "5"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("step prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Error("placeholders must not survive substitution")
	}
}

func TestChatSystemPromptEmbedded(t *testing.T) {
	if ChatSystemPrompt == "" {
		t.Error("chat system prompt must be embedded")
	}
}
