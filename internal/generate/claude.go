// Package generate provides TextGenerator implementations: one that spawns
// the claude CLI and a scripted generator for tests.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bosun-sh/bosun/internal/capability"
)

// claudeJSONOutput is the JSON envelope returned by `claude -p
// --output-format json`.
type claudeJSONOutput struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	IsError   bool   `json:"is_error"`
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

// Claude spawns the claude CLI for each request. The process is killed when
// the request context is cancelled, which is how the engine's cancellation
// and timeout paths reach it.
type Claude struct {
	model string
}

// NewClaude creates a Claude generator using the given model name.
func NewClaude(model string) *Claude {
	if model == "" {
		model = "opus"
	}
	return &Claude{model: model}
}

// Ask runs one generation request. The full result is delivered as a single
// chunk; the CLI does not stream partial output in JSON mode.
func (c *Claude) Ask(ctx context.Context, prompt string, history []string) (<-chan capability.Chunk, error) {
	full := prompt
	if len(history) > 0 {
		full = strings.Join(history, "\n") + "\n\n" + prompt
	}

	cmd := exec.CommandContext(ctx, "claude",
		"-p", full,
		"--output-format", "json",
		"--model", c.model,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("claude command failed: %w: %s", err, output)
	}

	var envelope claudeJSONOutput
	if err := json.Unmarshal(output, &envelope); err != nil {
		return nil, fmt.Errorf("parsing claude JSON output: %w: %s", err, output)
	}
	if envelope.IsError {
		return nil, fmt.Errorf("claude returned an error: %s", envelope.Result)
	}

	ch := make(chan capability.Chunk, 1)
	ch <- capability.Chunk{TextDelta: envelope.Result}
	close(ch)
	return ch, nil
}
