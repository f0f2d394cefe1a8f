// Package voice speaks assistant replies through the platform's
// text-to-speech command.
package voice

import (
	"context"
	"errors"
	"os/exec"
	"runtime"

	"go.uber.org/zap"
)

// Speaker shells out to a TTS command: say on macOS, espeak elsewhere.
type Speaker struct {
	command string
	logger  *zap.Logger
}

// NewSpeaker creates a Speaker for the current platform. Returns an error if
// no TTS command is available on PATH.
func NewSpeaker(logger *zap.Logger) (*Speaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	candidates := []string{"espeak", "espeak-ng"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"say"}
	}
	for _, cmd := range candidates {
		if _, err := exec.LookPath(cmd); err == nil {
			return &Speaker{command: cmd, logger: logger}, nil
		}
	}
	return nil, errors.New("no text-to-speech command found")
}

// Speak reads text aloud, blocking until playback finishes or ctx is
// cancelled.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, s.command, text)
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Warn("tts command failed", zap.String("command", s.command), zap.Error(err))
		return err
	}
	return nil
}
