package generate

import (
	"context"
	"sync"

	"github.com/bosun-sh/bosun/internal/capability"
)

// Scripted is a TextGenerator that replays canned responses in order. Once
// the script is exhausted it repeats the last entry. Used in tests and dry
// runs.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	prompts   []string
	// Block, when non-nil, is closed by the test to let a pending request
	// proceed; cancellation is observable while it is open.
	Block chan struct{}
}

// NewScripted creates a generator that replays responses in order.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{responses: responses}
}

// FailWith makes every subsequent Ask return err.
func (s *Scripted) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times Ask was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Prompts returns the prompts received so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

// Ask replays the next scripted response as a pair of chunks.
func (s *Scripted) Ask(ctx context.Context, prompt string, _ []string) (<-chan capability.Chunk, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	idx := s.calls
	s.calls++
	err := s.err
	var response string
	if len(s.responses) > 0 {
		if idx >= len(s.responses) {
			idx = len(s.responses) - 1
		}
		response = s.responses[idx]
	}
	block := s.Block
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// Split in two so stream consumers exercise multi-chunk assembly.
	ch := make(chan capability.Chunk, 2)
	half := len(response) / 2
	ch <- capability.Chunk{TextDelta: response[:half]}
	ch <- capability.Chunk{TextDelta: response[half:]}
	close(ch)
	return ch, nil
}
