// Package capability defines the external contracts the orchestration core
// depends on. The core is substitutable against any implementation of these
// interfaces; the concrete model clients, persistence backends, and voice
// pipelines live behind them.
package capability

import "context"

// Chunk is one unit of streamed generator output. TextDelta carries
// incremental text; ImageRef, when set, references a generated image.
type Chunk struct {
	TextDelta string
	ImageRef  string
}

// TextGenerator produces streamed text for a prompt given prior history.
// Implementations must honor ctx cancellation and must be safely callable
// with an empty history.
type TextGenerator interface {
	Ask(ctx context.Context, prompt string, history []string) (<-chan Chunk, error)
}

// ImageGenerator produces streamed output for an image-creation request.
// Archive hands the in-flight image session off to history when the user
// starts a new session.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (<-chan Chunk, error)
	Archive(ctx context.Context) error
}

// KeyValue is the persistence contract. Get reports absence via the second
// return value rather than an error. Implementations may be unavailable
// (quota, I/O errors); callers treat write failures as non-fatal.
type KeyValue interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// Voice speaks assistant replies for voice-originated exchanges. The core
// never blocks on completion.
type Voice interface {
	Speak(ctx context.Context, text string) error
}

// MigrationReport summarizes a startup data migration.
type MigrationReport struct {
	Success      bool
	CleanedItems []string
	Errors       []string
}

// Migrator runs the one-shot startup data migration. Its outcome is surfaced
// to the user but never blocks startup.
type Migrator interface {
	Migrate(ctx context.Context) (MigrationReport, error)
}

// TokenCounter estimates the token cost of a string. The counting algorithm
// is injected; the core only consumes the estimate.
type TokenCounter func(s string) int
