// Package llm defines the narrow provider contract the core pipeline
// depends on, the only collaborator interface it requires. Completion, streaming, vision, and embedding are all optional
// except Complete and Stream.
package llm

import "context"

// Message is one turn in a conversation passed to a provider.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage reports token accounting for a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResult is the synchronous completion contract's return value.
type CompletionResult struct {
	Content    string
	Model      string
	Usage      Usage
	StopReason string
}

// StreamHandler receives incremental content chunks during Stream.
type StreamHandler interface {
	OnDelta(content string)
}

// Provider is the only contract the interaction loop requires of a language
// model backend. Vision and embedding are optional: a provider that doesn't
// support them returns ErrUnsupported and the loop degrades gracefully.
type Provider interface {
	// Complete runs a synchronous, non-streaming chat completion.
	Complete(ctx context.Context, messages []Message, system string, maxTokens int, temperature float64) (CompletionResult, error)

	// Stream runs a streaming chat completion, delivering content chunks to h
	// as they arrive. It returns once the stream has fully drained (success
	// or error); callers must not assume partial completion on error.
	Stream(ctx context.Context, messages []Message, system string, maxTokens int, temperature float64, h StreamHandler) (CompletionResult, error)

	// CompleteWithImage is optional; providers without vision support return
	// ErrUnsupported and the caller degrades gracefully.
	CompleteWithImage(ctx context.Context, imageBytes []byte, mediaType string, prompt string, system string, maxTokens int) (string, error)

	// Embed is optional; providers without embedding support return
	// ErrUnsupported and the caller falls back to a local encoder.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name identifies the provider for logging/telemetry.
	Name() string
}

// ErrUnsupported is returned by optional Provider methods a given backend
// does not implement.
type ErrUnsupported struct {
	Provider  string
	Operation string
}

func (e *ErrUnsupported) Error() string {
	return e.Provider + " does not support " + e.Operation
}
