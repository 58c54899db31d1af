package llm

import (
	"context"
	"errors"
)

// LocalEncoder is the narrow shape internal/embedding.Encoder satisfies;
// kept here rather than importing that package directly so llm has no
// dependency on the fallback encoder's internals.
type LocalEncoder interface {
	Embed(text string) []float32
}

// EmbedWithFallback returns a vector.EmbedFunc-shaped closure that calls
// the provider's Embed and, on ErrUnsupported, falls back to a local
// sentence-encoder, so embedding keeps working with providers that have
// no embeddings endpoint.
func EmbedWithFallback(p Provider, local LocalEncoder) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := p.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		var unsupported *ErrUnsupported
		if errors.As(err, &unsupported) && local != nil {
			return local.Embed(text), nil
		}
		return nil, err
	}
}
