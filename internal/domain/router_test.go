package domain

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/llm"
)

// fakeProvider is a canned-answer llm.Provider for classifier tests.
type fakeProvider struct {
	answer string
	calls  atomic.Int64
}

func (f *fakeProvider) Complete(context.Context, []llm.Message, string, int, float64) (llm.CompletionResult, error) {
	f.calls.Add(1)
	return llm.CompletionResult{Content: f.answer}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	return f.Complete(ctx, messages, system, maxTokens, temperature)
}

func (f *fakeProvider) CompleteWithImage(context.Context, []byte, string, string, string, int) (string, error) {
	return "", &llm.ErrUnsupported{Provider: "fake", Operation: "vision"}
}

func (f *fakeProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, &llm.ErrUnsupported{Provider: "fake", Operation: "embedding"}
}

func (f *fakeProvider) Name() string { return "fake" }

func TestClassify_KeywordMatch(t *testing.T) {
	r := NewRouter(nil)
	ctx := context.Background()

	assert.Equal(t, Coding, r.Classify(ctx, "I have a bug in my python function"))
	assert.Equal(t, Health, r.Classify(ctx, "slept 6 hours and skipped the gym"))
	assert.Equal(t, Tasks, r.Classify(ctx, "remind me about the meeting tomorrow"))
	assert.Equal(t, General, r.Classify(ctx, "how are you"))
}

func TestClassify_ShortMessageSkipsLLMFallback(t *testing.T) {
	p := &fakeProvider{answer: "coding"}
	r := NewRouter(p)

	assert.Equal(t, General, r.Classify(context.Background(), "hey there"))
	assert.Zero(t, p.calls.Load())
}

func TestClassify_LLMFallbackForAmbiguousMessages(t *testing.T) {
	p := &fakeProvider{answer: "tasks"}
	r := NewRouter(p)

	d := r.Classify(context.Background(), "could you sort out that thing from yesterday for me please")
	assert.Equal(t, Tasks, d)
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestClassify_LLMResultCachedByPrefix(t *testing.T) {
	p := &fakeProvider{answer: "health"}
	r := NewRouter(p)
	ctx := context.Background()

	msg := "something ambiguous enough to need the model to decide here"
	first := r.Classify(ctx, msg)
	second := r.Classify(ctx, msg)

	require.Equal(t, first, second)
	assert.Equal(t, int64(1), p.calls.Load(), "second classify must be served from the prefix cache")
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, Coding, normalizeDomain("Coding.\n"))
	assert.Equal(t, Health, normalizeDomain(" health "))
	assert.Equal(t, General, normalizeDomain("no idea"))
}
