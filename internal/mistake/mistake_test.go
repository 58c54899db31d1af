package mistake

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/storage/relational"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

// wordOverlapEmbed is a tiny bag-of-words stub over a fixed vocabulary so
// cosine relevance is deterministic in tests.
var vocab = []string{"paris", "capital", "france", "population"}

func wordOverlapEmbed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocab))
	lower := strings.ToLower(text)
	for i, term := range vocab {
		if strings.Contains(lower, term) {
			v[i] = 1
		}
	}
	return v, nil
}

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	vec := vector.New(config.StorageConfig{VectorBackend: "memory"}, wordOverlapEmbed)
	return New(relational.NewMemoryStore(), vec)
}

func TestTracker_RecordAndWarn_AboveThreshold(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.Record(ctx, "s1", "what is the capital of france", "lyon", "it's paris, not lyon", "general", "factual_error")
	require.NoError(t, err)

	warnings, err := tr.GetWarningsForPrompt(ctx, "capital of france", 3)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].SimilarCount)
	assert.Contains(t, warnings[0].Correction, "paris")
}

func TestTracker_GetWarnings_BelowThresholdExcluded(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.Record(ctx, "s1", "what is the capital of france", "lyon", "it's paris", "general", "factual_error")
	require.NoError(t, err)

	warnings, err := tr.GetWarningsForPrompt(ctx, "population statistics unrelated query", 3)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestTracker_IncrementsSimilarCountAcrossCalls(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.Record(ctx, "s1", "what is the capital of france", "lyon", "it's paris", "general", "factual_error")
	require.NoError(t, err)

	_, err = tr.GetWarningsForPrompt(ctx, "capital of france", 3)
	require.NoError(t, err)
	second, err := tr.GetWarningsForPrompt(ctx, "capital of france", 3)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].SimilarCount, "second lookup should see the first lookup's increment plus its own")
}

func TestFormatWarningsBlock_EmptyReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", FormatWarningsBlock(nil))
}

func TestFormatWarningsBlock_RendersEntries(t *testing.T) {
	block := FormatWarningsBlock([]Warning{{UserInput: "q", Correction: "a"}})
	assert.Contains(t, block, "q")
	assert.Contains(t, block, "a")
}
