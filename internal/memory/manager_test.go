package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/storage/relational"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

// stubVocab is a tiny fixed bag-of-words vocabulary so the embedding below
// is deterministic and test assertions about relevance hold reliably.
var stubVocab = []string{"paris", "france", "capital", "travel"}

// stubEmbed is a one-hot bag-of-words embedding over stubVocab: texts
// sharing vocabulary terms get proportionally high cosine similarity,
// texts sharing none get zero similarity.
func stubEmbed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, len(stubVocab))
	lower := strings.ToLower(text)
	for i, term := range stubVocab {
		if strings.Contains(lower, term) {
			v[i] = 1
		}
	}
	return v, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	vec := vector.New(config.StorageConfig{VectorBackend: "memory"}, stubEmbed)
	store := relational.NewMemoryStore()
	return NewManager(NewShortTerm(20), NewLongTerm(store), NewSemantic(vec), NewEpisodic())
}

func TestManager_RetrieveContext_SemanticHitAboveThreshold(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	require.NoError(t, m.Semantic.IndexInteraction(ctx, "i1", "s1", "what is the capital of france", "paris", "general", time.Now()))

	hits, err := m.RetrieveContext(ctx, "what is the capital of france", "general")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "s1", hits[0].SessionID)
}

func TestManager_RetrieveContext_FallsBackToKeywordSearch(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	_, err := m.Long.RecordInteraction(ctx, "s1", "tell me about paris travel tips", "sure", "general", 5)
	require.NoError(t, err)

	hits, err := m.RetrieveContext(ctx, "paris travel", "general")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "tell me about paris travel tips", hits[0].UserMessage)
	assert.Zero(t, hits[0].Relevance)
}
