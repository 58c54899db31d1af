package vector

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
)

var vocab = []string{"paris", "rome", "capital", "pasta"}

func bagEmbed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, len(vocab))
	lower := strings.ToLower(text)
	for i, term := range vocab {
		if strings.Contains(lower, term) {
			v[i] = 1
		}
	}
	return v, nil
}

func newTestStore() *Store {
	return New(config.StorageConfig{VectorBackend: "memory"}, bagEmbed)
}

func TestStore_AddAndSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	require.NoError(t, s.Add(ctx, CollectionFacts, "f1", "paris is the capital of france", map[string]string{"domain": "general"}))
	require.NoError(t, s.Add(ctx, CollectionFacts, "f2", "rome has great pasta", nil))

	hits, err := s.Search(ctx, CollectionFacts, "what is the capital, paris?", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "f1", hits[0].ID)
	assert.Equal(t, "paris is the capital of france", hits[0].Text)
	assert.Equal(t, "general", hits[0].Metadata["domain"])
	assert.Greater(t, hits[0].Relevance, hits[1].Relevance)
}

func TestStore_RelevanceBoundsAndMonotonicity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, CollectionFacts, "near", "paris capital", nil))
	require.NoError(t, s.Add(ctx, CollectionFacts, "far", "pasta", nil))

	hits, err := s.Search(ctx, CollectionFacts, "paris capital", 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Relevance, 0.0)
		assert.LessOrEqual(t, h.Relevance, 1.0)
	}
	// relevance = 1 - distance/2 must invert the distance ordering.
	assert.Less(t, hits[0].Distance, hits[1].Distance)
	assert.Greater(t, hits[0].Relevance, hits[1].Relevance)
}

func TestStore_UpsertIdempotentOnID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, CollectionGraphNodes, "n1", "paris", nil))
	require.NoError(t, s.Add(ctx, CollectionGraphNodes, "n1", "paris, updated", nil))
	assert.Equal(t, 1, s.Count(CollectionGraphNodes))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, CollectionMistakes, "m1", "paris", nil))
	require.NoError(t, s.Delete(ctx, CollectionMistakes, "m1"))
	assert.Zero(t, s.Count(CollectionMistakes))

	hits, err := s.Search(ctx, CollectionMistakes, "paris", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, CollectionFacts, "f1", "paris", nil))

	hits, err := s.Search(ctx, CollectionInteractions, "paris", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits, "a hit in one collection must not leak into another")
}

func TestStore_GetStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	require.NoError(t, s.Add(ctx, CollectionFacts, "f1", "paris", nil))

	stats := s.GetStats(CollectionFacts)
	assert.Equal(t, 1, stats["count"])
	assert.Equal(t, CollectionFacts, stats["collection"])
}
