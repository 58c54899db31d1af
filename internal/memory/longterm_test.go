package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/persistence/databases"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

func TestLongTerm_SessionAndInteractionLifecycle(t *testing.T) {
	ctx := context.Background()
	lt := NewLongTerm(relational.NewMemoryStore())

	sess, err := lt.StartSession(ctx, "coding")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	_, err = lt.RecordInteraction(ctx, sess.ID, "hello", "hi there", "coding", 10)
	require.NoError(t, err)

	recent, err := lt.RecentInteractions(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "hello", recent[0].UserMessage)

	require.NoError(t, lt.EndSession(ctx, sess.ID, "done"))
	got, ok, err := lt.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", got.Summary)
}

func TestLongTerm_FullTextIndexBacksKeywordSearch(t *testing.T) {
	ctx := context.Background()
	lt := NewLongTermWithSearch(relational.NewMemoryStore(), databases.NewMemorySearch())

	rec, err := lt.RecordInteraction(ctx, "s1", "what's a good espresso grinder?", "A flat burr grinder works well.", "general", 10)
	require.NoError(t, err)

	hits, err := lt.SearchInteractions(ctx, "espresso grinder", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, rec.ID, hits[0].ID)
	assert.Equal(t, "s1", hits[0].SessionID)
	assert.Contains(t, hits[0].UserMessage, "espresso")
}

func TestLongTerm_SearchFallsBackToLikeScanOnIndexMiss(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	lt := NewLongTermWithSearch(store, databases.NewMemorySearch())

	// A row written around the index (e.g. by an older process) is still
	// reachable through the relational LIKE scan.
	plain := NewLongTerm(store)
	_, err := plain.RecordInteraction(ctx, "s1", "the capital of france is paris", "Indeed.", "general", 5)
	require.NoError(t, err)

	hits, err := lt.SearchInteractions(ctx, "capital of france", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].UserMessage, "capital")
}

func TestLongTerm_FactsAndPreferences(t *testing.T) {
	ctx := context.Background()
	lt := NewLongTerm(relational.NewMemoryStore())

	require.NoError(t, lt.UpsertFact(ctx, "s1", "general", "likes tea", 0.6))
	facts, err := lt.ListFacts(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, facts, 1)

	require.NoError(t, lt.UpsertPreference(ctx, "editor", "vim", 0.7))
	prefs, err := lt.ListPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, "vim", prefs[0].Value)
}
