package evolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/extract"
	"github.com/dswagner/psychoportal/internal/graph"
)

func testEvo() config.EvolutionConfig {
	return config.EvolutionConfig{
		ConfidenceMin: 0.05, ConfidenceMax: 0.95,
		DeltaReinforce: 0.05, DeltaContradict: -0.10,
		DeltaUserConfirm: 0.20, DeltaUserCorrect: -0.40,
		DeltaUsedInResponse: 0.03, TimeDecayPerIdleDay: 0.001,
		MergeSimilarityThreshold: 0.92,
	}
}

func TestIntegrate_EntitiesThenEdges(t *testing.T) {
	ctx := context.Background()
	g := graph.New(testEvo(), nil)
	e := New(g)

	res := extract.ExtractionResult{
		Entities: []extract.Entity{
			{Label: "go", Type: "technology", Confidence: 0.7},
			{Label: "user", Type: "person", Confidence: 0.9},
		},
		Edges: []extract.EdgeRef{
			{SourceLabel: "user", TargetLabel: "go", Type: "knows", Confidence: 0.6},
			{SourceLabel: "user", TargetLabel: "nonexistent", Type: "knows", Confidence: 0.6},
		},
	}

	stats, err := e.Integrate(ctx, "coding", "interaction-1", res)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntitiesAdded)
	assert.Equal(t, 1, stats.EdgesAdded)
	assert.Equal(t, 1, stats.EdgesDropped)

	userID, ok := g.FindByLabel(graph.NodePerson, "user")
	require.True(t, ok)
	out := g.OutEdges(userID)
	require.Len(t, out, 1)
	assert.Equal(t, graph.EdgeKnows, out[0].Type)
}

func TestIntegrate_UserIdentityLiftsDisplayLabel(t *testing.T) {
	ctx := context.Background()
	g := graph.New(testEvo(), nil)
	e := New(g)

	res := extract.ExtractionResult{
		Entities: []extract.Entity{
			{Label: "user", Type: "person", Confidence: 0.95,
				Properties: map[string]string{"display_name": "Alice"}},
		},
	}
	_, err := e.Integrate(ctx, "general", "session-1", res)
	require.NoError(t, err)

	id, ok := g.FindByLabel(graph.NodePerson, "user")
	require.True(t, ok)
	n, _ := g.GetNode(id, false)
	assert.Equal(t, "user", n.Label)
	assert.Equal(t, "Alice", n.DisplayLabel)
	assert.GreaterOrEqual(t, n.Confidence, 0.95)

	// A later session re-extracts the identity; the canonical node keeps
	// its label and picks up the fresh display rendering.
	res.Entities[0].Properties["display_name"] = "Alice B."
	_, err = e.Integrate(ctx, "general", "session-2", res)
	require.NoError(t, err)

	n, _ = g.GetNode(id, false)
	assert.Equal(t, "Alice B.", n.DisplayLabel)
	assert.Contains(t, n.Sources, "session-2")
}

func TestIntegrate_FactsAndPreferences(t *testing.T) {
	ctx := context.Background()
	g := graph.New(testEvo(), nil)
	e := New(g)

	res := extract.ExtractionResult{
		Facts:       []extract.Fact{{Content: "likes tea", Confidence: 0.6}},
		Preferences: []extract.Preference{{Key: "editor", Value: "vim", Confidence: 0.8}},
	}
	stats, err := e.Integrate(ctx, "general", "s", res)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FactsAdded)
	assert.Equal(t, 1, stats.PreferencesAdded)

	id, ok := g.FindByLabel(graph.NodePreference, "editor")
	require.True(t, ok)
	n, _ := g.GetNode(id, false)
	assert.Equal(t, "vim", n.Properties["value"])
}

func TestIntegrate_CorrectionAppliesDeltaAndEdge(t *testing.T) {
	ctx := context.Background()
	evo := testEvo()
	g := graph.New(evo, nil)
	e := New(g)

	res := extract.ExtractionResult{
		Entities: []extract.Entity{
			{Label: "paris", Type: "fact", Confidence: 0.6},
			{Label: "london", Type: "fact", Confidence: 0.6},
		},
		Corrections: []extract.Correction{
			{WrongLabel: "paris", CorrectLabel: "london", Note: "capital is actually london"},
		},
	}
	stats, err := e.Integrate(ctx, "general", "s", res)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CorrectionsAdded)

	paris, ok := g.FindByLabel(graph.NodeFact, "paris")
	require.True(t, ok)
	n, _ := g.GetNode(paris, false)
	assert.Less(t, n.Confidence, 0.6)

	london, ok := g.FindByLabel(graph.NodeFact, "london")
	require.True(t, ok)
	out := g.OutEdges(london)
	found := false
	for _, e := range out {
		if e.Type == graph.EdgeCorrects && e.TargetID == paris {
			found = true
		}
	}
	assert.True(t, found, "expected a corrects edge from london to paris")
}

func TestIntegrate_PageRankRecomputedOnBulkAdd(t *testing.T) {
	ctx := context.Background()
	g := graph.New(testEvo(), nil)
	e := New(g)

	res := extract.ExtractionResult{
		Entities: []extract.Entity{
			{Label: "a", Type: "concept", Confidence: 0.5},
			{Label: "bb", Type: "concept", Confidence: 0.5},
			{Label: "cc", Type: "concept", Confidence: 0.5},
		},
	}
	_, err := e.Integrate(ctx, "general", "s", res)
	require.NoError(t, err)

	id, ok := g.FindByLabel(graph.NodeConcept, "bb")
	require.True(t, ok)
	assert.Greater(t, g.PageRank(id), 0.0, "pagerank should be populated after >=3 nodes added")
}
