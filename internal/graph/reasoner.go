package graph

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/dswagner/psychoportal/internal/storage/vector"
)

const seedLimit = 8

// ContextNode is one ranked result from GetContextForQuery: a node plus its
// live outgoing edges and the composite relevance score that placed it.
type ContextNode struct {
	Node  Node
	Score float64
	Out   []Edge
}

// GetContextForQuery runs hybrid retrieval: semantic seed
// search, one-hop graph expansion, and a confidence/PageRank/recency blend,
// returning the top k candidates with their live outgoing edges.
func (g *Graph) GetContextForQuery(ctx context.Context, query string, k int) ([]ContextNode, error) {
	if k <= 0 {
		k = 5
	}
	seedIDs := make(map[string]struct{})
	if g.idx != nil {
		hits, err := g.idx.Search(ctx, vector.CollectionGraphNodes, query, seedLimit, nil)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if id := h.Metadata["node_id"]; id != "" {
				seedIDs[id] = struct{}{}
			}
		}
	}

	candidates := make(map[string]struct{}, len(seedIDs)*4)
	for id := range seedIDs {
		candidates[id] = struct{}{}
		for _, e := range g.OutEdges(id) {
			candidates[e.TargetID] = struct{}{}
		}
		for _, e := range g.InEdges(id) {
			candidates[e.SourceID] = struct{}{}
		}
	}

	g.mu.RLock()
	now := time.Now()
	scored := make([]ContextNode, 0, len(candidates))
	for id := range candidates {
		n, ok := g.nodes[id]
		if !ok || n.Deprecated {
			continue
		}
		idleDays := now.Sub(n.LastAccessed).Hours() / 24
		halfLife := g.evo.RecencyHalfLifeDays
		if halfLife <= 0 {
			halfLife = 30
		}
		recency := math.Pow(2, -idleDays/halfLife)
		pr := math.Min(g.pagerank[id]*100, 1)
		score := g.evo.RankWeightConfidence*n.Confidence + g.evo.RankWeightPageRank*pr + g.evo.RankWeightRecency*recency
		scored = append(scored, ContextNode{Node: *n, Score: score})
	}
	g.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	g.mu.Lock()
	for i := range scored {
		g.touchAccess(scored[i].Node.ID)
	}
	g.mu.Unlock()
	for i := range scored {
		scored[i].Out = g.OutEdges(scored[i].Node.ID)
	}
	return scored, nil
}
