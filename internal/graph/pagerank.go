package graph

const (
	pagerankDamping    = 0.85
	pagerankIterations = 40
	pagerankTolerance  = 1e-6
)

// RecomputePageRank recomputes the lazily-maintained PageRank scores over
// the live (non-deprecated) subgraph: on load, after bulk integrations,
// and during maintenance. Scores are used only for ranking and are never
// persisted per-node.
func (g *Graph) RecomputePageRank() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pagerank = computePageRank(g.nodes, g.out)
}

// PageRank returns the last-computed PageRank score for id, or 0 if unknown.
func (g *Graph) PageRank(id string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pagerank[id]
}

func computePageRank(nodes map[string]*Node, out map[string]map[edgeKey]*Edge) map[string]float64 {
	ids := make([]string, 0, len(nodes))
	for id, n := range nodes {
		if !n.Deprecated {
			ids = append(ids, id)
		}
	}
	n := len(ids)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}
	for _, id := range ids {
		scores[id] = 1.0 / float64(n)
	}

	outWeight := make(map[string]float64, n)
	for _, id := range ids {
		var total float64
		for _, e := range out[id] {
			if nn, ok := nodes[e.TargetID]; ok && !nn.Deprecated {
				w := e.Weight
				if w <= 0 {
					w = 1
				}
				total += w
			}
		}
		outWeight[id] = total
	}

	for iter := 0; iter < pagerankIterations; iter++ {
		next := make(map[string]float64, n)
		var dangling float64
		for _, id := range ids {
			next[id] = (1 - pagerankDamping) / float64(n)
			if outWeight[id] == 0 {
				dangling += scores[id]
			}
		}
		danglingShare := pagerankDamping * dangling / float64(n)
		for _, id := range ids {
			next[id] += danglingShare
		}
		for _, id := range ids {
			if outWeight[id] == 0 {
				continue
			}
			for _, e := range out[id] {
				nn, ok := nodes[e.TargetID]
				if !ok || nn.Deprecated {
					continue
				}
				w := e.Weight
				if w <= 0 {
					w = 1
				}
				next[e.TargetID] += pagerankDamping * scores[id] * w / outWeight[id]
			}
		}

		var delta float64
		for _, id := range ids {
			d := next[id] - scores[id]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		scores = next
		if delta < pagerankTolerance {
			break
		}
	}
	return scores
}
