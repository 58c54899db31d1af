package graph

import (
	"context"
	"sort"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/dswagner/psychoportal/internal/observability"
)

// ApplyTimeDecay applies the idle-time confidence decay:
// confidence drifts down by TimeDecayPerIdleDay for every day since a node
// was last accessed. Returns the number of nodes touched.
func (g *Graph) ApplyTimeDecay() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	touched := 0
	for _, n := range g.nodes {
		if n.Deprecated {
			continue
		}
		idleDays := now.Sub(n.LastAccessed).Hours() / 24
		if idleDays < 1 {
			continue
		}
		decay := idleDays * g.evo.TimeDecayPerIdleDay
		n.Confidence = g.clamp(n.Confidence - decay)
		touched++
	}
	if touched > 0 {
		g.record("time_decay", "", "")
	}
	return touched
}

// PruneLowConfidence deprecates every live node whose confidence has decayed
// to the configured floor. Returns the deprecated ids.
func (g *Graph) PruneLowConfidence() []string {
	g.mu.Lock()
	var ids []string
	for id, n := range g.nodes {
		if !n.Deprecated && n.Confidence <= g.evo.ConfidenceMin {
			ids = append(ids, id)
		}
	}
	g.mu.Unlock()
	for _, id := range ids {
		_ = g.Deprecate(id, "confidence decayed to floor")
	}
	return ids
}

// FindAndMergeDuplicates scans each node type for label pairs whose
// normalized string similarity meets MergeSimilarityThreshold and folds the
// lower-confidence node into the higher-confidence one (ties broken by the
// lexicographically smaller id, for determinism). Returns the number of
// merges performed.
func (g *Graph) FindAndMergeDuplicates(ctx context.Context) int {
	g.mu.RLock()
	byType := make(map[NodeType][]*Node)
	for _, n := range g.nodes {
		if n.Deprecated {
			continue
		}
		byType[n.Type] = append(byType[n.Type], n)
	}
	g.mu.RUnlock()

	merges := 0
	for _, nodes := range byType {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		merged := make(map[string]bool)
		for i := 0; i < len(nodes); i++ {
			if merged[nodes[i].ID] {
				continue
			}
			for j := i + 1; j < len(nodes); j++ {
				if merged[nodes[j].ID] {
					continue
				}
				if labelSimilarity(nodes[i].Label, nodes[j].Label) < g.evo.MergeSimilarityThreshold {
					continue
				}
				keep, drop := nodes[i], nodes[j]
				if drop.Confidence > keep.Confidence ||
					(drop.Confidence == keep.Confidence && drop.ID < keep.ID) {
					keep, drop = drop, keep
				}
				if err := g.Merge(ctx, keep.ID, drop.ID); err != nil {
					observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("graph_merge_duplicate_failed")
					continue
				}
				merged[drop.ID] = true
				merges++
			}
		}
	}
	return merges
}

// labelSimilarity returns a [0,1] similarity ratio between two normalized
// labels, derived from their Levenshtein edit distance (1 - edits/maxlen).
func labelSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	edits := dmp.DiffLevenshtein(diffs)
	sim := 1 - float64(edits)/float64(maxLen)
	if sim < 0 {
		sim = 0
	}
	return sim
}

// RunFullMaintenance runs the full maintenance cycle: decay,
// prune, dedup-merge, PageRank recompute, then persist to dir.
func (g *Graph) RunFullMaintenance(ctx context.Context, dir string) error {
	log := observability.LoggerWithTrace(ctx)
	decayed := g.ApplyTimeDecay()
	pruned := g.PruneLowConfidence()
	merged := g.FindAndMergeDuplicates(ctx)
	g.RecomputePageRank()
	log.Info().Int("decayed", decayed).Int("pruned", len(pruned)).Int("merged", merged).Msg("graph_maintenance_complete")
	if dir == "" {
		return nil
	}
	return g.Save(dir)
}
