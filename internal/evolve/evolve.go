// Package evolve implements the graph evolver: the single write
// path from an extraction into the Knowledge Graph, plus the signal-handler
// delegation methods (confirm/correct/boost) and the maintenance orchestrator
// the Reflection Engine calls at session end.
package evolve

import (
	"context"
	"fmt"

	"github.com/dswagner/psychoportal/internal/extract"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/observability"
)

// Stats summarizes one Integrate call, for logging and reflection reporting.
type Stats struct {
	EntitiesAdded    int
	EdgesAdded       int
	EdgesDropped     int
	FactsAdded       int
	PreferencesAdded int
	QuestionsAdded   int
	CorrectionsAdded int
}

// Evolver wraps a Graph as the sole writer of extraction results into it.
type Evolver struct {
	g *graph.Graph
}

// New constructs an Evolver over g.
func New(g *graph.Graph) *Evolver {
	return &Evolver{g: g}
}

// Integrate applies an ExtractionResult to the graph in a fixed order:
// entities, then the user-identity merge special case, then
// edges (only if both endpoints resolved), then facts/preferences,
// questions, then corrections, finally a PageRank recompute if warranted.
func (e *Evolver) Integrate(ctx context.Context, domain, sourceID string, res extract.ExtractionResult) (Stats, error) {
	var stats Stats
	log := observability.LoggerWithTrace(ctx)

	labelToID := make(map[string]string, len(res.Entities))
	nodesAdded := 0

	for _, ent := range res.Entities {
		typ := graph.NodeType(ent.Type)
		id, err := e.g.UpsertNode(ctx, typ, ent.Label, ent.Confidence, domain, sourceID, ent.Properties)
		if err != nil {
			log.Warn().Err(err).Str("label", ent.Label).Msg("evolve_upsert_entity_failed")
			continue
		}
		labelToID[ent.Label] = id
		stats.EntitiesAdded++
		nodesAdded++

		if typ == graph.NodePerson && ent.Label == "user" {
			e.mergeUserIdentity(ctx, id, ent)
		}
	}

	for _, edge := range res.Edges {
		srcID, okSrc := labelToID[edge.SourceLabel]
		tgtID, okTgt := labelToID[edge.TargetLabel]
		if !okSrc || !okTgt {
			stats.EdgesDropped++
			continue
		}
		if err := e.g.UpsertEdge(ctx, srcID, tgtID, graph.EdgeType(edge.Type), edge.Confidence, 1, nil); err != nil {
			stats.EdgesDropped++
			continue
		}
		stats.EdgesAdded++
	}

	for _, f := range res.Facts {
		if len(f.Content) == 0 {
			continue
		}
		if _, err := e.g.UpsertNode(ctx, graph.NodeFact, f.Content, f.Confidence, domain, sourceID, nil); err == nil {
			stats.FactsAdded++
			nodesAdded++
		}
	}

	for _, p := range res.Preferences {
		id, err := e.g.UpsertNode(ctx, graph.NodePreference, p.Key, p.Confidence, domain, sourceID, map[string]string{"value": p.Value})
		if err == nil {
			labelToID[p.Key] = id
			stats.PreferencesAdded++
			nodesAdded++
		}
	}

	for _, q := range res.Questions {
		if _, err := e.g.UpsertNode(ctx, graph.NodeQuestion, q.Content, q.Confidence, domain, sourceID, nil); err == nil {
			stats.QuestionsAdded++
			nodesAdded++
		}
	}

	for _, c := range res.Corrections {
		e.applyCorrection(ctx, labelToID, c, domain, sourceID, &stats)
	}

	if nodesAdded >= 3 {
		e.g.RecomputePageRank()
	}

	return stats, nil
}

// mergeUserIdentity folds a re-extracted "user" PERSON node's properties and
// display label into the existing canonical user node, with a mild
// confidence bump.
func (e *Evolver) mergeUserIdentity(ctx context.Context, id string, ent extract.Entity) {
	n, ok := e.g.GetNode(id, false)
	if !ok {
		return
	}
	name := ent.Properties["display_name"]
	if name == "" {
		return
	}
	if n.DisplayLabel != name {
		if err := e.g.SetDisplayLabel(ctx, id, name); err != nil {
			return
		}
	}
	_ = e.g.ReinforceConsistent(id)
}

// applyCorrection applies one extracted correction: the "wrong" side drops by
// DeltaUserCorrect with an explanatory property; if both sides resolved, a
// corrects edge links them; otherwise the correct side gets a standalone
// confirm boost.
func (e *Evolver) applyCorrection(ctx context.Context, labelToID map[string]string, c extract.Correction, domain, sourceID string, stats *Stats) {
	wrongID, wrongOK := e.resolveLabel(labelToID, c.WrongLabel)
	if !wrongOK && c.WrongLabel != "" {
		if id, err := e.g.UpsertNode(ctx, graph.NodeFact, c.WrongLabel, 0.3, domain, sourceID, nil); err == nil {
			wrongID = id
			wrongOK = true
			labelToID[c.WrongLabel] = id
		}
	}
	if wrongOK {
		_ = e.g.CorrectNode(wrongID, c.Note)
	}

	correctID, correctOK := e.resolveLabel(labelToID, c.CorrectLabel)
	if !correctOK && c.CorrectLabel != "" {
		if id, err := e.g.UpsertNode(ctx, graph.NodeFact, c.CorrectLabel, 0.6, domain, sourceID, nil); err == nil {
			correctID = id
			correctOK = true
			labelToID[c.CorrectLabel] = id
		}
	}

	if wrongOK && correctOK {
		if err := e.g.UpsertEdge(ctx, correctID, wrongID, graph.EdgeCorrects, 0.7, 1, nil); err == nil {
			stats.CorrectionsAdded++
		}
	} else if correctOK {
		_ = e.g.ConfirmNode(correctID)
		stats.CorrectionsAdded++
	}
}

// correctionLookupTypes are the node types a correction's wrong/correct
// label is plausibly resolved against when it isn't part of the current
// extraction batch.
var correctionLookupTypes = []graph.NodeType{
	graph.NodeFact, graph.NodePreference, graph.NodeEntity, graph.NodeConcept,
	graph.NodeTechnology, graph.NodePerson, graph.NodeSkill,
}

// resolveLabel resolves label to a node id, checking the current
// extraction's label map first (cheap, in-batch) and falling back to a
// cross-type graph lookup (an earlier session's node) before giving up.
func (e *Evolver) resolveLabel(labelToID map[string]string, label string) (string, bool) {
	if label == "" {
		return "", false
	}
	if id, ok := labelToID[label]; ok {
		return id, true
	}
	for _, t := range correctionLookupTypes {
		if id, ok := e.g.FindByLabel(t, label); ok {
			return id, true
		}
	}
	return "", false
}

// ConfirmNodes applies the user-confirm delta to each id.
func (e *Evolver) ConfirmNodes(ids []string) {
	for _, id := range ids {
		_ = e.g.ConfirmNode(id)
	}
}

// CorrectNode applies the user-correct delta with an explanatory note.
func (e *Evolver) CorrectNode(id, note string) error {
	return e.g.CorrectNode(id, note)
}

// BoostUsedNodes applies the mild "used in a response" delta to each id.
func (e *Evolver) BoostUsedNodes(ids []string) {
	e.g.BoostUsedNodes(ids)
}

// RunFullMaintenance delegates to the graph's maintenance cycle, persisting
// to dir afterward.
func (e *Evolver) RunFullMaintenance(ctx context.Context, dir string) error {
	if err := e.g.RunFullMaintenance(ctx, dir); err != nil {
		return fmt.Errorf("evolver: run full maintenance: %w", err)
	}
	return nil
}

// Graph exposes the underlying graph for read-path consumers (the reasoner,
// debug/export surfaces) that need it directly.
func (e *Evolver) Graph() *graph.Graph {
	return e.g
}
