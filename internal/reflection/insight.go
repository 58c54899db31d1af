package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/dswagner/psychoportal/internal/extract"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

const (
	minInsightConfidence = 0.4
	maxInsights          = 5
	minInsights          = 2
)

// InsightGenerator is the second LLM call of the reflection pass: given the
// top-ranked graph nodes and the session summary, it derives 2-5
// derivation-style insights and adds them as CONCEPT nodes.
type InsightGenerator struct {
	Provider llm.Provider
}

type insightEntry struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type insightResponse struct {
	Insights []insightEntry `json:"insights"`
}

const insightSystemPrompt = `You derive NEW insights (not restatements) from a set of known facts/concepts and a session summary: connections the individual facts don't state on their own. Respond with ONLY a single JSON object, no prose, no markdown fences:
{"insights": [{"text": string, "confidence": number between 0 and 1}]}
Produce between 2 and 5 insights. Omit anything below 0.4 confidence.`

// Generate runs the insight derivation call and upserts qualifying results
// as CONCEPT nodes sourced from the session.
func (g *InsightGenerator) Generate(ctx context.Context, kg *graph.Graph, nodes []graph.ContextNode, sessionSummary, sessionID string) error {
	log := observability.LoggerWithTrace(ctx)
	if g == nil || g.Provider == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Session summary: %s\n\nKnown nodes:\n", sessionSummary)
	for _, n := range nodes {
		fmt.Fprintf(&b, "- (%s) %s [confidence %.2f]\n", n.Node.Type, n.Node.DisplayLabel, n.Node.Confidence)
	}
	res, err := g.Provider.Complete(ctx, []llm.Message{{Role: "user", Content: b.String()}}, insightSystemPrompt, 768, 0.3)
	if err != nil {
		return fmt.Errorf("insight generator: llm call: %w", err)
	}
	var parsed insightResponse
	if !extract.ParseStrictJSON(res.Content, &parsed) {
		log.Warn().Msg("insight_generator_json_unrecoverable")
		return nil
	}
	count := 0
	for _, ins := range parsed.Insights {
		if ins.Confidence < minInsightConfidence || strings.TrimSpace(ins.Text) == "" {
			continue
		}
		if count >= maxInsights {
			break
		}
		if _, err := kg.UpsertNode(ctx, graph.NodeConcept, ins.Text, ins.Confidence, "", "reflection:"+sessionID, nil); err != nil {
			log.Debug().Err(err).Msg("insight_upsert_failed")
			continue
		}
		count++
	}
	if count < minInsights {
		log.Debug().Int("count", count).Msg("insight_generator_below_minimum")
	}
	return nil
}
