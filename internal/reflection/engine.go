// Package reflection implements the reflection engine: the
// end-of-session synthesis pass that summarizes a session, applies its
// judgments back onto the graph, invokes the Insight Generator, runs
// maintenance, and writes a journal.
package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/dswagner/psychoportal/internal/evolve"
	"github.com/dswagner/psychoportal/internal/extract"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/memory"
	"github.com/dswagner/psychoportal/internal/mistake"
	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/observability"
)

const (
	recentInteractionLimit = 25
	minLearningLen         = 10
)

// Synthesis is the strict-JSON schema the reflection LLM call produces.
type Synthesis struct {
	SessionSummary      string   `json:"session_summary"`
	QualityScore        float64  `json:"quality_score"`
	KeyLearnings        []string `json:"key_learnings"`
	CorrectionsDetected []struct {
		WrongLabel   string `json:"wrong_label"`
		CorrectLabel string `json:"correct_label"`
		Note         string `json:"note"`
	} `json:"corrections_detected"`
	PatternsObserved []string `json:"patterns_observed"`
	KnowledgeGaps    []string `json:"knowledge_gaps"`
	Insights         []string `json:"insights"`
	NodesToBoost     []string `json:"nodes_to_boost"`
	NodesToDrop      []string `json:"nodes_to_drop"`
}

// Result is what Run returns for the caller (API/CLI) to report.
type Result struct {
	Synthesis    Synthesis
	JournalPath  string
	MaintenanceOK bool
}

// Engine composes the memory, graph/evolver, mistake tracker, and LLM
// provider the reflection pass needs.
type Engine struct {
	Long     *memory.LongTerm
	Graph    *graph.Graph
	Evolver  *evolve.Evolver
	Mistakes *mistake.Tracker
	Provider llm.Provider
	Insight  *InsightGenerator
	GraphDir   string
	JournalDir string
	S3Bucket   string
}

const synthesisSystemPrompt = `You are reflecting on a finished conversation session. Respond with ONLY a single JSON object, no prose, no markdown fences, matching exactly:
{
  "session_summary": string,
  "quality_score": number between 0 and 1,
  "key_learnings": [string],
  "corrections_detected": [{"wrong_label": string, "correct_label": string, "note": string}],
  "patterns_observed": [string],
  "knowledge_gaps": [string],
  "insights": [string],
  "nodes_to_boost": [string],
  "nodes_to_drop": [string]
}
Omit fields you found nothing for; use empty arrays rather than null.`

// Run executes the full reflection pass for a session. Internal failures
// are logged and the pass continues: maintenance (which persists the graph)
// and a best-effort journal are still attempted. Run always returns a nil
// error; a failed maintenance run, graph save included, is reported through
// Result.MaintenanceOK.
func Run(ctx context.Context, e *Engine, sessionID string) (Result, error) {
	log := observability.LoggerWithTrace(ctx)

	interactions, err := e.Long.RecentInteractions(ctx, sessionID, recentInteractionLimit)
	if err != nil {
		log.Warn().Err(err).Msg("reflection_recent_interactions_failed")
	}

	firstThree := firstUserMessages(interactions, 3)
	graphCtx, err := e.Graph.GetContextForQuery(ctx, strings.Join(firstThree, " "), 25)
	if err != nil {
		log.Warn().Err(err).Msg("reflection_graph_context_failed")
	}

	synth := e.synthesize(ctx, interactions)

	for _, label := range synth.NodesToBoost {
		if id, ok := e.Graph.FindByLabel(graph.NodeConcept, label); ok {
			e.Evolver.ConfirmNodes([]string{id})
			continue
		}
		if id, ok := anyTypeFindByLabel(e.Graph, label); ok {
			e.Evolver.ConfirmNodes([]string{id})
		}
	}
	for _, label := range synth.NodesToDrop {
		if id, ok := anyTypeFindByLabel(e.Graph, label); ok {
			if err := e.Evolver.CorrectNode(id, "reflection: flagged for drop"); err != nil {
				log.Debug().Err(err).Str("node_id", id).Msg("reflection_correct_node_failed")
			}
		}
	}

	for _, learning := range synth.KeyLearnings {
		if len(strings.TrimSpace(learning)) < minLearningLen {
			continue
		}
		if _, err := e.Graph.UpsertNode(ctx, graph.NodeFact, learning, 0.7, "", "reflection:"+sessionID, nil); err != nil {
			log.Debug().Err(err).Msg("reflection_upsert_learning_failed")
		}
	}

	for _, c := range synth.CorrectionsDetected {
		wrongID, wrongOK := anyTypeFindByLabel(e.Graph, c.WrongLabel)
		correctID, correctOK := anyTypeFindByLabel(e.Graph, c.CorrectLabel)
		if wrongOK && correctOK {
			if err := e.Graph.UpsertEdge(ctx, correctID, wrongID, graph.EdgeCorrects, 0.8, 1.0, map[string]string{"note": c.Note}); err != nil {
				log.Debug().Err(err).Msg("reflection_corrects_edge_failed")
			}
		}
		if _, err := e.Mistakes.Record(ctx, sessionID, c.WrongLabel, "", c.CorrectLabel, "", c.Note); err != nil {
			log.Warn().Err(err).Msg("reflection_mistake_record_failed")
		}
	}

	if e.Insight != nil {
		if err := e.Insight.Generate(ctx, e.Graph, graphCtx, synth.SessionSummary, sessionID); err != nil {
			log.Warn().Err(err).Msg("reflection_insight_generation_failed")
		}
	}

	maintOK := true
	if err := e.Evolver.RunFullMaintenance(ctx, e.GraphDir); err != nil {
		log.Warn().Err(err).Msg("reflection_maintenance_failed")
		maintOK = false
	}

	journalPath, jerr := writeJournal(e, sessionID, synth, len(interactions))
	if jerr != nil {
		log.Warn().Err(jerr).Msg("reflection_journal_write_failed")
	}
	observability.RecordReflection(sessionID, synth.QualityScore, len(interactions))

	return Result{Synthesis: synth, JournalPath: journalPath, MaintenanceOK: maintOK}, nil
}

func (e *Engine) synthesize(ctx context.Context, interactions []model.Interaction) Synthesis {
	log := observability.LoggerWithTrace(ctx)
	if e.Provider == nil || len(interactions) == 0 {
		return Synthesis{}
	}
	var b strings.Builder
	for _, i := range interactions {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", i.UserMessage, i.AgentResponse)
	}
	res, err := e.Provider.Complete(ctx, []llm.Message{{Role: "user", Content: b.String()}}, synthesisSystemPrompt, 1024, 0.2)
	if err != nil {
		log.Warn().Err(err).Msg("reflection_synthesis_llm_failed")
		return Synthesis{}
	}
	var s Synthesis
	if !extract.ParseStrictJSON(res.Content, &s) {
		log.Warn().Msg("reflection_synthesis_json_unrecoverable")
		return Synthesis{}
	}
	return s
}

// anyTypeFindByLabel scans every node type for a matching label, since
// reflection's nodes_to_boost/drop/corrections references don't carry a
// type tag the way an extraction's edges do.
func anyTypeFindByLabel(g *graph.Graph, label string) (string, bool) {
	for _, t := range []graph.NodeType{
		graph.NodeConcept, graph.NodeEntity, graph.NodePerson, graph.NodeFact,
		graph.NodePreference, graph.NodeSkill, graph.NodeMistake, graph.NodeQuestion,
		graph.NodeDomain, graph.NodeTopic, graph.NodeFile, graph.NodeEvent, graph.NodeTechnology,
	} {
		if id, ok := g.FindByLabel(t, label); ok {
			return id, true
		}
	}
	return "", false
}

func firstUserMessages(interactions []model.Interaction, n int) []string {
	var out []string
	for i := 0; i < len(interactions) && len(out) < n; i++ {
		out = append(out, interactions[i].UserMessage)
	}
	return out
}
