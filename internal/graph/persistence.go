package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

const schemaVersion = 1

// persistedNode/persistedEdge mirror the on-disk shape of knowledge_graph.json
// on disk: {schema_version, saved_at, nodes: {id->node}, edges: [edge]}.
type persistedNode struct {
	ID                string            `json:"id"`
	Type              NodeType          `json:"type"`
	Label             string            `json:"label"`
	DisplayLabel      string            `json:"display_label"`
	Properties        map[string]string `json:"properties"`
	Confidence        float64           `json:"confidence"`
	CreatedAt         time.Time         `json:"created_at"`
	LastAccessed      time.Time         `json:"last_accessed"`
	LastUpdated       time.Time         `json:"last_updated"`
	AccessCount       int               `json:"access_count"`
	Domain            string            `json:"domain"`
	Sources           []string          `json:"sources"`
	EmbeddingID       string            `json:"embedding_id"`
	Deprecated        bool              `json:"deprecated"`
	DeprecationReason string            `json:"deprecation_reason,omitempty"`
}

type persistedEdge struct {
	SourceID       string            `json:"source_id"`
	TargetID       string            `json:"target_id"`
	Type           EdgeType          `json:"type"`
	Confidence     float64           `json:"confidence"`
	Weight         float64           `json:"weight"`
	Properties     map[string]string `json:"properties,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastReinforced time.Time         `json:"last_reinforced"`
}

type persistedGraph struct {
	SchemaVersion int                      `json:"schema_version"`
	SavedAt       time.Time                `json:"saved_at"`
	Nodes         map[string]persistedNode `json:"nodes"`
	Edges         []persistedEdge          `json:"edges"`
}

type persistedHistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	NodeID    string    `json:"node_id"`
	Detail    string    `json:"detail"`
}

type persistedMetadata struct {
	NodeCount        int                 `json:"node_count"`
	EdgeCount        int                 `json:"edge_count"`
	AverageConfidence float64            `json:"average_confidence"`
	TypeHistogram    map[NodeType]int     `json:"type_histogram"`
	EvolutionHistory []persistedHistoryEntry `json:"evolution_history"`
}

// snapshot builds the persisted-shape view of the graph (nodes, edges sorted
// into a deterministic order, and history) without writing anything. Shared
// by Save and Export so the on-disk and over-the-wire representations never
// drift from each other.
func (g *Graph) snapshot() (persistedGraph, persistedMetadata) {
	g.mu.RLock()
	pg := persistedGraph{
		SchemaVersion: schemaVersion,
		SavedAt:       time.Now(),
		Nodes:         make(map[string]persistedNode, len(g.nodes)),
	}
	for id, n := range g.nodes {
		pg.Nodes[id] = persistedNode{
			ID: id, Type: n.Type, Label: n.Label, DisplayLabel: n.DisplayLabel,
			Properties: n.Properties, Confidence: n.Confidence, CreatedAt: n.CreatedAt,
			LastAccessed: n.LastAccessed, LastUpdated: n.LastUpdated, AccessCount: n.AccessCount,
			Domain: n.Domain, Sources: n.Sources, EmbeddingID: n.EmbeddingID,
			Deprecated: n.Deprecated, DeprecationReason: n.DeprecationReason,
		}
	}
	for _, m := range g.out {
		for _, e := range m {
			pg.Edges = append(pg.Edges, persistedEdge{
				SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type,
				Confidence: e.Confidence, Weight: e.Weight, Properties: e.Properties,
				CreatedAt: e.CreatedAt, LastReinforced: e.LastReinforced,
			})
		}
	}
	// Map iteration order is randomized per run; sort so repeated snapshots
	// of an unchanged graph are byte-stable (save -> load -> save
	// round-trips to identical JSON modulo saved_at).
	sort.Slice(pg.Edges, func(i, j int) bool {
		a, b := pg.Edges[i], pg.Edges[j]
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		return a.Type < b.Type
	})
	history := make([]persistedHistoryEntry, len(g.history))
	for i, h := range g.history {
		history[i] = persistedHistoryEntry{Timestamp: h.Timestamp, Action: h.Action, NodeID: h.NodeID, Detail: h.Detail}
	}
	g.mu.RUnlock()
	stats := g.Stats()

	meta := persistedMetadata{
		NodeCount: stats.NodeCount, EdgeCount: stats.EdgeCount,
		AverageConfidence: stats.AvgConfidence, TypeHistogram: stats.TypeHistogram,
		EvolutionHistory: history,
	}
	return pg, meta
}

// Save atomically writes knowledge_graph.json and its sibling
// graph_metadata.json under dir.
func (g *Graph) Save(dir string) error {
	pg, meta := g.snapshot()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	if err := writeAtomicJSON(filepath.Join(dir, "knowledge_graph.json"), pg); err != nil {
		return fmt.Errorf("save knowledge_graph.json: %w", err)
	}
	if err := writeAtomicJSON(filepath.Join(dir, "graph_metadata.json"), meta); err != nil {
		return fmt.Errorf("save graph_metadata.json: %w", err)
	}
	return nil
}

// Export renders the same knowledge_graph.json + graph_metadata.json shape
// Save writes to disk as an in-memory pair, for the HTTP API's graph-export
// endpoint.
func (g *Graph) Export() (graphJSON, metadataJSON []byte, err error) {
	pg, meta := g.snapshot()
	graphJSON, err = json.MarshalIndent(pg, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal graph export: %w", err)
	}
	metadataJSON, err = json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal graph metadata export: %w", err)
	}
	return graphJSON, metadataJSON, nil
}

func writeAtomicJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads knowledge_graph.json from dir into a fresh Graph. Malformed
// nodes/edges are skipped with a warning rather than failing the load.
// Recomputes PageRank once load completes.
func Load(ctx context.Context, dir string, evo EvolutionConfig, idx *vector.Store) (*Graph, error) {
	log := observability.LoggerWithTrace(ctx)
	path := filepath.Join(dir, "knowledge_graph.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(evo, idx), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge_graph.json: %w", err)
	}
	var pg persistedGraph
	if err := json.Unmarshal(data, &pg); err != nil {
		return nil, fmt.Errorf("parse knowledge_graph.json: %w", err)
	}

	g := New(evo, idx)
	for id, n := range pg.Nodes {
		if n.Label == "" || n.Type == "" {
			log.Warn().Str("node_id", id).Msg("graph_load_skip_malformed_node")
			continue
		}
		node := &Node{
			ID: id, Type: n.Type, Label: n.Label, DisplayLabel: n.DisplayLabel,
			Properties: n.Properties, Confidence: n.Confidence, CreatedAt: n.CreatedAt,
			LastAccessed: n.LastAccessed, LastUpdated: n.LastUpdated, AccessCount: n.AccessCount,
			Domain: n.Domain, Sources: n.Sources, EmbeddingID: n.EmbeddingID,
			Deprecated: n.Deprecated, DeprecationReason: n.DeprecationReason,
		}
		if node.Properties == nil {
			node.Properties = map[string]string{}
		}
		g.nodes[id] = node
		if g.labelIndex[n.Type] == nil {
			g.labelIndex[n.Type] = make(map[string]string)
		}
		g.labelIndex[n.Type][n.Label] = id
	}
	for _, e := range pg.Edges {
		if _, ok := g.nodes[e.SourceID]; !ok {
			log.Warn().Str("source_id", e.SourceID).Msg("graph_load_skip_malformed_edge")
			continue
		}
		if _, ok := g.nodes[e.TargetID]; !ok {
			log.Warn().Str("target_id", e.TargetID).Msg("graph_load_skip_malformed_edge")
			continue
		}
		edge := &Edge{
			SourceID: e.SourceID, TargetID: e.TargetID, Type: e.Type,
			Confidence: e.Confidence, Weight: e.Weight, Properties: e.Properties,
			CreatedAt: e.CreatedAt, LastReinforced: e.LastReinforced,
		}
		key := edgeKey{source: e.SourceID, target: e.TargetID, typ: e.Type}
		if g.out[e.SourceID] == nil {
			g.out[e.SourceID] = make(map[edgeKey]*Edge)
		}
		g.out[e.SourceID][key] = edge
		if g.in[e.TargetID] == nil {
			g.in[e.TargetID] = make(map[edgeKey]*Edge)
		}
		g.in[e.TargetID][key] = edge
	}
	g.RecomputePageRank()
	return g, nil
}
