package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

// Graph is the in-memory directed graph of KnowledgeNodes/KnowledgeEdges.
// It is the single writer of its own state: every mutation holds mu for the duration of the change, and
// readers (the reasoner, retrieval) take the read lock for a consistent
// snapshot.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*Node
	// out[nodeID][edgeKey] and in[nodeID][edgeKey] index edges for
	// O(1) neighbor iteration in both directions.
	out map[string]map[edgeKey]*Edge
	in  map[string]map[edgeKey]*Edge

	// labelIndex[type][label] -> node id, the identity key for upsert.
	labelIndex map[NodeType]map[string]string

	pagerank map[string]float64

	evo EvolutionConfig
	idx *vector.Store

	history []HistoryEntry
}

// EvolutionConfig is the subset of config.EvolutionConfig the graph needs
// for its confidence-dynamics constants; kept as its own type so graph
// doesn't need the whole config package surface.
type EvolutionConfig = config.EvolutionConfig

// HistoryEntry is one append-only evolution-history record, capped at 200
// entries.
type HistoryEntry struct {
	Timestamp time.Time
	Action    string
	NodeID    string
	Detail    string
}

const maxHistory = 200

// upsertReinforceDelta is the fixed (non-configurable) confidence bump
// applied when an upsert resolves to an existing node or edge, distinct
// from the configurable
// DeltaReinforce "consistent reinforcement" delta ReinforceConsistent
// applies explicitly.
const upsertReinforceDelta = 0.03

// New constructs an empty Graph. idx may be nil (indexing is then skipped,
// degrading retrieval to graph-local hop expansion only).
func New(evo EvolutionConfig, idx *vector.Store) *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		out:        make(map[string]map[edgeKey]*Edge),
		in:         make(map[string]map[edgeKey]*Edge),
		labelIndex: make(map[NodeType]map[string]string),
		pagerank:   make(map[string]float64),
		evo:        evo,
		idx:        idx,
	}
}

func (g *Graph) clamp(c float64) float64 {
	if c < g.evo.ConfidenceMin {
		return g.evo.ConfidenceMin
	}
	if c > g.evo.ConfidenceMax {
		return g.evo.ConfidenceMax
	}
	return c
}

func (g *Graph) record(action, nodeID, detail string) {
	g.history = append(g.history, HistoryEntry{Timestamp: time.Now(), Action: action, NodeID: nodeID, Detail: detail})
	if len(g.history) > maxHistory {
		g.history = g.history[len(g.history)-maxHistory:]
	}
}

// History returns a copy of the append-only evolution history.
func (g *Graph) History() []HistoryEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]HistoryEntry, len(g.history))
	copy(out, g.history)
	return out
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UpsertNode reinforces an existing (label, type) match or creates a new
// node. Returns the canonical node id.
func (g *Graph) UpsertNode(ctx context.Context, typ NodeType, displayLabel string, confidence float64, domain string, source string, properties map[string]string) (string, error) {
	label := normalizeLabel(displayLabel)
	if label == "" {
		return "", fmt.Errorf("graph: upsert node with empty label")
	}
	g.mu.Lock()
	now := time.Now()
	byLabel := g.labelIndex[typ]
	if byLabel != nil {
		if id, ok := byLabel[label]; ok {
			if n, ok := g.nodes[id]; ok && !n.Deprecated {
				n.Confidence = g.clamp(n.Confidence + upsertReinforceDelta)
				n.LastUpdated = now
				n.LastAccessed = now
				n.AccessCount++
				n.Sources = appendSource(n.Sources, source)
				for k, v := range properties {
					if _, exists := n.Properties[k]; !exists {
						n.Properties[k] = v
					}
				}
				g.record("reinforce", n.ID, fmt.Sprintf("label=%s", label))
				g.mu.Unlock()
				g.indexNode(ctx, n)
				return n.ID, nil
			}
		}
	}
	id := uuid.NewString()
	n := &Node{
		ID:           id,
		Type:         typ,
		Label:        label,
		DisplayLabel: displayLabel,
		Properties:   copyStrMap(properties),
		Confidence:   g.clamp(confidence),
		CreatedAt:    now,
		LastAccessed: now,
		LastUpdated:  now,
		AccessCount:  1,
		Domain:       domain,
		Sources:      appendSource(nil, source),
	}
	g.nodes[id] = n
	if g.labelIndex[typ] == nil {
		g.labelIndex[typ] = make(map[string]string)
	}
	g.labelIndex[typ][label] = id
	g.record("create", id, fmt.Sprintf("type=%s label=%s", typ, label))
	g.mu.Unlock()
	g.indexNode(ctx, n)
	return id, nil
}

// UpsertEdge inserts or reinforces an edge: both endpoints must exist
// and be non-deprecated; duplicates reinforce.
func (g *Graph) UpsertEdge(ctx context.Context, sourceID, targetID string, typ EdgeType, confidence, weight float64, properties map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, ok := g.nodes[sourceID]
	if !ok || src.Deprecated {
		return ErrEdgeEndpointMissing
	}
	tgt, ok := g.nodes[targetID]
	if !ok || tgt.Deprecated {
		return ErrEdgeEndpointMissing
	}

	key := edgeKey{source: sourceID, target: targetID, typ: typ}
	now := time.Now()
	if existing, ok := g.out[sourceID][key]; ok {
		existing.Weight += 0.1
		existing.Confidence = g.clamp(existing.Confidence + upsertReinforceDelta)
		existing.LastReinforced = now
		for k, v := range properties {
			if existing.Properties == nil {
				existing.Properties = map[string]string{}
			}
			if _, exists := existing.Properties[k]; !exists {
				existing.Properties[k] = v
			}
		}
		return nil
	}

	e := &Edge{
		SourceID:       sourceID,
		TargetID:       targetID,
		Type:           typ,
		Confidence:     g.clamp(confidence),
		Weight:         weight,
		Properties:     copyStrMap(properties),
		CreatedAt:      now,
		LastReinforced: now,
	}
	if g.out[sourceID] == nil {
		g.out[sourceID] = make(map[edgeKey]*Edge)
	}
	g.out[sourceID][key] = e
	if g.in[targetID] == nil {
		g.in[targetID] = make(map[edgeKey]*Edge)
	}
	g.in[targetID][key] = e
	return nil
}

// GetNode returns a copy of the node, excluding deprecated nodes unless
// includeDeprecated is set (history/audit views need the full record).
func (g *Graph) GetNode(id string, includeDeprecated bool) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok || (n.Deprecated && !includeDeprecated) {
		return Node{}, false
	}
	return *n, true
}

// FindByLabel resolves a (type, label) pair to a live node id.
func (g *Graph) FindByLabel(typ NodeType, label string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.labelIndex[typ][normalizeLabel(label)]
	if !ok {
		return "", false
	}
	if n := g.nodes[id]; n == nil || n.Deprecated {
		return "", false
	}
	return id, true
}

// OutEdges returns the live (non-deprecated target) outgoing edges of id.
func (g *Graph) OutEdges(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]Edge, 0, len(g.out[id]))
	for _, e := range g.out[id] {
		if tgt := g.nodes[e.TargetID]; tgt != nil && !tgt.Deprecated {
			edges = append(edges, *e)
		}
	}
	return edges
}

// InEdges returns the live (non-deprecated source) incoming edges of id.
func (g *Graph) InEdges(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]Edge, 0, len(g.in[id]))
	for _, e := range g.in[id] {
		if src := g.nodes[e.SourceID]; src != nil && !src.Deprecated {
			edges = append(edges, *e)
		}
	}
	return edges
}

// touchAccess marks a node as accessed (used by retrieval and "used in a
// response" boosts, see BoostUsedNodes).
func (g *Graph) touchAccess(id string) {
	if n, ok := g.nodes[id]; ok {
		n.LastAccessed = time.Now()
		n.AccessCount++
	}
}

// ConfirmNode applies the user-confirm delta (+0.20, clamped).
func (g *Graph) ConfirmNode(id string) error {
	return g.applyDelta(id, g.evo.DeltaUserConfirm, "confirm")
}

// CorrectNode applies the user-correct delta (−0.40, clamped) and records
// an explanatory property.
func (g *Graph) CorrectNode(id, note string) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return ErrNodeNotFound
	}
	n.Confidence = g.clamp(n.Confidence + g.evo.DeltaUserCorrect)
	n.LastUpdated = time.Now()
	if n.Properties == nil {
		n.Properties = map[string]string{}
	}
	if note != "" {
		n.Properties["correction_note"] = note
	}
	g.record("correct", id, note)
	g.mu.Unlock()
	return nil
}

// BoostUsedNodes applies the mild "used in a response" delta (+0.03) to
// each node id.
func (g *Graph) BoostUsedNodes(ids []string) {
	for _, id := range ids {
		_ = g.applyDelta(id, g.evo.DeltaUsedInResponse, "used_in_response")
	}
}

// ReinforceConsistent applies the +0.05 consistent-reinforcement delta.
func (g *Graph) ReinforceConsistent(id string) error {
	return g.applyDelta(id, g.evo.DeltaReinforce, "reinforce")
}

// ApplyContradiction applies the −0.10 contradiction delta.
func (g *Graph) ApplyContradiction(id string) error {
	return g.applyDelta(id, g.evo.DeltaContradict, "contradict")
}

// SetDisplayLabel replaces a node's display label, leaving its normalized
// identity label untouched. Used when a later extraction carries a better
// human-facing rendering (the user's real name on the canonical "user"
// node). Re-indexes the node so the vector text reflects the new label.
func (g *Graph) SetDisplayLabel(ctx context.Context, id, display string) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return ErrNodeNotFound
	}
	if n.DisplayLabel == display || display == "" {
		g.mu.Unlock()
		return nil
	}
	n.DisplayLabel = display
	n.LastUpdated = time.Now()
	g.record("relabel", id, fmt.Sprintf("display=%s", display))
	g.mu.Unlock()
	g.indexNode(ctx, n)
	return nil
}

func (g *Graph) applyDelta(id string, delta float64, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	n.Confidence = g.clamp(n.Confidence + delta)
	n.LastUpdated = time.Now()
	g.record(reason, id, fmt.Sprintf("delta=%.3f", delta))
	observability.RecordConfidenceDelta(id, delta, reason)
	return nil
}

// Deprecate soft-deletes a node: sets deprecated=true, records the reason,
// and applies the −0.40 confidence penalty. The node is excluded from
// retrieval but its row is kept.
func (g *Graph) Deprecate(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	n.Confidence = g.clamp(n.Confidence + g.evo.DeltaUserCorrect)
	n.Deprecated = true
	n.DeprecationReason = reason
	n.LastUpdated = time.Now()
	g.record("deprecate", id, reason)
	return nil
}

// Merge folds drop into keep: average confidence, union sources and absent
// properties, redirect all in/out edges to keep, add a similar_to audit
// edge, then deprecate drop. No edge is left orphaned.
func (g *Graph) Merge(ctx context.Context, keepID, dropID string) error {
	g.mu.Lock()
	keep, ok := g.nodes[keepID]
	if !ok {
		g.mu.Unlock()
		return ErrNodeNotFound
	}
	drop, ok := g.nodes[dropID]
	if !ok {
		g.mu.Unlock()
		return ErrNodeNotFound
	}

	keep.Confidence = g.clamp((keep.Confidence + drop.Confidence) / 2)
	keep.Sources = dedupStrings(append(append([]string{}, keep.Sources...), drop.Sources...))
	for k, v := range drop.Properties {
		if _, exists := keep.Properties[k]; !exists {
			if keep.Properties == nil {
				keep.Properties = map[string]string{}
			}
			keep.Properties[k] = v
		}
	}
	keep.LastUpdated = time.Now()

	// Redirect drop's outgoing edges to originate from keep.
	for k, e := range g.out[dropID] {
		newKey := edgeKey{source: keepID, target: e.TargetID, typ: k.typ}
		if existing, ok := g.out[keepID][newKey]; ok {
			existing.Weight += e.Weight
		} else {
			redirected := *e
			redirected.SourceID = keepID
			if g.out[keepID] == nil {
				g.out[keepID] = make(map[edgeKey]*Edge)
			}
			g.out[keepID][newKey] = &redirected
			if g.in[e.TargetID] == nil {
				g.in[e.TargetID] = make(map[edgeKey]*Edge)
			}
			g.in[e.TargetID][newKey] = &redirected
		}
		delete(g.in[e.TargetID], k)
	}
	delete(g.out, dropID)

	// Redirect drop's incoming edges to target keep.
	for k, e := range g.in[dropID] {
		newKey := edgeKey{source: e.SourceID, target: keepID, typ: k.typ}
		if existing, ok := g.in[keepID][newKey]; ok {
			existing.Weight += e.Weight
		} else {
			redirected := *e
			redirected.TargetID = keepID
			if g.in[keepID] == nil {
				g.in[keepID] = make(map[edgeKey]*Edge)
			}
			g.in[keepID][newKey] = &redirected
			if g.out[e.SourceID] == nil {
				g.out[e.SourceID] = make(map[edgeKey]*Edge)
			}
			g.out[e.SourceID][newKey] = &redirected
		}
		delete(g.out[e.SourceID], k)
	}
	delete(g.in, dropID)

	auditKey := edgeKey{source: keepID, target: dropID, typ: EdgeSimilarTo}
	if g.out[keepID] == nil {
		g.out[keepID] = make(map[edgeKey]*Edge)
	}
	g.out[keepID][auditKey] = &Edge{SourceID: keepID, TargetID: dropID, Type: EdgeSimilarTo, Confidence: 0.5, Weight: 1, CreatedAt: time.Now(), LastReinforced: time.Now()}

	drop.Deprecated = true
	drop.DeprecationReason = fmt.Sprintf("merged into %s", keepID)
	drop.Confidence = g.clamp(drop.Confidence + g.evo.DeltaUserCorrect)
	drop.LastUpdated = time.Now()

	g.record("merge", keepID, fmt.Sprintf("dropped=%s", dropID))
	g.mu.Unlock()
	g.indexNode(ctx, keep)
	return nil
}

func appendSource(sources []string, source string) []string {
	if source == "" {
		return sources
	}
	for _, s := range sources {
		if s == source {
			return sources
		}
	}
	return append(sources, source)
}

func dedupStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func copyStrMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if len(v) > 30 {
			v = v[:30]
		}
		out[k] = v
	}
	return out
}

// renderNodeText builds the compact text rendering indexed into
// the graph_nodes vector collection: "{type}: {display_label} | domain: {d}
// | k1: v1 | k2: v2".
func renderNodeText(n *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", n.Type, n.DisplayLabel)
	if n.Domain != "" {
		fmt.Fprintf(&b, " | domain: %s", n.Domain)
	}
	keys := make([]string, 0, len(n.Properties))
	for k := range n.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s: %s", k, n.Properties[k])
	}
	return b.String()
}

func (g *Graph) indexNode(ctx context.Context, n *Node) {
	if g.idx == nil {
		return
	}
	text := renderNodeText(n)
	md := map[string]string{
		"node_id": n.ID,
		"type":    string(n.Type),
		"domain":  n.Domain,
		"label":   n.Label,
	}
	if err := g.idx.Add(ctx, vector.CollectionGraphNodes, n.ID, text, md); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Str("node_id", n.ID).Msg("graph_node_index_failed")
	}
}

// Stats summarizes the graph for debug surfaces and graph_metadata.json.
type Stats struct {
	NodeCount      int
	EdgeCount      int
	AvgConfidence  float64
	TypeHistogram  map[NodeType]int
}

func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st := Stats{TypeHistogram: make(map[NodeType]int)}
	var confSum float64
	for _, n := range g.nodes {
		if n.Deprecated {
			continue
		}
		st.NodeCount++
		confSum += n.Confidence
		st.TypeHistogram[n.Type]++
	}
	for _, m := range g.out {
		st.EdgeCount += len(m)
	}
	if st.NodeCount > 0 {
		st.AvgConfidence = confSum / float64(st.NodeCount)
	}
	return st
}
