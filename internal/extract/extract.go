// Package extract implements the knowledge extractor: an
// LLM-driven structured extraction of entities, edges, facts, preferences,
// questions, and corrections from a single interaction, guarded by strict
// per-field constraints so a malformed or partial LLM response degrades to
// an empty (not crashing) extraction.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

const maxEntities = 8
const maxPropertyValueLen = 30
const maxRepairScan = 200

// Entity is one extracted entity or identity fact.
type Entity struct {
	Label      string            `json:"label"`
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Properties map[string]string `json:"properties"`
}

// EdgeRef is an extracted relationship between two labels present in the
// same extraction (resolved to ids downstream by the Evolver).
type EdgeRef struct {
	SourceLabel string  `json:"source_label"`
	TargetLabel string  `json:"target_label"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
}

// Preference is an extracted user preference.
type Preference struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Fact is an extracted standalone key-fact.
type Fact struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Question is an extracted open question.
type Question struct {
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Correction is a detected "X is actually Y" correction pair.
type Correction struct {
	WrongLabel   string `json:"wrong_label"`
	CorrectLabel string `json:"correct_label"`
	Note         string `json:"note"`
}

// ExtractionResult is the extractor's typed output.
type ExtractionResult struct {
	Entities    []Entity     `json:"entities"`
	Edges       []EdgeRef    `json:"edges"`
	Preferences []Preference `json:"preferences"`
	Facts       []Fact       `json:"facts"`
	Questions   []Question   `json:"questions"`
	Corrections []Correction `json:"corrections"`
}

// Empty reports whether the result holds nothing worth integrating.
func (r ExtractionResult) Empty() bool {
	return len(r.Entities) == 0 && len(r.Edges) == 0 && len(r.Preferences) == 0 &&
		len(r.Facts) == 0 && len(r.Questions) == 0 && len(r.Corrections) == 0
}

// rawIdentity/rawResult mirror the LLM's declared JSON schema prior to
// constraint enforcement (see Extract), including the user_identity block
// that gets redistributed into Entities (see identityEntities).
type rawIdentity struct {
	Name           string `json:"name"`
	Occupation     string `json:"occupation"`
	Location       string `json:"location"`
	CurrentProject string `json:"current_project"`
	Goal           string `json:"goal"`
	Language       string `json:"language"`
	Framework      string `json:"framework"`
	Tool           string `json:"tool"`
}

type rawResult struct {
	Entities     []Entity     `json:"entities"`
	Edges        []EdgeRef    `json:"edges"`
	Preferences  []Preference `json:"preferences"`
	Facts        []Fact       `json:"facts"`
	Questions    []Question   `json:"questions"`
	Corrections  []Correction `json:"corrections"`
	UserIdentity *rawIdentity `json:"user_identity"`
}

const systemPrompt = `You extract structured knowledge from a single conversation turn. Respond with ONLY a single JSON object, no prose, no markdown fences, matching exactly:
{
  "entities": [{"label": string, "type": string, "confidence": number, "properties": object}],
  "edges": [{"source_label": string, "target_label": string, "type": string, "confidence": number}],
  "preferences": [{"key": string, "value": string, "confidence": number}],
  "facts": [{"content": string, "confidence": number}],
  "questions": [{"content": string, "confidence": number}],
  "corrections": [{"wrong_label": string, "correct_label": string, "note": string}],
  "user_identity": {"name": string, "occupation": string, "location": string, "current_project": string, "goal": string, "language": string, "framework": string, "tool": string}
}
Omit fields you found nothing for. Use empty string/array/object rather than null. Keep labels short and lowercase.`

// Extract runs the LLM extraction prompt over text (an interaction or text
// chunk) tagged with sourceID/domain, and returns a constraint-enforced
// ExtractionResult. Extraction failures (LLM error, unrecoverable JSON) log
// and return an empty result rather than propagating an error; extraction
// failures never surface to the user.
func Extract(ctx context.Context, provider llm.Provider, text, sourceID, domain string) ExtractionResult {
	log := observability.LoggerWithTrace(ctx)
	result, err := provider.Complete(ctx, []llm.Message{
		{Role: "user", Content: fmt.Sprintf("Domain: %s\n\nText:\n%s", domain, text)},
	}, systemPrompt, 1024, 0)
	if err != nil {
		log.Warn().Err(err).Str("source_id", sourceID).Msg("extract_llm_call_failed")
		observability.Metrics().ExtractionDropped.Add(ctx, 1)
		return ExtractionResult{}
	}

	raw, ok := parseJSON(result.Content)
	if !ok {
		log.Warn().Str("source_id", sourceID).Msg("extract_json_unrecoverable")
		observability.Metrics().ExtractionDropped.Add(ctx, 1)
		return ExtractionResult{}
	}

	return enforceConstraints(raw)
}

// parseJSON strips fenced code markers, parses the response, and attempts a
// bounded tail-repair on failure.
func parseJSON(content string) (rawResult, bool) {
	content = stripFences(content)
	var r rawResult
	if err := json.Unmarshal([]byte(content), &r); err == nil {
		return r, true
	}
	repaired, ok := repairJSON(content)
	if !ok {
		return rawResult{}, false
	}
	if err := json.Unmarshal([]byte(repaired), &r); err != nil {
		return rawResult{}, false
	}
	return r, true
}

// ParseStrictJSON strips fenced code markers from content and unmarshals it
// into out, attempting the same bounded tail-repair parseJSON uses on
// failure. Exported so other LLM-JSON-schema callers (reflection's
// synthesis and insight calls) share one repair strategy instead of a
// second bespoke implementation.
func ParseStrictJSON(content string, out any) bool {
	content = stripFences(content)
	if err := json.Unmarshal([]byte(content), out); err == nil {
		return true
	}
	repaired, ok := repairJSON(content)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(repaired), out) == nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairJSON attempts to recover a truncated JSON object by trimming the
// tail and closing with balanced brackets, scanning inward up to
// maxRepairScan characters.
func repairJSON(s string) (string, bool) {
	limit := len(s)
	scan := maxRepairScan
	if scan > limit {
		scan = limit
	}
	for cut := 0; cut <= scan; cut++ {
		candidate := strings.TrimRight(s[:limit-cut], " \t\n\r,")
		if candidate == "" {
			continue
		}
		closed := closeBrackets(candidate)
		var probe map[string]any
		if err := json.Unmarshal([]byte(closed), &probe); err == nil {
			return closed, true
		}
	}
	return "", false
}

func closeBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// nodeTypeAlias maps free-form LLM type strings to a canonical NodeType.
var nodeTypeAlias = map[string]graph.NodeType{
	"concept": graph.NodeConcept, "idea": graph.NodeConcept, "topic_area": graph.NodeConcept,
	"entity": graph.NodeEntity, "thing": graph.NodeEntity, "object": graph.NodeEntity,
	"person": graph.NodePerson, "human": graph.NodePerson, "user": graph.NodePerson,
	"fact": graph.NodeFact, "statement": graph.NodeFact,
	"preference": graph.NodePreference, "pref": graph.NodePreference, "like": graph.NodePreference,
	"skill": graph.NodeSkill, "ability": graph.NodeSkill,
	"mistake": graph.NodeMistake, "error": graph.NodeMistake,
	"question": graph.NodeQuestion, "open_question": graph.NodeQuestion,
	"domain": graph.NodeDomain,
	"topic":  graph.NodeTopic, "subject": graph.NodeTopic,
	"file": graph.NodeFile, "document": graph.NodeFile,
	"event": graph.NodeEvent, "occurrence": graph.NodeEvent,
	"technology": graph.NodeTechnology, "tech": graph.NodeTechnology, "tool": graph.NodeTechnology,
	"language": graph.NodeTechnology, "framework": graph.NodeTechnology,
}

// edgeTypeAlias maps free-form LLM edge-type strings to a canonical EdgeType.
var edgeTypeAlias = map[string]graph.EdgeType{
	"is_a": graph.EdgeIsA, "isa": graph.EdgeIsA, "type_of": graph.EdgeIsA,
	"part_of": graph.EdgePartOf, "belongs_to": graph.EdgePartOf,
	"relates_to": graph.EdgeRelatesTo, "related_to": graph.EdgeRelatesTo, "associated_with": graph.EdgeRelatesTo,
	"has_property": graph.EdgeHasProp, "has_attribute": graph.EdgeHasProp,
	"depends_on": graph.EdgeDependsOn, "requires": graph.EdgeDependsOn,
	"used_in": graph.EdgeUsedIn, "uses": graph.EdgeUsedIn,
	"contradicts": graph.EdgeContradicts, "conflicts_with": graph.EdgeContradicts,
	"supports": graph.EdgeSupports, "confirms": graph.EdgeSupports,
	"corrects": graph.EdgeCorrects, "fixes": graph.EdgeCorrects,
	"preferred_by": graph.EdgePreferredBy, "liked_by": graph.EdgePreferredBy,
	"knows": graph.EdgeKnows, "familiar_with": graph.EdgeKnows,
	"dislikes": graph.EdgeDislikes, "disliked_by": graph.EdgeDislikes,
	"extracted_from": graph.EdgeExtractedFrom,
	"inferred_from":  graph.EdgeInferredFrom,
	"mentioned_in":   graph.EdgeMentionedIn,
	"similar_to":     graph.EdgeSimilarTo, "similar": graph.EdgeSimilarTo,
}

// CanonicalNodeType resolves a free-form type string to a NodeType, falling
// back to concept for anything unrecognized.
func CanonicalNodeType(raw string) graph.NodeType {
	if t, ok := nodeTypeAlias[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return graph.NodeConcept
}

// CanonicalEdgeType resolves a free-form type string to an EdgeType, falling
// back to relates_to for anything unrecognized.
func CanonicalEdgeType(raw string) graph.EdgeType {
	if t, ok := edgeTypeAlias[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return graph.EdgeRelatesTo
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func truncateProp(v string) string {
	if len(v) > maxPropertyValueLen {
		return v[:maxPropertyValueLen]
	}
	return v
}

func enforceConstraints(raw rawResult) ExtractionResult {
	var out ExtractionResult

	for _, e := range raw.Entities {
		label := normalizeLabel(e.Label)
		if len(label) < 2 {
			continue
		}
		if len(out.Entities) >= maxEntities {
			break
		}
		props := make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			props[k] = truncateProp(v)
		}
		out.Entities = append(out.Entities, Entity{
			Label: label, Type: string(CanonicalNodeType(e.Type)), Confidence: clamp01(e.Confidence), Properties: props,
		})
	}

	labelSet := make(map[string]struct{}, len(out.Entities))
	for _, e := range out.Entities {
		labelSet[e.Label] = struct{}{}
	}

	if raw.UserIdentity != nil {
		out.Entities = append(out.Entities, identityEntities(*raw.UserIdentity, labelSet)...)
	}

	for _, e := range raw.Edges {
		src, tgt := normalizeLabel(e.SourceLabel), normalizeLabel(e.TargetLabel)
		if src == "" || tgt == "" {
			continue
		}
		if _, ok := labelSet[src]; !ok {
			continue
		}
		if _, ok := labelSet[tgt]; !ok {
			continue
		}
		out.Edges = append(out.Edges, EdgeRef{
			SourceLabel: src, TargetLabel: tgt, Type: string(CanonicalEdgeType(e.Type)), Confidence: clamp01(e.Confidence),
		})
	}

	for _, p := range raw.Preferences {
		if strings.TrimSpace(p.Key) == "" {
			continue
		}
		out.Preferences = append(out.Preferences, Preference{Key: normalizeLabel(p.Key), Value: truncateProp(p.Value), Confidence: clamp01(p.Confidence)})
	}

	for _, f := range raw.Facts {
		if strings.TrimSpace(f.Content) == "" {
			continue
		}
		out.Facts = append(out.Facts, Fact{Content: f.Content, Confidence: clamp01(f.Confidence)})
	}

	for _, q := range raw.Questions {
		if strings.TrimSpace(q.Content) == "" {
			continue
		}
		out.Questions = append(out.Questions, Question{Content: q.Content, Confidence: clamp01(q.Confidence)})
	}

	for _, c := range raw.Corrections {
		wrong, correct := normalizeLabel(c.WrongLabel), normalizeLabel(c.CorrectLabel)
		if wrong == "" {
			continue
		}
		out.Corrections = append(out.Corrections, Correction{WrongLabel: wrong, CorrectLabel: correct, Note: c.Note})
	}

	return out
}

// identityEntities redistributes the user_identity block into entities:
// name -> PERSON "user" @0.95; occupation/location/current_project/goal ->
// PREFERENCE @0.8; language/framework/tool -> TECHNOLOGY @0.75.
func identityEntities(id rawIdentity, existing map[string]struct{}) []Entity {
	var out []Entity
	add := func(label, typ string, confidence float64, props map[string]string) {
		norm := normalizeLabel(label)
		if norm == "" || len(norm) < 2 {
			return
		}
		if _, dup := existing[norm]; dup {
			return
		}
		existing[norm] = struct{}{}
		out = append(out, Entity{Label: norm, Type: typ, Confidence: confidence, Properties: props})
	}

	if id.Name != "" {
		out = append(out, Entity{
			Label: "user", Type: string(graph.NodePerson), Confidence: 0.95,
			Properties: map[string]string{"display_name": properCase(id.Name)},
		})
		existing["user"] = struct{}{}
	}
	// Preference labels carry the identity key: "current_project: trading
	// bot", not the bare value, so distinct keys with the same value stay
	// distinct nodes.
	addPref := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		add(key+": "+value, string(graph.NodePreference), 0.8, map[string]string{"kind": key, "value": normalizeLabel(value)})
	}
	addPref("occupation", id.Occupation)
	addPref("location", id.Location)
	addPref("current_project", id.CurrentProject)
	addPref("goal", id.Goal)
	add(id.Language, string(graph.NodeTechnology), 0.75, map[string]string{"kind": "language"})
	add(id.Framework, string(graph.NodeTechnology), 0.75, map[string]string{"kind": "framework"})
	add(id.Tool, string(graph.NodeTechnology), 0.75, map[string]string{"kind": "tool"})
	return out
}

func properCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == "" {
			continue
		}
		fields[i] = strings.ToUpper(f[:1]) + strings.ToLower(f[1:])
	}
	return strings.Join(fields, " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
