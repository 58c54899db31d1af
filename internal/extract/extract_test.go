package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}

func TestParseJSON_WellFormed(t *testing.T) {
	r, ok := parseJSON(`{"entities":[{"label":"go","type":"technology","confidence":0.8,"properties":{}}]}`)
	require.True(t, ok)
	require.Len(t, r.Entities, 1)
	assert.Equal(t, "go", r.Entities[0].Label)
}

func TestParseJSON_RepairsTruncatedTail(t *testing.T) {
	truncated := `{"entities":[{"label":"go","type":"technology","confidence":0.8,"properties":{}}],"facts":[{"content":"trunc`
	r, ok := parseJSON(truncated)
	require.True(t, ok, "truncated JSON within the repair window must parse")
	require.Len(t, r.Entities, 1)
}

func TestParseJSON_UnrecoverableReturnsFalse(t *testing.T) {
	_, ok := parseJSON("not json at all, and way too long to repair " + string(make([]byte, 300)))
	assert.False(t, ok)
}

func TestCloseBrackets(t *testing.T) {
	assert.Equal(t, `{"a":[1,2]}`, closeBrackets(`{"a":[1,2]`))
	assert.Equal(t, `{"a":"b"}`, closeBrackets(`{"a":"b`+`"`))
}

func TestEnforceConstraints_LabelMinLengthAndCap(t *testing.T) {
	raw := rawResult{}
	for i := 0; i < 12; i++ {
		raw.Entities = append(raw.Entities, Entity{Label: "x" + string(rune('a'+i)), Type: "concept", Confidence: 0.5})
	}
	raw.Entities = append(raw.Entities, Entity{Label: "a", Type: "concept", Confidence: 0.9}) // too short, dropped

	out := enforceConstraints(raw)
	assert.LessOrEqual(t, len(out.Entities), maxEntities)
}

func TestEnforceConstraints_PropertyTruncation(t *testing.T) {
	raw := rawResult{Entities: []Entity{{
		Label: "project", Type: "preference", Confidence: 0.8,
		Properties: map[string]string{"description": "this is a very long description well past thirty characters"},
	}}}
	out := enforceConstraints(raw)
	require.Len(t, out.Entities, 1)
	assert.LessOrEqual(t, len(out.Entities[0].Properties["description"]), maxPropertyValueLen)
}

func TestEnforceConstraints_EdgesRequireBothEndpointsInSet(t *testing.T) {
	raw := rawResult{
		Entities: []Entity{{Label: "go", Type: "technology", Confidence: 0.8}},
		Edges: []EdgeRef{
			{SourceLabel: "go", TargetLabel: "go", Type: "relates_to", Confidence: 0.5},
			{SourceLabel: "go", TargetLabel: "rust", Type: "relates_to", Confidence: 0.5}, // rust not in set
		},
	}
	out := enforceConstraints(raw)
	assert.Len(t, out.Edges, 1)
}

func TestEnforceConstraints_UserIdentitySpecialHandling(t *testing.T) {
	raw := rawResult{
		UserIdentity: &rawIdentity{
			Name:       "jane doe",
			Occupation: "engineer",
			Language:   "go",
		},
	}
	out := enforceConstraints(raw)
	require.Len(t, out.Entities, 3)

	byLabel := make(map[string]Entity)
	for _, e := range out.Entities {
		byLabel[e.Label] = e
	}

	user, ok := byLabel["user"]
	require.True(t, ok)
	assert.Equal(t, 0.95, user.Confidence)
	assert.Equal(t, "Jane Doe", user.Properties["display_name"])

	occ, ok := byLabel["occupation: engineer"]
	require.True(t, ok)
	assert.Equal(t, 0.8, occ.Confidence)
	assert.Equal(t, "engineer", occ.Properties["value"])

	lang, ok := byLabel["go"]
	require.True(t, ok)
	assert.Equal(t, 0.75, lang.Confidence)
}

func TestCanonicalTypes_FallbackToDefault(t *testing.T) {
	assert.Equal(t, "concept", string(CanonicalNodeType("totally_unknown")))
	assert.Equal(t, "relates_to", string(CanonicalEdgeType("totally_unknown")))
}

func TestExtractionResult_Empty(t *testing.T) {
	assert.True(t, ExtractionResult{}.Empty())
	assert.False(t, ExtractionResult{Facts: []Fact{{Content: "x"}}}.Empty())
}
