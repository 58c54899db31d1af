package observability

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactJSON_NestedAndArrays(t *testing.T) {
	in, err := json.Marshal(map[string]any{
		"api_key": "sk-ant-xyz",
		"profile": map[string]any{
			"name":     "alice",
			"password": "hunter2",
		},
		"hops": []any{
			map[string]any{"refresh_token": "tok"},
			"plain",
		},
		"note": "keepme",
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(RedactJSON(in), &out))

	assert.Equal(t, "[REDACTED]", out["api_key"])
	assert.Equal(t, "[REDACTED]", out["profile"].(map[string]any)["password"])
	assert.Equal(t, "alice", out["profile"].(map[string]any)["name"])
	assert.Equal(t, "[REDACTED]", out["hops"].([]any)[0].(map[string]any)["refresh_token"])
	assert.Equal(t, "keepme", out["note"])
}

func TestRedactJSON_PassthroughOnEmptyAndInvalid(t *testing.T) {
	assert.Nil(t, RedactJSON(nil))
	assert.Equal(t, "notjson", string(RedactJSON(json.RawMessage("notjson"))))
}
