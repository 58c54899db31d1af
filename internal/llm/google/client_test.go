package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
)

func TestClient_Complete_Success(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello"}]},"finishReason":"STOP"}]}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(config.GoogleConfig{APIKey: "k", Model: "test-model", BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := c.Complete(context.Background(), nil, "", 0, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
	assert.Equal(t, "STOP", result.StopReason)
	assert.Contains(t, gotPath, "test-model")
}

func TestExtractText_NoCandidates(t *testing.T) {
	text, reason := extractText(nil)
	assert.Empty(t, text)
	assert.Empty(t, reason)
}

func TestNew_DefaultsModelWhenUnset(t *testing.T) {
	c, err := New(config.GoogleConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", c.model)
}

func TestToContents_PrefixesSystemMessage(t *testing.T) {
	contents := toContents(nil, "be concise")
	require.Len(t, contents, 1)
	b, err := json.Marshal(contents[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), "be concise")
}
