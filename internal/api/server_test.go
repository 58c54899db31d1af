package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/domain"
	"github.com/dswagner/psychoportal/internal/evolve"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/loop"
	"github.com/dswagner/psychoportal/internal/memory"
	"github.com/dswagner/psychoportal/internal/mistake"
	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/personality"
	"github.com/dswagner/psychoportal/internal/proactive"
	"github.com/dswagner/psychoportal/internal/storage/relational"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

type cannedProvider struct{ answer string }

func (p cannedProvider) Complete(context.Context, []llm.Message, string, int, float64) (llm.CompletionResult, error) {
	return llm.CompletionResult{Content: p.answer}, nil
}

func (p cannedProvider) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	h.OnDelta(p.answer)
	return p.Complete(ctx, messages, system, maxTokens, temperature)
}

func (p cannedProvider) CompleteWithImage(context.Context, []byte, string, string, string, int) (string, error) {
	return "", &llm.ErrUnsupported{Provider: "canned", Operation: "vision"}
}

func (p cannedProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, &llm.ErrUnsupported{Provider: "canned", Operation: "embedding"}
}

func (p cannedProvider) Name() string { return "canned" }

func flatEmbed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, c := range []byte(strings.ToLower(text)) {
		v[i%4] += float32(c) / 255
	}
	return v, nil
}

func newTestServer(t *testing.T) (*Server, relational.Store, *graph.Graph, *proactive.Scheduler) {
	t.Helper()
	store := relational.NewMemoryStore()
	vec := vector.New(config.StorageConfig{VectorBackend: "memory"}, flatEmbed)
	evo := config.EvolutionConfig{
		ConfidenceMin: 0.05, ConfidenceMax: 0.95,
		DeltaUserConfirm: 0.20, DeltaUserCorrect: -0.40,
		RankWeightConfidence: 0.5, RankWeightPageRank: 0.3, RankWeightRecency: 0.2,
		RecencyHalfLifeDays: 30, MergeSimilarityThreshold: 0.92, TimeDecayPerIdleDay: 0.001,
	}
	g := graph.New(evo, vec)
	mem := memory.NewManager(
		memory.NewShortTerm(20), memory.NewLongTerm(store),
		memory.NewSemantic(vec), memory.NewEpisodic(),
	)
	pers, err := personality.Load(filepath.Join(t.TempDir(), "personality.json"))
	require.NoError(t, err)

	l := loop.New(config.Config{}, cannedProvider{answer: "hi from the agent"}, mem, g,
		evolve.New(g), domain.NewRouter(nil), domain.NewRegistry(store),
		mistake.New(store, vec), pers, nil, nil)
	t.Cleanup(l.Close)

	sched := proactive.NewScheduler(proactive.NewReminderManager(store), proactive.NewCalendarManager(store), time.Hour)
	return NewServer(l, g, store, pers, sched, nil, nil), store, g, sched
}

func doJSON(t *testing.T, s *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestChatRoundTrip(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/session/start", "{}")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/chat", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hi from the agent", resp["response"])
}

func TestGraphStatsAndInspect(t *testing.T) {
	s, _, g, _ := newTestServer(t)
	ctx := context.Background()

	id, err := g.UpsertNode(ctx, graph.NodeTechnology, "go", 0.8, "coding", "test", nil)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/graph/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"NodeCount":1`)

	rec = doJSON(t, s, http.MethodGet, "/graph/inspect/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"go"`)

	rec = doJSON(t, s, http.MethodGet, "/graph/inspect/no-such-node", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGraphDeleteDeprecates(t *testing.T) {
	s, _, g, _ := newTestServer(t)
	ctx := context.Background()

	id, err := g.UpsertNode(ctx, graph.NodeFact, "stale fact", 0.5, "", "test", nil)
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodDelete, "/graph/"+id+"?reason=outdated", "")
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := g.GetNode(id, false)
	assert.False(t, ok, "deprecated nodes are excluded from live reads")
	n, ok := g.GetNode(id, true)
	require.True(t, ok, "the record itself is preserved")
	assert.True(t, n.Deprecated)
}

func TestTasksEndpoints(t *testing.T) {
	s, store, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/tasks", `{"SessionID":"s1","Title":"buy milk"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created model.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doJSON(t, s, http.MethodGet, "/tasks?session_id=s1&only_open=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buy milk")

	rec = doJSON(t, s, http.MethodPost, "/tasks/"+created.ID+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)

	open, err := store.ListTasks(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPersonalityPatchDirective(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPatch, "/personality", `{"directive":"set humor to 80%"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/personality", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"humor_level":0.8`)
}

func TestPersonalityPatchRejectsEmptyRequest(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	rec := doJSON(t, s, http.MethodPatch, "/personality", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemindersAndNotifications(t *testing.T) {
	s, _, _, sched := newTestServer(t)

	due := time.Now().Add(-time.Minute).Format(time.RFC3339)
	rec := doJSON(t, s, http.MethodPost, "/reminders", `{"Title":"call mom","DueTimestamp":"`+due+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	sched.Tick(context.Background(), time.Now())

	rec = doJSON(t, s, http.MethodGet, "/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "call mom")

	var list struct {
		Notifications []proactive.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Notifications, 1)

	rec = doJSON(t, s, http.MethodPost, "/notifications/"+list.Notifications[0].ID+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/notifications?unread=true", "")
	assert.NotContains(t, rec.Body.String(), "call mom")
}

func TestVoiceEndpointsReport503WhenUnconfigured(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/voice/tts", `{"text":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
