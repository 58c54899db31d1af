package relational

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/model"
)

func TestMemoryStore_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, model.Session{ID: "sess-1", StartedAt: now, Domain: "general"}))

	got, ok, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "general", got.Domain)

	require.NoError(t, s.EndSession(ctx, "sess-1", now.Add(time.Hour), "wrapped up"))
	got, ok, err = s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wrapped up", got.Summary)
	require.NotNil(t, got.EndedAt)
}

func TestMemoryStore_InteractionsAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertInteraction(ctx, model.Interaction{
		SessionID: "sess-1", UserMessage: "what's the weather in paris", AgentResponse: "sunny", Timestamp: time.Now(),
	}))
	require.NoError(t, s.InsertInteraction(ctx, model.Interaction{
		SessionID: "sess-1", UserMessage: "tell me a joke", AgentResponse: "knock knock", Timestamp: time.Now().Add(time.Second),
	}))

	recent, err := s.RecentInteractions(ctx, "sess-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "tell me a joke", recent[0].UserMessage, "most recent first")

	found, err := s.SearchInteractions(ctx, "paris", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].UserMessage, "paris")

	none, err := s.SearchInteractions(ctx, "nonexistent-term", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_FactsAndPreferencesUpsertDedup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertFact(ctx, model.Fact{Content: "likes tea", Confidence: 0.5}))
	require.NoError(t, s.UpsertFact(ctx, model.Fact{Content: "likes tea", Confidence: 0.8}))
	facts, err := s.ListFacts(ctx, "")
	require.NoError(t, err)
	require.Len(t, facts, 1, "same content should dedup to one row")
	assert.Equal(t, 0.8, facts[0].Confidence)

	require.NoError(t, s.UpsertPreference(ctx, model.Preference{Key: "editor", Value: "vim", Confidence: 0.7}))
	require.NoError(t, s.UpsertPreference(ctx, model.Preference{Key: "editor", Value: "emacs", Confidence: 0.9}))
	prefs, err := s.ListPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, "emacs", prefs[0].Value)
}

func TestMemoryStore_MistakesSimilarCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertMistake(ctx, model.Mistake{ID: "m1", UserInput: "bad input", Timestamp: time.Now()}))
	require.NoError(t, s.IncrementSimilarCount(ctx, "m1"))
	require.NoError(t, s.IncrementSimilarCount(ctx, "m1"))

	list, err := s.ListMistakes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SimilarCount)
}

func TestMemoryStore_TasksCompleteFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateTask(ctx, model.Task{ID: "t1", SessionID: "s1", Title: "write tests"}))
	require.NoError(t, s.CreateTask(ctx, model.Task{ID: "t2", SessionID: "s1", Title: "ship feature"}))
	require.NoError(t, s.CompleteTask(ctx, "t1"))

	open, err := s.ListTasks(ctx, "s1", true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t2", open[0].ID)

	all, err := s.ListTasks(ctx, "s1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_RemindersDueAndSnooze(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.CreateReminder(ctx, model.Reminder{ID: "r1", Title: "call mom", DueTimestamp: now.Add(-time.Minute)}))
	require.NoError(t, s.CreateReminder(ctx, model.Reminder{ID: "r2", Title: "future thing", DueTimestamp: now.Add(time.Hour)}))

	due, err := s.ListDueReminders(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "r1", due[0].ID)

	require.NoError(t, s.SnoozeReminder(ctx, "r1", now.Add(time.Hour)))
	due, err = s.ListDueReminders(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due, "snoozed reminder should not be due")
}

func TestMemoryStore_CalendarEventsWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.CreateCalendarEvent(ctx, model.CalendarEvent{
		ID: "e1", Title: "standup", StartTimestamp: now.Add(time.Hour), EndTimestamp: now.Add(90 * time.Minute),
	}))
	require.NoError(t, s.CreateCalendarEvent(ctx, model.CalendarEvent{
		ID: "e2", Title: "next month", StartTimestamp: now.AddDate(0, 1, 0),
	}))

	upcoming, err := s.ListUpcomingEvents(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "e1", upcoming[0].ID)
}

func TestMemoryStore_HealthMetricsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InsertHealthMetric(ctx, model.HealthMetric{SessionID: "s1", Kind: "weight", Value: 180, Timestamp: time.Now()}))
	require.NoError(t, s.InsertHealthMetric(ctx, model.HealthMetric{SessionID: "s1", Kind: "sleep_hours", Value: 7, Timestamp: time.Now()}))

	weight, err := s.ListHealthMetrics(ctx, "s1", "weight", 10)
	require.NoError(t, err)
	require.Len(t, weight, 1)
	assert.Equal(t, 180.0, weight[0].Value)
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*PostgresStore)(nil)
