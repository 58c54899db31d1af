package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

func TestHealthHandler_ExtractsMetrics(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	h := NewRegistry(store).For(Health)

	artifacts, err := h.PostProcess(ctx, Turn{
		SessionID:   "s1",
		UserMessage: "I weigh 180 lbs and slept 7 hours, then ran for 30 minutes",
	})
	require.NoError(t, err)
	require.Len(t, artifacts, 3)

	weights, err := store.ListHealthMetrics(ctx, "s1", "weight", 10)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.Equal(t, 180.0, weights[0].Value)
	assert.Equal(t, "lbs", weights[0].Unit)

	sleep, err := store.ListHealthMetrics(ctx, "s1", "sleep_hours", 10)
	require.NoError(t, err)
	require.Len(t, sleep, 1)
	assert.Equal(t, 7.0, sleep[0].Value)
}

func TestHealthHandler_NoMetricsNoRows(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	h := NewRegistry(store).For(Health)

	artifacts, err := h.PostProcess(ctx, Turn{SessionID: "s1", UserMessage: "how do I improve my sleep?"})
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestTasksHandler_CreatesReminderTomorrowAt3pm(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	h := NewRegistry(store).For(Tasks)

	artifacts, err := h.PostProcess(ctx, Turn{SessionID: "s1", UserMessage: "remind me to call mom tomorrow at 3pm"})
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "reminder", artifacts[0].Kind)

	reminders, err := store.ListReminders(ctx)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	r := reminders[0]
	assert.Contains(t, r.Title, "call mom")
	assert.Equal(t, model.PriorityNormal, r.Priority)
	assert.False(t, r.Completed)

	tomorrow := time.Now().AddDate(0, 0, 1)
	assert.Equal(t, tomorrow.Day(), r.DueTimestamp.Day())
	assert.Equal(t, 15, r.DueTimestamp.Hour())
	assert.Equal(t, 0, r.DueTimestamp.Minute())
}

func TestTasksHandler_CreatesTaskFromTodo(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	h := NewRegistry(store).For(Tasks)

	_, err := h.PostProcess(ctx, Turn{SessionID: "s1", UserMessage: "todo: renew the car registration"})
	require.NoError(t, err)

	tasks, err := store.ListTasks(ctx, "s1", true)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "renew the car registration", tasks[0].Title)
}

func TestTasksHandler_ContextListsOpenTasks(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	require.NoError(t, store.CreateTask(ctx, model.Task{ID: "t1", SessionID: "s1", Title: "buy milk", CreatedAt: time.Now()}))

	h := NewRegistry(store).For(Tasks)
	out, err := h.Context(ctx, Query{SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, out, "buy milk")
}

func TestRegistry_UnknownDomainFallsBackToGeneral(t *testing.T) {
	reg := NewRegistry(relational.NewMemoryStore())
	h := reg.For("weird")
	out, err := h.Context(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNextOccurrence(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	due := nextOccurrence("remind me to call mom tomorrow at 3pm", now)
	assert.Equal(t, time.Date(2026, 8, 2, 15, 0, 0, 0, time.UTC), due)

	// No explicit time defaults to 15:00; "tomorrow" pushes it a day out.
	due = nextOccurrence("remind me to water the plants tomorrow", now)
	assert.Equal(t, time.Date(2026, 8, 2, 15, 0, 0, 0, time.UTC), due)

	// A today-time already past rolls to the next day.
	due = nextOccurrence("remind me to stretch at 9am", now)
	assert.Equal(t, time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC), due)

	// 12am is midnight, not noon.
	due = nextOccurrence("remind me at 12am to sleep", now)
	assert.Equal(t, 0, due.Hour())
}
