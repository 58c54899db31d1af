package proactive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/storage/relational"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	store := relational.NewMemoryStore()
	return NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)
}

func TestScheduler_Tick_NoCheckinWithoutPriorInteraction(t *testing.T) {
	sched := newTestScheduler(t)
	sched.Tick(context.Background(), time.Now())
	assert.Empty(t, sched.Unread())
}

func TestScheduler_Tick_QueuesCheckinAfterIdleThreshold(t *testing.T) {
	sched := newTestScheduler(t)
	start := time.Now()
	sched.NoteInteraction(start)

	sched.Tick(context.Background(), start.Add(time.Hour))
	assert.Empty(t, sched.Unread(), "not idle long enough yet")

	sched.Tick(context.Background(), start.Add(5*time.Hour))
	unread := sched.Unread()
	require.Len(t, unread, 1)
	assert.Equal(t, NotificationCheckin, unread[0].Type)
}

func TestScheduler_Tick_CheckinDedupedWithinSameHour(t *testing.T) {
	sched := newTestScheduler(t)
	start := time.Now()
	sched.NoteInteraction(start)

	now := start.Add(5 * time.Hour).Truncate(time.Hour)
	sched.Tick(context.Background(), now)
	sched.Tick(context.Background(), now.Add(time.Minute))

	require.Len(t, sched.Unread(), 1, "repeated idle ticks within the hour must not flood duplicates")
}

func TestScheduler_MarkRead(t *testing.T) {
	sched := newTestScheduler(t)
	start := time.Now()
	sched.NoteInteraction(start)
	sched.Tick(context.Background(), start.Add(5*time.Hour))

	unread := sched.Unread()
	require.Len(t, unread, 1)
	sched.MarkRead(unread[0].ID)
	assert.Empty(t, sched.Unread())
	assert.Len(t, sched.All(), 1)
}
