package proactive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

func TestScheduler_DueReminderNotifiesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	sched := NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)

	now := time.Now()
	require.NoError(t, store.CreateReminder(ctx, model.Reminder{
		ID: "r1", Title: "call mom", DueTimestamp: now.Add(-time.Minute),
		Recurrence: model.RecurrenceNone, Priority: model.PriorityNormal, CreatedAt: now,
	}))

	sched.Tick(ctx, now)
	unread := sched.Unread()
	require.Len(t, unread, 1)
	assert.Equal(t, NotificationReminder, unread[0].Type)
	assert.Equal(t, "reminder:r1", unread[0].ID)
	assert.Equal(t, "call mom", unread[0].Title)

	// Repeated ticks yield no duplicates: the reminder is now completed and
	// its id is in the seen set.
	sched.Tick(ctx, now.Add(time.Minute))
	sched.Tick(ctx, now.Add(2*time.Minute))
	assert.Len(t, sched.Unread(), 1)
}

func TestScheduler_FutureReminderNotDue(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	sched := NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)

	now := time.Now()
	require.NoError(t, store.CreateReminder(ctx, model.Reminder{
		ID: "r1", Title: "later", DueTimestamp: now.Add(time.Hour),
		Recurrence: model.RecurrenceNone, CreatedAt: now,
	}))

	sched.Tick(ctx, now)
	assert.Empty(t, sched.Unread())

	// Advancing the clock past the due moment fires it.
	sched.Tick(ctx, now.Add(2*time.Hour))
	assert.Len(t, sched.Unread(), 1)
}

func TestScheduler_SnoozedReminderSuppressedUntilSnoozeExpires(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	sched := NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)

	now := time.Now()
	snoozed := now.Add(30 * time.Minute)
	require.NoError(t, store.CreateReminder(ctx, model.Reminder{
		ID: "r1", Title: "snoozed", DueTimestamp: now.Add(-time.Minute),
		Recurrence: model.RecurrenceNone, SnoozedUntil: &snoozed, CreatedAt: now,
	}))

	sched.Tick(ctx, now)
	assert.Empty(t, sched.Unread())

	sched.Tick(ctx, now.Add(time.Hour))
	assert.Len(t, sched.Unread(), 1)
}

func TestReminderManager_RecurringReschedulesNextOccurrence(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	m := NewReminderManager(store)

	due := time.Now().Add(-time.Minute)
	r := model.Reminder{
		ID: "r1", Title: "standup", DueTimestamp: due,
		Recurrence: model.RecurrenceDaily, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateReminder(ctx, r))
	require.NoError(t, m.RescheduleRecurring(ctx, r))

	reminders, err := store.ListReminders(ctx)
	require.NoError(t, err)

	var open []model.Reminder
	for _, got := range reminders {
		if !got.Completed {
			open = append(open, got)
		}
	}
	require.Len(t, open, 1)
	assert.Equal(t, due.AddDate(0, 0, 1), open[0].DueTimestamp)
	assert.Nil(t, open[0].SnoozedUntil)
}

func TestReminderManager_NonRecurringCompletedAfterFiring(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	m := NewReminderManager(store)

	r := model.Reminder{ID: "r1", Title: "once", DueTimestamp: time.Now().Add(-time.Minute), Recurrence: model.RecurrenceNone}
	require.NoError(t, store.CreateReminder(ctx, r))
	require.NoError(t, m.RescheduleRecurring(ctx, r))

	due, err := m.GetDue(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestScheduler_CalendarPreEventWindow(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	sched := NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)

	now := time.Now()
	require.NoError(t, store.CreateCalendarEvent(ctx, model.CalendarEvent{
		ID: "e1", Title: "dentist", StartTimestamp: now.Add(10 * time.Minute),
		EndTimestamp: now.Add(40 * time.Minute), ReminderMinutes: 15, CreatedAt: now,
	}))

	// Inside the window: start - 15m <= now < start.
	sched.Tick(ctx, now)
	unread := sched.Unread()
	require.Len(t, unread, 1)
	assert.Equal(t, NotificationEvent, unread[0].Type)
	assert.Equal(t, "event:e1", unread[0].ID)

	// Deduplicated on subsequent ticks.
	sched.Tick(ctx, now.Add(time.Minute))
	assert.Len(t, sched.Unread(), 1)
}

func TestCalendarManager_OutsideWindowNotReturned(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	m := NewCalendarManager(store)

	now := time.Now()
	require.NoError(t, store.CreateCalendarEvent(ctx, model.CalendarEvent{
		ID: "e1", Title: "far off", StartTimestamp: now.Add(2 * time.Hour),
		EndTimestamp: now.Add(3 * time.Hour), ReminderMinutes: 15, CreatedAt: now,
	}))
	require.NoError(t, store.CreateCalendarEvent(ctx, model.CalendarEvent{
		ID: "e2", Title: "already started", StartTimestamp: now.Add(-time.Minute),
		EndTimestamp: now.Add(time.Hour), ReminderMinutes: 15, CreatedAt: now,
	}))

	due, err := m.GetNeedingReminder(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestScheduler_CallbackFiresOnNewNotification(t *testing.T) {
	ctx := context.Background()
	store := relational.NewMemoryStore()
	sched := NewScheduler(NewReminderManager(store), NewCalendarManager(store), time.Hour)

	var pushed []Notification
	sched.OnNotify(func(n Notification) { pushed = append(pushed, n) })

	now := time.Now()
	require.NoError(t, store.CreateReminder(ctx, model.Reminder{
		ID: "r1", Title: "push me", DueTimestamp: now.Add(-time.Minute),
		Recurrence: model.RecurrenceNone, CreatedAt: now,
	}))
	sched.Tick(ctx, now)

	require.Len(t, pushed, 1)
	assert.Equal(t, "reminder:r1", pushed[0].ID)
}
