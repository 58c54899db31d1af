// Package proactive implements the proactive scheduler and its
// sub-managers: a periodic scan for due reminders and
// imminent calendar events, queuing deduplicated notifications for the
// transport layer to deliver.
package proactive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// ReminderManager is the thin query layer the Scheduler polls for due
// reminders.
type ReminderManager struct {
	store relational.Store
}

// NewReminderManager wraps a relational store.
func NewReminderManager(store relational.Store) *ReminderManager {
	return &ReminderManager{store: store}
}

// GetDue returns uncompleted reminders whose due_timestamp <= now and whose
// snoozed_until is zero or <= now.
func (m *ReminderManager) GetDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	all, err := m.store.ListDueReminders(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("reminder manager: list due: %w", err)
	}
	var due []model.Reminder
	for _, r := range all {
		if r.Completed {
			continue
		}
		if r.SnoozedUntil != nil && r.SnoozedUntil.After(now) {
			continue
		}
		due = append(due, r)
	}
	return due, nil
}

// RescheduleRecurring marks a recurring reminder's fired occurrence complete
// and re-creates it under a new id with due_timestamp advanced to the next
// occurrence; non-recurring reminders are marked complete instead.
func (m *ReminderManager) RescheduleRecurring(ctx context.Context, r model.Reminder) error {
	if r.Recurrence == model.RecurrenceNone {
		return m.store.CompleteReminder(ctx, r.ID)
	}
	next := nextDue(r.DueTimestamp, r.Recurrence)
	if err := m.store.CompleteReminder(ctx, r.ID); err != nil {
		return fmt.Errorf("reminder manager: complete prior occurrence: %w", err)
	}
	r.ID = uuid.NewString()
	r.DueTimestamp = next
	r.Completed = false
	r.SnoozedUntil = nil
	return m.store.CreateReminder(ctx, r)
}

func nextDue(from time.Time, rec model.Recurrence) time.Time {
	switch rec {
	case model.RecurrenceDaily:
		return from.AddDate(0, 0, 1)
	case model.RecurrenceWeekly:
		return from.AddDate(0, 0, 7)
	case model.RecurrenceMonthly:
		return from.AddDate(0, 1, 0)
	default:
		return from
	}
}
