package proactive

import (
	"context"
	"fmt"
	"time"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// CalendarManager computes which upcoming calendar events are entering
// their reminder window.
type CalendarManager struct {
	store relational.Store
}

// NewCalendarManager wraps a relational store.
func NewCalendarManager(store relational.Store) *CalendarManager {
	return &CalendarManager{store: store}
}

// GetNeedingReminder returns events where start - reminder_minutes*60 <= now
// < start.
func (m *CalendarManager) GetNeedingReminder(ctx context.Context, now time.Time) ([]model.CalendarEvent, error) {
	// A generous upper bound (24h) keeps the relational scan bounded while
	// covering any plausible reminder_minutes window.
	events, err := m.store.ListUpcomingEvents(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("calendar manager: list upcoming: %w", err)
	}
	var due []model.CalendarEvent
	for _, e := range events {
		windowStart := e.StartTimestamp.Add(-time.Duration(e.ReminderMinutes) * time.Minute)
		if !now.Before(windowStart) && now.Before(e.StartTimestamp) {
			due = append(due, e)
		}
	}
	return due, nil
}
