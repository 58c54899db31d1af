// Package relational implements the relational store: durable CRUD over
// the nine tables: sessions, interactions, facts, mistakes, preferences,
// health_metrics, tasks, reminders, calendar_events. A pgx-backed
// implementation and an in-memory fallback share one Store interface.
package relational

import (
	"context"
	"time"

	"github.com/dswagner/psychoportal/internal/model"
)

// schemaVersion is recorded in a migration-marker row so a future schema
// change can detect and upgrade an older on-disk database.
const schemaVersion = 1

// Store is the full CRUD surface the memory subsystem, mistake tracker,
// reflection engine, and proactive scheduler share.
type Store interface {
	CreateSession(ctx context.Context, s model.Session) error
	EndSession(ctx context.Context, id string, endedAt time.Time, summary string) error
	GetSession(ctx context.Context, id string) (model.Session, bool, error)

	InsertInteraction(ctx context.Context, i model.Interaction) error
	RecentInteractions(ctx context.Context, sessionID string, limit int) ([]model.Interaction, error)
	SearchInteractions(ctx context.Context, query string, limit int) ([]model.Interaction, error)

	UpsertFact(ctx context.Context, f model.Fact) error
	ListFacts(ctx context.Context, sessionID string) ([]model.Fact, error)

	UpsertPreference(ctx context.Context, p model.Preference) error
	ListPreferences(ctx context.Context) ([]model.Preference, error)

	InsertMistake(ctx context.Context, m model.Mistake) error
	IncrementSimilarCount(ctx context.Context, id string) error
	ListMistakes(ctx context.Context, limit int) ([]model.Mistake, error)

	InsertHealthMetric(ctx context.Context, h model.HealthMetric) error
	ListHealthMetrics(ctx context.Context, sessionID, kind string, limit int) ([]model.HealthMetric, error)

	CreateTask(ctx context.Context, t model.Task) error
	CompleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, sessionID string, onlyOpen bool) ([]model.Task, error)

	CreateReminder(ctx context.Context, r model.Reminder) error
	CompleteReminder(ctx context.Context, id string) error
	SnoozeReminder(ctx context.Context, id string, until time.Time) error
	ListDueReminders(ctx context.Context, asOf time.Time) ([]model.Reminder, error)
	ListReminders(ctx context.Context) ([]model.Reminder, error)

	CreateCalendarEvent(ctx context.Context, e model.CalendarEvent) error
	ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error)

	Close()
}
