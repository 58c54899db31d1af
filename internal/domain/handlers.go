package domain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// Query carries what a handler needs to produce domain-specific context.
type Query struct {
	SessionID string
	Message   string
}

// Turn carries what a handler needs to post-process an answered turn.
type Turn struct {
	SessionID     string
	UserMessage   string
	AgentResponse string
}

// Artifact is one structured record a handler's PostProcess extracted (a
// reminder, a task, a health metric), surfaced to the caller for logging.
type Artifact struct {
	Kind string
	ID   string
}

// Handler is the pluggable domain-adapter contract: context ahead of the
// LLM call, artifact extraction after it.
type Handler interface {
	Context(ctx context.Context, q Query) (string, error)
	PostProcess(ctx context.Context, t Turn) ([]Artifact, error)
}

// Registry resolves a domain name to its Handler.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry wires the four concrete handlers against a relational store.
func NewRegistry(store relational.Store) *Registry {
	return &Registry{handlers: map[string]Handler{
		Coding:  &codingHandler{},
		Health:  &healthHandler{store: store},
		Tasks:   &tasksHandler{store: store},
		General: &generalHandler{},
	}}
}

// For returns the handler for a domain name, defaulting to General.
func (r *Registry) For(domain string) Handler {
	if h, ok := r.handlers[domain]; ok {
		return h
	}
	return r.handlers[General]
}

// codingHandler supplies no extra context or artifacts: sandboxed code
// execution lives behind its own adapter boundary, so this stays thin.
type codingHandler struct{}

func (codingHandler) Context(context.Context, Query) (string, error)    { return "", nil }
func (codingHandler) PostProcess(context.Context, Turn) ([]Artifact, error) { return nil, nil }

// generalHandler supplies no extra context or artifacts.
type generalHandler struct{}

func (generalHandler) Context(context.Context, Query) (string, error)    { return "", nil }
func (generalHandler) PostProcess(context.Context, Turn) ([]Artifact, error) { return nil, nil }

// healthHandler extracts weight/sleep/exercise metrics via regex into
// health_metrics rows.
type healthHandler struct {
	store relational.Store
}

var (
	reWeight   = regexp.MustCompile(`(?i)\b(?:i\s+weigh|weight(?:ed)?(?:\s+is)?)\s*:?\s*(\d{2,3}(?:\.\d+)?)\s*(lbs?|kg|pounds?|kilograms?)?`)
	reSleep    = regexp.MustCompile(`(?i)\bslept?\s*(?:for)?\s*(\d{1,2}(?:\.\d+)?)\s*(?:hours?|hrs?|h)\b`)
	reExercise = regexp.MustCompile(`(?i)\b(?:worked\s*out|exercised|ran|walked)\s*(?:for)?\s*(\d{1,3})\s*(?:minutes?|mins?|m)\b`)
)

func (healthHandler) Context(ctx context.Context, q Query) (string, error) {
	return "", nil
}

func (h healthHandler) PostProcess(ctx context.Context, t Turn) ([]Artifact, error) {
	var artifacts []Artifact
	now := time.Now()
	if m := reWeight.FindStringSubmatch(t.UserMessage); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		unit := m[2]
		if unit == "" {
			unit = "lbs"
		}
		row := model.HealthMetric{ID: uuid.NewString(), SessionID: t.SessionID, Kind: "weight", Value: v, Unit: unit, Timestamp: now}
		if err := h.store.InsertHealthMetric(ctx, row); err != nil {
			return artifacts, fmt.Errorf("health handler: insert weight: %w", err)
		}
		artifacts = append(artifacts, Artifact{Kind: "health_metric:weight", ID: row.ID})
	}
	if m := reSleep.FindStringSubmatch(t.UserMessage); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		row := model.HealthMetric{ID: uuid.NewString(), SessionID: t.SessionID, Kind: "sleep_hours", Value: v, Unit: "hours", Timestamp: now}
		if err := h.store.InsertHealthMetric(ctx, row); err != nil {
			return artifacts, fmt.Errorf("health handler: insert sleep: %w", err)
		}
		artifacts = append(artifacts, Artifact{Kind: "health_metric:sleep_hours", ID: row.ID})
	}
	if m := reExercise.FindStringSubmatch(t.UserMessage); m != nil {
		v, _ := strconv.ParseFloat(m[1], 64)
		row := model.HealthMetric{ID: uuid.NewString(), SessionID: t.SessionID, Kind: "exercise_minutes", Value: v, Unit: "minutes", Timestamp: now}
		if err := h.store.InsertHealthMetric(ctx, row); err != nil {
			return artifacts, fmt.Errorf("health handler: insert exercise: %w", err)
		}
		artifacts = append(artifacts, Artifact{Kind: "health_metric:exercise_minutes", ID: row.ID})
	}
	return artifacts, nil
}

// tasksHandler extracts reminder/todo phrasing via regex and creates
// Reminder/Task rows. Surfaces the session's open tasks as context.
type tasksHandler struct {
	store relational.Store
}

var reRemind = regexp.MustCompile(`(?i)\bremind\s+me\s+to\s+(.+?)(?:\s+(?:tomorrow|tonight|at\s+[\d:apm\s]+|on\s+\w+))*$`)
var reTodo = regexp.MustCompile(`(?i)\b(?:todo|to-do|add\s+a\s+task)\s*:?\s*(.+)`)

func (t tasksHandler) Context(ctx context.Context, q Query) (string, error) {
	open, err := t.store.ListTasks(ctx, q.SessionID, true)
	if err != nil || len(open) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Open tasks:\n")
	for _, task := range open {
		fmt.Fprintf(&b, "- %s\n", task.Title)
	}
	return b.String(), nil
}

func (t tasksHandler) PostProcess(ctx context.Context, turn Turn) ([]Artifact, error) {
	var artifacts []Artifact
	now := time.Now()
	if m := reRemind.FindStringSubmatch(turn.UserMessage); m != nil {
		due := nextOccurrence(turn.UserMessage, now)
		r := model.Reminder{
			ID: uuid.NewString(), Title: strings.TrimSpace(m[1]), DueTimestamp: due,
			Recurrence: model.RecurrenceNone, Priority: model.PriorityNormal,
			CreatedAt: now, SessionID: turn.SessionID,
		}
		if err := t.store.CreateReminder(ctx, r); err != nil {
			return artifacts, fmt.Errorf("tasks handler: create reminder: %w", err)
		}
		artifacts = append(artifacts, Artifact{Kind: "reminder", ID: r.ID})
		return artifacts, nil
	}
	if m := reTodo.FindStringSubmatch(turn.UserMessage); m != nil {
		task := model.Task{ID: uuid.NewString(), SessionID: turn.SessionID, Title: strings.TrimSpace(m[1]), CreatedAt: now}
		if err := t.store.CreateTask(ctx, task); err != nil {
			return artifacts, fmt.Errorf("tasks handler: create task: %w", err)
		}
		artifacts = append(artifacts, Artifact{Kind: "task", ID: task.ID})
	}
	return artifacts, nil
}

var reAtTime = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

// nextOccurrence resolves "tomorrow at 3pm"-style phrasing against now. It
// is deliberately simple: it only understands "tomorrow" plus an optional
// clock time, defaulting to 15:00 local when no time is given. Any other
// day word ("tonight", "on friday") is ignored: without "tomorrow" the time
// lands today, or tomorrow if that moment has already passed.
func nextOccurrence(message string, now time.Time) time.Time {
	hour, minute := 15, 0
	if m := reAtTime.FindStringSubmatch(message); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if strings.EqualFold(m[3], "pm") && hour < 12 {
			hour += 12
		}
		if strings.EqualFold(m[3], "am") && hour == 12 {
			hour = 0
		}
	}
	day := now
	lower := strings.ToLower(message)
	if strings.Contains(lower, "tomorrow") {
		day = now.AddDate(0, 0, 1)
	}
	candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
	if !strings.Contains(lower, "tomorrow") && candidate.Before(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
