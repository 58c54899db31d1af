package relational

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
)

// MemoryStore is an in-process Store used when no Postgres DSN is
// configured: map-backed tables behind the same interface as the Postgres
// implementation.
type MemoryStore struct {
	mu sync.RWMutex

	sessions      map[string]model.Session
	interactions  []model.Interaction
	facts         map[string]model.Fact
	preferences   map[string]model.Preference
	mistakes      map[string]model.Mistake
	healthMetrics []model.HealthMetric
	tasks         map[string]model.Task
	reminders     map[string]model.Reminder
	events        []model.CalendarEvent
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]model.Session),
		facts:       make(map[string]model.Fact),
		preferences: make(map[string]model.Preference),
		mistakes:    make(map[string]model.Mistake),
		tasks:       make(map[string]model.Task),
		reminders:   make(map[string]model.Reminder),
	}
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) CreateSession(ctx context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) EndSession(ctx context.Context, id string, endedAt time.Time, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	s.EndedAt = &endedAt
	s.Summary = summary
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemoryStore) InsertInteraction(ctx context.Context, i model.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	m.interactions = append(m.interactions, i)
	return nil
}

func (m *MemoryStore) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]model.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matched []model.Interaction
	for _, i := range m.interactions {
		if sessionID == "" || i.SessionID == sessionID {
			matched = append(matched, i)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].Timestamp.After(matched[b].Timestamp) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// SearchInteractions is the LIKE-based keyword-search fallback used when
// semantic search returns nothing.
func (m *MemoryStore) SearchInteractions(ctx context.Context, query string, limit int) ([]model.Interaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []model.Interaction
	for i := len(m.interactions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		ia := m.interactions[i]
		if strings.Contains(strings.ToLower(ia.UserMessage), q) || strings.Contains(strings.ToLower(ia.AgentResponse), q) {
			out = append(out, ia)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertFact(ctx context.Context, f model.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		for id, existing := range m.facts {
			if existing.Content == f.Content {
				f.ID = id
				break
			}
		}
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.facts[f.ID] = f
	return nil
}

func (m *MemoryStore) ListFacts(ctx context.Context, sessionID string) ([]model.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Fact
	for _, f := range m.facts {
		if sessionID == "" || f.SessionID == sessionID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertPreference(ctx context.Context, p model.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.preferences {
		if existing.Key == p.Key {
			p.ID = id
			break
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.preferences[p.ID] = p
	return nil
}

func (m *MemoryStore) ListPreferences(ctx context.Context) ([]model.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Preference, 0, len(m.preferences))
	for _, p := range m.preferences {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryStore) InsertMistake(ctx context.Context, mm model.Mistake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm.ID == "" {
		mm.ID = uuid.NewString()
	}
	m.mistakes[mm.ID] = mm
	return nil
}

func (m *MemoryStore) IncrementSimilarCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mm, ok := m.mistakes[id]; ok {
		mm.SimilarCount++
		m.mistakes[id] = mm
	}
	return nil
}

func (m *MemoryStore) ListMistakes(ctx context.Context, limit int) ([]model.Mistake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Mistake, 0, len(m.mistakes))
	for _, mm := range m.mistakes {
		out = append(out, mm)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Timestamp.After(out[b].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertHealthMetric(ctx context.Context, h model.HealthMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	m.healthMetrics = append(m.healthMetrics, h)
	return nil
}

func (m *MemoryStore) ListHealthMetrics(ctx context.Context, sessionID, kind string, limit int) ([]model.HealthMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.HealthMetric
	for i := len(m.healthMetrics) - 1; i >= 0; i-- {
		h := m.healthMetrics[i]
		if sessionID != "" && h.SessionID != sessionID {
			continue
		}
		if kind != "" && h.Kind != kind {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateTask(ctx context.Context, t model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.tasks[t.ID] = t
	return nil
}

func (m *MemoryStore) CompleteTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.Done = true
		m.tasks[id] = t
	}
	return nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, sessionID string, onlyOpen bool) ([]model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Task
	for _, t := range m.tasks {
		if sessionID != "" && t.SessionID != sessionID {
			continue
		}
		if onlyOpen && t.Done {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *MemoryStore) CreateReminder(ctx context.Context, r model.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.reminders[r.ID] = r
	return nil
}

func (m *MemoryStore) CompleteReminder(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok {
		r.Completed = true
		m.reminders[id] = r
	}
	return nil
}

func (m *MemoryStore) SnoozeReminder(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reminders[id]; ok {
		r.SnoozedUntil = &until
		m.reminders[id] = r
	}
	return nil
}

func (m *MemoryStore) ListDueReminders(ctx context.Context, asOf time.Time) ([]model.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Reminder
	for _, r := range m.reminders {
		if r.Completed {
			continue
		}
		if r.SnoozedUntil != nil && r.SnoozedUntil.After(asOf) {
			continue
		}
		if !r.DueTimestamp.After(asOf) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].DueTimestamp.Before(out[b].DueTimestamp) })
	return out, nil
}

func (m *MemoryStore) ListReminders(ctx context.Context) ([]model.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Reminder, 0, len(m.reminders))
	for _, r := range m.reminders {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryStore) CreateCalendarEvent(ctx context.Context, e model.CalendarEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	for _, existing := range m.events {
		if existing.ID == e.ID {
			return nil
		}
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStore) ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.CalendarEvent
	for _, e := range m.events {
		if !e.StartTimestamp.Before(from) && !e.StartTimestamp.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartTimestamp.Before(out[b].StartTimestamp) })
	return out, nil
}
