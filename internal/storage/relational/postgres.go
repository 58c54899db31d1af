package relational

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dswagner/psychoportal/internal/model"
)

// PostgresStore is the durable Store backend: best-effort CREATE TABLE IF
// NOT EXISTS in the
// constructor, INSERT ... ON CONFLICT DO UPDATE for upsert-shaped writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore bootstraps the schema (best effort; ignores errors from a
// non-superuser role lacking CREATE privileges on an already-provisioned
// database) and returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	ctx := context.Background()
	for _, stmt := range bootstrapStatements {
		_, _ = pool.Exec(ctx, stmt)
	}
	_, _ = pool.Exec(ctx, `INSERT INTO schema_meta (version) SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM schema_meta)`, schemaVersion)
	return &PostgresStore{pool: pool}
}

var bootstrapStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (version INT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		message_count INT NOT NULL DEFAULT 0,
		domain TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		agent_response TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL,
		tokens_used INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS interactions_session_idx ON interactions (session_id, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		domain TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS preferences (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		value TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS mistakes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		user_input TEXT NOT NULL DEFAULT '',
		agent_response TEXT NOT NULL DEFAULT '',
		correction TEXT NOT NULL DEFAULT '',
		domain TEXT NOT NULL DEFAULT '',
		error_pattern TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		similar_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS health_metrics (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		done BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		due_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS reminders (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		due_timestamp TIMESTAMPTZ NOT NULL,
		recurrence TEXT NOT NULL DEFAULT 'none',
		priority TEXT NOT NULL DEFAULT 'normal',
		completed BOOLEAN NOT NULL DEFAULT false,
		snoozed_until TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		session_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		start_timestamp TIMESTAMPTZ NOT NULL,
		end_timestamp TIMESTAMPTZ NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT 'none',
		all_day BOOLEAN NOT NULL DEFAULT false,
		reminder_minutes INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

func (p *PostgresStore) CreateSession(ctx context.Context, s model.Session) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO sessions(id, started_at, ended_at, message_count, domain, summary)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET message_count=EXCLUDED.message_count, domain=EXCLUDED.domain
`, s.ID, s.StartedAt, s.EndedAt, s.MessageCount, s.Domain, s.Summary)
	return err
}

func (p *PostgresStore) EndSession(ctx context.Context, id string, endedAt time.Time, summary string) error {
	_, err := p.pool.Exec(ctx, `UPDATE sessions SET ended_at=$2, summary=$3 WHERE id=$1`, id, endedAt, summary)
	return err
}

func (p *PostgresStore) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	var s model.Session
	err := p.pool.QueryRow(ctx, `
SELECT id, started_at, ended_at, message_count, domain, summary FROM sessions WHERE id=$1
`, id).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.MessageCount, &s.Domain, &s.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, err
	}
	return s, true, nil
}

func (p *PostgresStore) InsertInteraction(ctx context.Context, i model.Interaction) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO interactions(id, session_id, user_message, agent_response, domain, timestamp, tokens_used)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO NOTHING
`, i.ID, i.SessionID, i.UserMessage, i.AgentResponse, i.Domain, i.Timestamp, i.TokensUsed)
	return err
}

func (p *PostgresStore) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]model.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, user_message, agent_response, domain, timestamp, tokens_used
FROM interactions
WHERE ($1 = '' OR session_id = $1)
ORDER BY timestamp DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// SearchInteractions is the LIKE-based keyword fallback used when semantic
// search comes up empty.
func (p *PostgresStore) SearchInteractions(ctx context.Context, query string, limit int) ([]model.Interaction, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	like := "%" + q + "%"
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, user_message, agent_response, domain, timestamp, tokens_used
FROM interactions
WHERE user_message ILIKE $1 OR agent_response ILIKE $1
ORDER BY timestamp DESC
LIMIT $2
`, like, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInteractions(rows)
}

func scanInteractions(rows pgx.Rows) ([]model.Interaction, error) {
	out := make([]model.Interaction, 0)
	for rows.Next() {
		var i model.Interaction
		if err := rows.Scan(&i.ID, &i.SessionID, &i.UserMessage, &i.AgentResponse, &i.Domain, &i.Timestamp, &i.TokensUsed); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertFact(ctx context.Context, f model.Fact) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO facts(id, session_id, content, confidence, domain, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET content=EXCLUDED.content, confidence=EXCLUDED.confidence
`, f.ID, f.SessionID, f.Content, f.Confidence, f.Domain, f.CreatedAt)
	return err
}

func (p *PostgresStore) ListFacts(ctx context.Context, sessionID string) ([]model.Fact, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, content, confidence, domain, created_at FROM facts
WHERE ($1 = '' OR session_id = $1)
ORDER BY created_at DESC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Fact, 0)
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Content, &f.Confidence, &f.Domain, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpsertPreference(ctx context.Context, pr model.Preference) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO preferences(id, key, value, confidence, created_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, confidence=EXCLUDED.confidence
`, pr.ID, pr.Key, pr.Value, pr.Confidence, pr.CreatedAt)
	return err
}

func (p *PostgresStore) ListPreferences(ctx context.Context) ([]model.Preference, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, key, value, confidence, created_at FROM preferences ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Preference, 0)
	for rows.Next() {
		var pr model.Preference
		if err := rows.Scan(&pr.ID, &pr.Key, &pr.Value, &pr.Confidence, &pr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) InsertMistake(ctx context.Context, m model.Mistake) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO mistakes(id, session_id, user_input, agent_response, correction, domain, error_pattern, timestamp, similar_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING
`, m.ID, m.SessionID, m.UserInput, m.AgentResponse, m.Correction, m.Domain, m.ErrorPattern, m.Timestamp, m.SimilarCount)
	return err
}

func (p *PostgresStore) IncrementSimilarCount(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `UPDATE mistakes SET similar_count = similar_count + 1 WHERE id=$1`, id)
	return err
}

func (p *PostgresStore) ListMistakes(ctx context.Context, limit int) ([]model.Mistake, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, user_input, agent_response, correction, domain, error_pattern, timestamp, similar_count
FROM mistakes ORDER BY timestamp DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Mistake, 0)
	for rows.Next() {
		var m model.Mistake
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserInput, &m.AgentResponse, &m.Correction, &m.Domain, &m.ErrorPattern, &m.Timestamp, &m.SimilarCount); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) InsertHealthMetric(ctx context.Context, h model.HealthMetric) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO health_metrics(id, session_id, kind, value, unit, timestamp)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, h.ID, h.SessionID, h.Kind, h.Value, h.Unit, h.Timestamp)
	return err
}

func (p *PostgresStore) ListHealthMetrics(ctx context.Context, sessionID, kind string, limit int) ([]model.HealthMetric, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, kind, value, unit, timestamp FROM health_metrics
WHERE ($1 = '' OR session_id = $1) AND ($2 = '' OR kind = $2)
ORDER BY timestamp DESC LIMIT $3
`, sessionID, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.HealthMetric, 0)
	for rows.Next() {
		var h model.HealthMetric
		if err := rows.Scan(&h.ID, &h.SessionID, &h.Kind, &h.Value, &h.Unit, &h.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateTask(ctx context.Context, t model.Task) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO tasks(id, session_id, title, done, created_at, due_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING
`, t.ID, t.SessionID, t.Title, t.Done, t.CreatedAt, t.DueAt)
	return err
}

func (p *PostgresStore) CompleteTask(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `UPDATE tasks SET done=true WHERE id=$1`, id)
	return err
}

func (p *PostgresStore) ListTasks(ctx context.Context, sessionID string, onlyOpen bool) ([]model.Task, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, session_id, title, done, created_at, due_at FROM tasks
WHERE ($1 = '' OR session_id = $1) AND (NOT $2 OR NOT done)
ORDER BY created_at DESC
`, sessionID, onlyOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Task, 0)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Title, &t.Done, &t.CreatedAt, &t.DueAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateReminder(ctx context.Context, r model.Reminder) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO reminders(id, title, notes, due_timestamp, recurrence, priority, completed, snoozed_until, created_at, session_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, r.ID, r.Title, r.Notes, r.DueTimestamp, r.Recurrence, r.Priority, r.Completed, r.SnoozedUntil, r.CreatedAt, r.SessionID)
	return err
}

func (p *PostgresStore) CompleteReminder(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `UPDATE reminders SET completed=true WHERE id=$1`, id)
	return err
}

func (p *PostgresStore) SnoozeReminder(ctx context.Context, id string, until time.Time) error {
	_, err := p.pool.Exec(ctx, `UPDATE reminders SET snoozed_until=$2 WHERE id=$1`, id, until)
	return err
}

func (p *PostgresStore) ListDueReminders(ctx context.Context, asOf time.Time) ([]model.Reminder, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, title, notes, due_timestamp, recurrence, priority, completed, snoozed_until, created_at, session_id
FROM reminders
WHERE NOT completed AND due_timestamp <= $1 AND (snoozed_until IS NULL OR snoozed_until <= $1)
ORDER BY due_timestamp
`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (p *PostgresStore) ListReminders(ctx context.Context) ([]model.Reminder, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, title, notes, due_timestamp, recurrence, priority, completed, snoozed_until, created_at, session_id
FROM reminders ORDER BY due_timestamp
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows pgx.Rows) ([]model.Reminder, error) {
	out := make([]model.Reminder, 0)
	for rows.Next() {
		var r model.Reminder
		if err := rows.Scan(&r.ID, &r.Title, &r.Notes, &r.DueTimestamp, &r.Recurrence, &r.Priority, &r.Completed, &r.SnoozedUntil, &r.CreatedAt, &r.SessionID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateCalendarEvent(ctx context.Context, e model.CalendarEvent) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO calendar_events(id, title, start_timestamp, end_timestamp, location, notes, recurrence, all_day, reminder_minutes, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, e.ID, e.Title, e.StartTimestamp, e.EndTimestamp, e.Location, e.Notes, e.Recurrence, e.AllDay, e.ReminderMinutes, e.CreatedAt)
	return err
}

func (p *PostgresStore) ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, title, start_timestamp, end_timestamp, location, notes, recurrence, all_day, reminder_minutes, created_at
FROM calendar_events
WHERE start_timestamp >= $1 AND start_timestamp <= $2
ORDER BY start_timestamp
`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.CalendarEvent, 0)
	for rows.Next() {
		var e model.CalendarEvent
		if err := rows.Scan(&e.ID, &e.Title, &e.StartTimestamp, &e.EndTimestamp, &e.Location, &e.Notes, &e.Recurrence, &e.AllDay, &e.ReminderMinutes, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
