// Package memory implements the four-tier Memory Subsystem: the in-process
// Short-Term buffer, a Long-Term facade over the relational store, a
// Semantic facade over the vector store, an append-only Episodic log, and
// the MemoryManager that blends semantic and keyword retrieval into one
// ranked context.
package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/persistence/databases"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// LongTerm fronts the relational store with the CRUD surface the loop and
// domain handlers use: sessions, interactions, facts, preferences, plus the
// keyword-search fallback. When a full-text backend is attached, recorded
// interactions are also indexed there and ranked search runs ahead of the
// relational LIKE scan.
type LongTerm struct {
	store relational.Store
	fts   databases.FullTextSearch
}

// NewLongTerm wraps store with no full-text index; keyword search is the
// relational LIKE scan alone.
func NewLongTerm(store relational.Store) *LongTerm {
	return &LongTerm{store: store}
}

// NewLongTermWithSearch wraps store plus a full-text backend (Postgres
// tsvector or the in-process scan, per databases.NewManager).
func NewLongTermWithSearch(store relational.Store, fts databases.FullTextSearch) *LongTerm {
	return &LongTerm{store: store, fts: fts}
}

func (l *LongTerm) StartSession(ctx context.Context, domain string) (model.Session, error) {
	s := model.Session{ID: uuid.NewString(), StartedAt: time.Now(), Domain: domain}
	if err := l.store.CreateSession(ctx, s); err != nil {
		return model.Session{}, err
	}
	return s, nil
}

func (l *LongTerm) EndSession(ctx context.Context, id, summary string) error {
	return l.store.EndSession(ctx, id, time.Now(), summary)
}

func (l *LongTerm) GetSession(ctx context.Context, id string) (model.Session, bool, error) {
	return l.store.GetSession(ctx, id)
}

// RecordInteraction persists one completed turn as an Interaction row.
func (l *LongTerm) RecordInteraction(ctx context.Context, sessionID, userMsg, agentResp, domain string, tokens int) (model.Interaction, error) {
	i := model.Interaction{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		UserMessage:   userMsg,
		AgentResponse: agentResp,
		Domain:        domain,
		Timestamp:     time.Now(),
		TokensUsed:    tokens,
	}
	if err := l.store.InsertInteraction(ctx, i); err != nil {
		return model.Interaction{}, err
	}
	if l.fts != nil {
		// Best-effort: a failed index write costs a ranked hit later, not
		// the turn, so the error is dropped and the LIKE scan still covers
		// the row.
		_ = l.fts.Index(ctx, i.ID, userMsg+"\n"+agentResp, map[string]string{
			"session_id":     i.SessionID,
			"user_message":   userMsg,
			"agent_response": agentResp,
			"domain":         domain,
			"timestamp":      i.Timestamp.Format(time.RFC3339),
		})
	}
	return i, nil
}

func (l *LongTerm) RecentInteractions(ctx context.Context, sessionID string, limit int) ([]model.Interaction, error) {
	return l.store.RecentInteractions(ctx, sessionID, limit)
}

// SearchInteractions is the keyword fallback: the attached
// full-text index first when one is configured, then the relational
// LIKE-based scan when the index has nothing (or isn't configured).
func (l *LongTerm) SearchInteractions(ctx context.Context, query string, limit int) ([]model.Interaction, error) {
	if l.fts != nil {
		if hits, err := l.fts.Search(ctx, query, limit); err == nil && len(hits) > 0 {
			out := make([]model.Interaction, 0, len(hits))
			for _, h := range hits {
				ts, _ := time.Parse(time.RFC3339, h.Metadata["timestamp"])
				out = append(out, model.Interaction{
					ID:            h.ID,
					SessionID:     h.Metadata["session_id"],
					UserMessage:   h.Metadata["user_message"],
					AgentResponse: h.Metadata["agent_response"],
					Domain:        h.Metadata["domain"],
					Timestamp:     ts,
				})
			}
			return out, nil
		}
	}
	return l.store.SearchInteractions(ctx, query, limit)
}

func (l *LongTerm) UpsertFact(ctx context.Context, sessionID, domain, content string, confidence float64) error {
	return l.store.UpsertFact(ctx, model.Fact{
		ID: uuid.NewString(), SessionID: sessionID, Content: content, Confidence: confidence,
		Domain: domain, CreatedAt: time.Now(),
	})
}

func (l *LongTerm) ListFacts(ctx context.Context, sessionID string) ([]model.Fact, error) {
	return l.store.ListFacts(ctx, sessionID)
}

func (l *LongTerm) UpsertPreference(ctx context.Context, key, value string, confidence float64) error {
	return l.store.UpsertPreference(ctx, model.Preference{
		ID: uuid.NewString(), Key: key, Value: value, Confidence: confidence, CreatedAt: time.Now(),
	})
}

func (l *LongTerm) ListPreferences(ctx context.Context) ([]model.Preference, error) {
	return l.store.ListPreferences(ctx)
}
