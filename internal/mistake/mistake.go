// Package mistake implements the mistake tracker: a
// dual-indexed (relational row + vector embedding) log of corrections, and
// the similarity-search warning surface the Interaction Loop prepends to
// the system prompt.
package mistake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/storage/relational"
	"github.com/dswagner/psychoportal/internal/storage/vector"
)

const warningRelevanceThreshold = 0.55

// Warning is one formatted hit returned by GetWarningsForPrompt.
type Warning struct {
	MistakeID    string
	UserInput    string
	Correction   string
	ErrorPattern string
	Relevance    float64
	SimilarCount int
}

// Tracker wraps the relational store and the mistake vector collection.
type Tracker struct {
	store relational.Store
	vec   *vector.Store
}

// New constructs a Tracker.
func New(store relational.Store, vec *vector.Store) *Tracker {
	return &Tracker{store: store, vec: vec}
}

// Record inserts a new mistake row and indexes its user_input in the
// mistake vector collection, keyed by the row's id.
func (t *Tracker) Record(ctx context.Context, sessionID, userInput, agentResponse, correction, domain, errorPattern string) (string, error) {
	id := uuid.NewString()
	m := model.Mistake{
		ID: id, SessionID: sessionID, UserInput: userInput, AgentResponse: agentResponse,
		Correction: correction, Domain: domain, ErrorPattern: errorPattern, Timestamp: time.Now(),
	}
	if err := t.store.InsertMistake(ctx, m); err != nil {
		return "", fmt.Errorf("mistake: insert: %w", err)
	}
	if err := t.vec.Add(ctx, vector.CollectionMistakes, id, userInput, map[string]string{
		"domain": domain, "error_pattern": errorPattern,
	}); err != nil {
		return id, fmt.Errorf("mistake: index: %w", err)
	}
	return id, nil
}

// GetWarningsForPrompt runs a vector similarity search over past mistakes
// and returns those with relevance >= 0.55, incrementing each returned
// row's similar_count as it goes. Results are capped at k (default 3).
func (t *Tracker) GetWarningsForPrompt(ctx context.Context, query string, k int) ([]Warning, error) {
	if k <= 0 {
		k = 3
	}
	hits, err := t.vec.Search(ctx, vector.CollectionMistakes, query, k, nil)
	if err != nil {
		return nil, fmt.Errorf("mistake: search: %w", err)
	}

	mistakes, err := t.store.ListMistakes(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("mistake: list: %w", err)
	}
	byID := make(map[string]model.Mistake, len(mistakes))
	for _, m := range mistakes {
		byID[m.ID] = m
	}

	var out []Warning
	for _, h := range hits {
		if h.Relevance < warningRelevanceThreshold {
			continue
		}
		m, ok := byID[h.ID]
		if !ok {
			continue
		}
		_ = t.store.IncrementSimilarCount(ctx, h.ID)
		out = append(out, Warning{
			MistakeID: h.ID, UserInput: m.UserInput, Correction: m.Correction,
			ErrorPattern: m.ErrorPattern, Relevance: h.Relevance, SimilarCount: m.SimilarCount + 1,
		})
	}
	return out, nil
}

// FormatWarningsBlock renders warnings as the labeled prompt block the
// loop prepends to the system prompt, or "" if there are none.
func FormatWarningsBlock(warnings []Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Past mistakes to avoid repeating:\n")
	for _, w := range warnings {
		b.WriteString(fmt.Sprintf("- Previously got \"%s\" wrong; corrected to: %s\n", w.UserInput, w.Correction))
	}
	return b.String()
}
