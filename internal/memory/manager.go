package memory

import (
	"context"

	"github.com/dswagner/psychoportal/internal/observability"
)

const (
	retrieveRelevanceThreshold = 0.35
	retrieveTopK               = 5
)

// ContextHit is one ranked memory returned by RetrieveContext.
type ContextHit struct {
	SessionID     string
	UserMessage   string
	AgentResponse string
	Domain        string
	Timestamp     string
	Relevance     float64
}

// Manager composes the four memory tiers into the single retrieval/write
// surface the Interaction Loop uses.
type Manager struct {
	Short    *ShortTerm
	Long     *LongTerm
	Semantic *Semantic
	Episodic *Episodic
}

// NewManager wires the four tiers together.
func NewManager(short *ShortTerm, long *LongTerm, semantic *Semantic, episodic *Episodic) *Manager {
	return &Manager{Short: short, Long: long, Semantic: semantic, Episodic: episodic}
}

// RetrieveContext runs semantic search at the fixed relevance
// threshold (0.35) and top-k (5); on an empty hit set it falls back to the
// relational keyword search. domain is accepted for future domain-scoped
// filtering but unused in the fallback path today; the LIKE-based search
// has no domain column to filter on.
func (m *Manager) RetrieveContext(ctx context.Context, query, domain string) ([]ContextHit, error) {
	log := observability.LoggerWithTrace(ctx)

	hits, err := m.Semantic.Search(ctx, query, retrieveTopK)
	if err != nil {
		log.Warn().Err(err).Msg("memory_semantic_search_failed")
		hits = nil
	}

	var out []ContextHit
	for _, h := range hits {
		if h.Relevance < retrieveRelevanceThreshold {
			continue
		}
		out = append(out, ContextHit{
			SessionID:     h.Metadata["session_id"],
			UserMessage:   h.Metadata["user_message"],
			AgentResponse: h.Metadata["agent_response"],
			Domain:        h.Metadata["domain"],
			Timestamp:     h.Metadata["timestamp"],
			Relevance:     h.Relevance,
		})
	}
	if len(out) > 0 {
		return out, nil
	}

	interactions, err := m.Long.SearchInteractions(ctx, query, retrieveTopK)
	if err != nil {
		log.Warn().Err(err).Msg("memory_keyword_search_failed")
		return nil, nil
	}
	out = make([]ContextHit, 0, len(interactions))
	for _, i := range interactions {
		out = append(out, ContextHit{
			SessionID:     i.SessionID,
			UserMessage:   i.UserMessage,
			AgentResponse: i.AgentResponse,
			Domain:        i.Domain,
			Timestamp:     i.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Relevance:     0,
		})
	}
	return out, nil
}
