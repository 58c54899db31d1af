package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dswagner/psychoportal/internal/storage/vector"
)

const maxAgentResponseEmbedChars = 500
const maxMetadataFieldChars = 500

// Semantic fronts the vector store's interactions collection: writes the
// concatenation "User: {msg}\nAssistant: {resp[:500]}" with
// metadata {session_id, user_message[:500], agent_response[:500], domain,
// timestamp}.
type Semantic struct {
	vec *vector.Store
}

// NewSemantic wraps vec.
func NewSemantic(vec *vector.Store) *Semantic {
	return &Semantic{vec: vec}
}

// IndexInteraction embeds and stores one completed turn.
func (s *Semantic) IndexInteraction(ctx context.Context, id, sessionID, userMsg, agentResp, domain string, ts time.Time) error {
	text := fmt.Sprintf("User: %s\nAssistant: %s", userMsg, truncate(agentResp, maxAgentResponseEmbedChars))
	metadata := map[string]string{
		"session_id":     sessionID,
		"user_message":   truncate(userMsg, maxMetadataFieldChars),
		"agent_response": truncate(agentResp, maxMetadataFieldChars),
		"domain":         domain,
		"timestamp":      strconv.FormatInt(ts.Unix(), 10),
	}
	return s.vec.Add(ctx, vector.CollectionInteractions, id, text, metadata)
}

// Search returns the top-k interaction hits for query.
func (s *Semantic) Search(ctx context.Context, query string, topK int) ([]vector.Hit, error) {
	return s.vec.Search(ctx, vector.CollectionInteractions, query, topK, nil)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
