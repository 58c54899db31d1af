// Package vector implements the embedding-indexed store: named collections
// (interactions, facts, graph_nodes, mistakes), add/search/delete/count/
// get_stats, relevance = 1 − distance/2 under cosine space. It is a thin,
// collection-aware layer over the generic databases.VectorStore backend
// (in-memory, Qdrant, or pgvector).
package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/persistence/databases"
)

// The four named vector collections.
const (
	CollectionInteractions = "interactions"
	CollectionFacts        = "facts"
	CollectionGraphNodes   = "graph_nodes"
	CollectionMistakes     = "mistakes"
)

// EmbedFunc embeds a single piece of text into a vector. In production this
// is llm.Provider.Embed; tests inject a deterministic stub.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Hit is a single vector-search result.
type Hit struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Distance  float64
	Relevance float64
}

// Store fronts one databases.VectorStore backend per collection.
type Store struct {
	cfg     config.StorageConfig
	embedFn EmbedFunc

	mu       sync.RWMutex
	backends map[string]databases.VectorStore
	texts    map[string]map[string]string // collection -> id -> text (for Hit.Text and Count)
}

// New constructs a Store. Backends are created lazily per collection on
// first use so an otherwise-idle collection never opens a connection.
func New(cfg config.StorageConfig, embedFn EmbedFunc) *Store {
	return &Store{
		cfg:      cfg,
		embedFn:  embedFn,
		backends: make(map[string]databases.VectorStore),
		texts:    make(map[string]map[string]string),
	}
}

func (s *Store) backend(collection string) (databases.VectorStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.backends[collection]; ok {
		return b, nil
	}
	var b databases.VectorStore
	switch s.cfg.VectorBackend {
	case "", "memory":
		b = databases.NewMemoryVector()
	case "qdrant":
		v, err := databases.NewQdrantVector(s.cfg.VectorDSN, collection, s.cfg.VectorDimensions, s.cfg.VectorMetric)
		if err != nil {
			return nil, fmt.Errorf("qdrant collection %q: %w", collection, err)
		}
		b = v
	case "postgres", "pgvector":
		pool, err := databases.OpenPool(context.Background(), s.cfg.VectorDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres vector pool: %w", err)
		}
		b = databases.NewPostgresVector(pool, s.cfg.VectorDimensions, s.cfg.VectorMetric)
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", s.cfg.VectorBackend)
	}
	s.backends[collection] = b
	s.texts[collection] = make(map[string]string)
	return b, nil
}

// Add embeds text and upserts it into collection under id with metadata.
// Idempotent on id.
func (s *Store) Add(ctx context.Context, collection, id, text string, metadata map[string]string) error {
	b, err := s.backend(collection)
	if err != nil {
		return err
	}
	vec, err := s.embedFn(ctx, text)
	if err != nil {
		return fmt.Errorf("embed text for %s/%s: %w", collection, id, err)
	}
	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["collection"] = collection
	if s.cfg.VectorBackend == "postgres" || s.cfg.VectorBackend == "pgvector" {
		// A single pgvector table backs every collection; filter on it explicitly.
	}
	if err := b.Upsert(ctx, id, vec, md); err != nil {
		return err
	}
	s.mu.Lock()
	if s.texts[collection] == nil {
		s.texts[collection] = make(map[string]string)
	}
	s.texts[collection][id] = text
	s.mu.Unlock()
	return nil
}

// Search embeds query and returns the top_k nearest hits in collection,
// optionally constrained by a metadata filter. Relevance = 1 − distance/2.
func (s *Store) Search(ctx context.Context, collection, query string, topK int, where map[string]string) ([]Hit, error) {
	b, err := s.backend(collection)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedFn(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query for %s: %w", collection, err)
	}
	filter := make(map[string]string, len(where)+1)
	for k, v := range where {
		filter[k] = v
	}
	if s.cfg.VectorBackend == "postgres" || s.cfg.VectorBackend == "pgvector" {
		filter["collection"] = collection
	}
	results, err := b.SimilaritySearch(ctx, vec, topK, filter)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	texts := s.texts[collection]
	s.mu.RUnlock()

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		// r.Score is cosine similarity in [-1, 1]; distance = 1 - similarity,
		// relevance = 1 - distance/2 = (1 + similarity) / 2.
		distance := 1 - r.Score
		relevance := (1 + r.Score) / 2
		if relevance < 0 {
			relevance = 0
		}
		if relevance > 1 {
			relevance = 1
		}
		hits = append(hits, Hit{
			ID:        r.ID,
			Text:      texts[r.ID],
			Metadata:  r.Metadata,
			Distance:  distance,
			Relevance: relevance,
		})
	}
	return hits, nil
}

// Delete removes id from collection.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	b, err := s.backend(collection)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.texts[collection], id)
	s.mu.Unlock()
	return b.Delete(ctx, id)
}

// Count returns the number of ids Add has been called with for collection
// (best-effort local bookkeeping; the generic VectorStore backend doesn't
// expose a count primitive).
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts[collection])
}

// GetStats returns a small debug-surface summary.
func (s *Store) GetStats(collection string) map[string]any {
	return map[string]any{
		"collection": collection,
		"count":      s.Count(collection),
		"backend":    s.cfg.VectorBackend,
	}
}

// LoggedEmbed wraps an EmbedFunc with a failure log, used when the loop
// treats embedding failures as empty retrieval.
func LoggedEmbed(ctx context.Context, fn EmbedFunc, text string) []float32 {
	vec, err := fn(ctx, text)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("vector_embed_failed")
		return nil
	}
	return vec
}
