// Package domain implements the domain router and domain handlers:
// keyword-first, LLM-fallback classification of each user message into one
// of four domains, plus the pluggable handler contract the loop calls for
// per-domain context and post-processing.
package domain

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

// The four domains the original's router classifies into.
const (
	Coding  = "coding"
	Health  = "health"
	Tasks   = "tasks"
	General = "general"
)

// keywordMap drives the first-pass classification: each domain's score is
// the count of its keywords found in
// the lowercased message; the best-scoring domain wins at score >= 1.
var keywordMap = map[string][]string{
	Coding: {
		"code", "function", "bug", "error", "compile", "debug", "python", "golang",
		"rust", "javascript", "typescript", "repo", "git", "commit", "pull request",
		"class", "variable", "syntax", "stack trace", "exception", "refactor",
		"api", "endpoint", "database", "sql", "script", "library", "package",
	},
	Health: {
		"weight", "sleep", "exercise", "workout", "calorie", "diet", "run", "steps",
		"heart rate", "blood pressure", "medication", "symptom", "doctor", "pain",
		"stretch", "gym", "protein", "hydration", "mental health", "anxiety",
	},
	Tasks: {
		"remind", "reminder", "todo", "to-do", "task", "schedule", "appointment",
		"deadline", "calendar", "meeting", "due", "tomorrow", "next week",
		"don't forget", "need to", "follow up",
	},
}

// Cache backs the classify-by-message-prefix lookup. The default is an
// in-process map; NewRedisCache
// swaps in a shared Redis-backed implementation so the classify cache
// survives process restarts and is shared across multiple loop instances.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, domain string)
}

// memCache is the default in-process Cache.
type memCache struct {
	mu    sync.RWMutex
	cache map[string]string
}

func newMemCache() *memCache {
	return &memCache{cache: make(map[string]string)}
}

func (c *memCache) Get(_ context.Context, prefix string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.cache[prefix]
	return d, ok
}

func (c *memCache) Set(_ context.Context, prefix, domain string) {
	c.mu.Lock()
	c.cache[prefix] = domain
	c.mu.Unlock()
}

// classifyCache deduplicates identical in-flight LLM classify calls for the
// same message prefix, on top of whichever Cache backs the result itself.
type classifyCache struct {
	backend Cache
	group   singleflight.Group
}

func newClassifyCache(backend Cache) *classifyCache {
	if backend == nil {
		backend = newMemCache()
	}
	return &classifyCache{backend: backend}
}

func (c *classifyCache) get(ctx context.Context, prefix string) (string, bool) {
	return c.backend.Get(ctx, prefix)
}

func (c *classifyCache) set(ctx context.Context, prefix, domain string) {
	c.backend.Set(ctx, prefix, domain)
}

const prefixLen = 40
const llmFallbackMinLen = 15

// Router classifies each user message into a domain.
type Router struct {
	provider llm.Provider
	cache    *classifyCache
}

// NewRouter constructs a Router with an in-process classify cache. provider
// may be nil, in which case the LLM fallback step is skipped and
// ambiguous/short messages default to General.
func NewRouter(provider llm.Provider) *Router {
	return &Router{provider: provider, cache: newClassifyCache(nil)}
}

// NewRouterWithCache constructs a Router backed by a caller-supplied Cache
// (e.g. NewRedisCache), for deployments sharing the classify cache across
// process restarts or multiple loop instances.
func NewRouterWithCache(provider llm.Provider, cache Cache) *Router {
	return &Router{provider: provider, cache: newClassifyCache(cache)}
}

// Classify runs keyword match first; for a General
// result on messages longer than 15 characters, a cheap cached LLM call
// breaks the tie.
func (r *Router) Classify(ctx context.Context, message string) string {
	lower := strings.ToLower(message)
	best, bestScore := General, 0
	for d, words := range keywordMap {
		score := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if bestScore >= 1 {
		return best
	}
	if r.provider == nil || len(message) <= llmFallbackMinLen {
		return General
	}
	return r.classifyLLM(ctx, message)
}

func (r *Router) classifyLLM(ctx context.Context, message string) string {
	key := message
	if len(key) > prefixLen {
		key = key[:prefixLen]
	}
	if d, ok := r.cache.get(ctx, key); ok {
		return d
	}
	log := observability.LoggerWithTrace(ctx)
	v, err, _ := r.cache.group.Do(key, func() (any, error) {
		sys := "Classify the user's message into exactly one word: coding, health, tasks, or general. Reply with only that word."
		res, err := r.provider.Complete(ctx, []llm.Message{{Role: "user", Content: message}}, sys, 8, 0)
		if err != nil {
			return General, err
		}
		d := normalizeDomain(res.Content)
		r.cache.set(ctx, key, d)
		return d, nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("domain_llm_classify_failed")
		return General
	}
	return v.(string)
}

func normalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, Coding):
		return Coding
	case strings.Contains(s, Health):
		return Health
	case strings.Contains(s, Tasks):
		return Tasks
	default:
		return General
	}
}
