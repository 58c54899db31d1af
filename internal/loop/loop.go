// Package loop implements the interaction loop: the per-turn
// pipeline that ties together domain classification, signal detection,
// parallel memory/mistake retrieval, graph context, prompt assembly, the
// LLM call, domain post-processing, memory writes, and the background
// knowledge-extraction spawn.
package loop

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/domain"
	"github.com/dswagner/psychoportal/internal/evolve"
	"github.com/dswagner/psychoportal/internal/extract"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/memory"
	"github.com/dswagner/psychoportal/internal/mistake"
	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/personality"
	"github.com/dswagner/psychoportal/internal/reflection"
	"github.com/dswagner/psychoportal/internal/signal"
	"github.com/dswagner/psychoportal/internal/tools/websearch"
)

const (
	graphContextK   = 6
	signalContextK  = 4
	extractQueueCap = 64

	defaultAgentName = "PsychoPortal"
)

// extractionTask is one fire-and-forget unit of extraction+evolve work.
type extractionTask struct {
	domain   string
	sourceID string
	text     string
}

// Loop orchestrates the full per-turn pipeline. One Loop instance backs a
// single local user's session stream; turns execute strictly in submission
// order.
type Loop struct {
	cfg config.Config

	Provider    llm.Provider
	Memory      *memory.Manager
	Graph       *graph.Graph
	Evolver     *evolve.Evolver
	Router      *domain.Router
	Handlers    *domain.Registry
	Mistakes    *mistake.Tracker
	Personality *personality.Store
	Search      *websearch.Searcher
	Reflection  *reflection.Engine

	sessionMu sync.Mutex
	sessionID string

	nameMu    sync.RWMutex
	agentName string

	extractQueue chan extractionTask
	extractWG    sync.WaitGroup
	extractStop  context.CancelFunc
}

// New constructs a Loop and starts its single background extraction
// worker, the single-writer actor that serializes Graph mutations
// from concurrently-launched background tasks.
func New(cfg config.Config, provider llm.Provider, mem *memory.Manager, g *graph.Graph, evo *evolve.Evolver, router *domain.Router, handlers *domain.Registry, mistakes *mistake.Tracker, pers *personality.Store, search *websearch.Searcher, refl *reflection.Engine) *Loop {
	l := &Loop{
		cfg: cfg, Provider: provider, Memory: mem, Graph: g, Evolver: evo,
		Router: router, Handlers: handlers, Mistakes: mistakes, Personality: pers,
		Search: search, Reflection: refl,
		agentName:    defaultAgentName,
		extractQueue: make(chan extractionTask, extractQueueCap),
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.extractStop = cancel
	l.extractWG.Add(1)
	go l.extractWorker(ctx)
	return l
}

// Close stops the background extraction worker and waits for it to exit.
// Tasks still waiting in the queue are discarded, not run.
func (l *Loop) Close() {
	l.extractStop()
	l.extractWG.Wait()
}

func (l *Loop) extractWorker(ctx context.Context) {
	defer l.extractWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.extractQueue:
			l.runExtraction(ctx, task)
		}
	}
}

// spawnExtraction enqueues a non-critical background task, dropping the
// oldest queued task on overflow.
func (l *Loop) spawnExtraction(ctx context.Context, task extractionTask) {
	select {
	case l.extractQueue <- task:
		return
	default:
	}
	select {
	case dropped := <-l.extractQueue:
		observability.Metrics().ExtractionDropped.Add(ctx, 1)
		observability.LoggerWithTrace(ctx).Debug().Str("dropped_source_id", dropped.sourceID).Msg("extraction_queue_overflow_dropped")
	default:
	}
	select {
	case l.extractQueue <- task:
	default:
	}
}

func (l *Loop) runExtraction(ctx context.Context, task extractionTask) {
	log := observability.LoggerWithTrace(ctx)
	if l.Provider == nil {
		return
	}
	res := extract.Extract(ctx, l.Provider, task.text, task.sourceID, task.domain)
	if res.Empty() {
		return
	}
	if _, err := l.Evolver.Integrate(ctx, task.domain, task.sourceID, res); err != nil {
		log.Warn().Err(err).Str("source_id", task.sourceID).Msg("background_integrate_failed")
	}
}

// IngestText enqueues text content for background extraction, the
// Interaction Loop entry point the HTTP API's multipart ingestion endpoint
// drives; uploads are ingested asynchronously. dom defaults
// to General when the caller has no better classification for the
// uploaded content.
func (l *Loop) IngestText(ctx context.Context, sourceID, dom, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if dom == "" {
		dom = domain.General
	}
	l.spawnExtraction(ctx, extractionTask{domain: dom, sourceID: sourceID, text: text})
}

// IngestImage captions an uploaded image through the provider's vision
// path, then feeds the caption into the same background extraction queue
// IngestText uses, so image uploads enrich the graph the same way text
// documents do.
func (l *Loop) IngestImage(ctx context.Context, sourceID string, imageBytes []byte, mediaType string) error {
	if l.Provider == nil {
		return fmt.Errorf("loop: ingest image: no LLM provider configured")
	}
	caption, err := l.Provider.CompleteWithImage(ctx, imageBytes, mediaType,
		"Describe this image in detail for a personal knowledge base entry.", "", 512)
	if err != nil {
		return fmt.Errorf("loop: ingest image: %w", err)
	}
	l.IngestText(ctx, sourceID, domain.General, caption)
	return nil
}

// StartSession opens a new session and records it as current.
func (l *Loop) StartSession(ctx context.Context) (string, error) {
	s, err := l.Memory.Long.StartSession(ctx, domain.General)
	if err != nil {
		return "", fmt.Errorf("loop: start session: %w", err)
	}
	l.sessionMu.Lock()
	l.sessionID = s.ID
	l.sessionMu.Unlock()
	return s.ID, nil
}

// EndSession closes the current session and, if enabled, runs the
// Reflection Engine synchronously; reflection is critical and awaited,
// unlike background extraction.
func (l *Loop) EndSession(ctx context.Context, summary string) (*reflection.Result, error) {
	l.sessionMu.Lock()
	id := l.sessionID
	l.sessionMu.Unlock()
	if id == "" {
		return nil, fmt.Errorf("loop: no active session")
	}
	if err := l.Memory.Long.EndSession(ctx, id, summary); err != nil {
		return nil, fmt.Errorf("loop: end session: %w", err)
	}
	if !l.cfg.ReflectionEnabled || l.Reflection == nil {
		return nil, nil
	}
	res, err := reflection.Run(ctx, l.Reflection, id)
	if err != nil {
		return nil, fmt.Errorf("loop: reflection: %w", err)
	}
	if res.Synthesis.QualityScore > 0 {
		observability.Metrics().ReflectionQuality.Record(ctx, res.Synthesis.QualityScore)
	}
	return &res, nil
}

// turnContext carries everything prepareContext assembles for the LLM call
// and everything finalize needs afterward.
type turnContext struct {
	sessionID string
	domain    string
	sig       signal.Signal
	messages  []llm.Message
	system    string
	cmds      []personality.Command
}

var reNameAssign = regexp.MustCompile(`(?i)\byour\s+name\s+is\s+([a-z0-9][\w\- ]{0,30})|(?:call|i'?ll call)\s+you\s+([a-z0-9][\w\- ]{0,30})|you(?:'re| are)\s+now\s+(?:called\s+)?([a-z0-9][\w\- ]{0,30})`)

// detectNameAssignment handles "your name is X" style messages: a name
// assignment takes effect on the current turn, before the LLM call. The
// winning node label is "agent_name:<name>" so the graph's
// normalized-label identity key stays stable across re-assignments.
func (l *Loop) detectNameAssignment(ctx context.Context, message string) bool {
	m := reNameAssign.FindStringSubmatch(message)
	if m == nil {
		return false
	}
	name := strings.TrimSpace(firstNonEmpty(m[1], m[2], m[3]))
	if name == "" {
		return false
	}
	if _, err := l.Graph.UpsertNode(ctx, graph.NodePreference, "agent_name:"+name, 0.95, "", "turn", map[string]string{
		"key": "agent_name", "value": name,
	}); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("name_assignment_upsert_failed")
		return false
	}
	l.nameMu.Lock()
	l.agentName = name
	l.nameMu.Unlock()
	return true
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func (l *Loop) resolveAgentName() string {
	l.nameMu.RLock()
	defer l.nameMu.RUnlock()
	return l.agentName
}

// Process runs the full turn pipeline with a synchronous completion call.
func (l *Loop) Process(ctx context.Context, userMessage string) (string, error) {
	tc, err := l.prepareContext(ctx, userMessage)
	if err != nil {
		return "", err
	}
	res, err := l.Provider.Complete(ctx, tc.messages, tc.system, 1024, 0.7)
	response := res.Content
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("llm_complete_failed")
		response = "I hit an error generating a response: " + err.Error()
	}
	if ferr := l.finalize(ctx, userMessage, response, tc, res.Usage.InputTokens+res.Usage.OutputTokens); ferr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(ferr).Msg("finalize_failed")
	}
	return response, nil
}

// StreamProcess runs the full turn pipeline with a streaming completion
// call. h receives content deltas as they
// arrive; the full response is still memorized exactly once after the
// stream drains, success or error.
func (l *Loop) StreamProcess(ctx context.Context, userMessage string, h llm.StreamHandler) (string, error) {
	tc, err := l.prepareContext(ctx, userMessage)
	if err != nil {
		return "", err
	}
	res, err := l.Provider.Stream(ctx, tc.messages, tc.system, 1024, 0.7, h)
	response := res.Content
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("llm_stream_failed")
		if response == "" {
			response = "I hit an error generating a response: " + err.Error()
		}
	}
	if ferr := l.finalize(ctx, userMessage, response, tc, res.Usage.InputTokens+res.Usage.OutputTokens); ferr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(ferr).Msg("finalize_failed")
	}
	return response, nil
}

// StreamProcessWithImage runs the vision path. If the configured provider
// doesn't support
// vision, it degrades gracefully to a text note rather than failing the
// turn.
func (l *Loop) StreamProcessWithImage(ctx context.Context, userMessage string, imageBytes []byte, mediaType string) (string, error) {
	tc, err := l.prepareContext(ctx, userMessage)
	if err != nil {
		return "", err
	}
	response, err := l.Provider.CompleteWithImage(ctx, imageBytes, mediaType, userMessage, tc.system, 1024)
	if err != nil {
		if _, ok := err.(*llm.ErrUnsupported); ok {
			response = "This provider doesn't support image input, so I can't see the attached image, but here's my best response to your message: "
			if res, cerr := l.Provider.Complete(ctx, tc.messages, tc.system, 1024, 0.7); cerr == nil {
				response += res.Content
			}
		} else {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("llm_vision_failed")
			response = "I hit an error analyzing the image: " + err.Error()
		}
	}
	if ferr := l.finalize(ctx, userMessage, response, tc, 0); ferr != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(ferr).Msg("finalize_failed")
	}
	return response, nil
}

// prepareContext runs the shared retrieval/assembly
// phase every entry point (process/stream/vision) goes through before its
// LLM call.
func (l *Loop) prepareContext(ctx context.Context, userMessage string) (*turnContext, error) {
	start := time.Now()
	log := observability.LoggerWithTrace(ctx)

	l.sessionMu.Lock()
	sessionID := l.sessionID
	l.sessionMu.Unlock()

	// Step 1: name assignment.
	l.detectNameAssignment(ctx, userMessage)
	agentName := l.resolveAgentName()

	// Step 2: personality trait commands.
	var cmds []personality.Command
	if l.Personality != nil {
		cmds = personality.ParseCommands(userMessage)
		for _, c := range cmds {
			if _, err := l.Personality.Apply(c); err != nil {
				log.Debug().Err(err).Msg("personality_apply_failed")
			}
		}
	}

	// Step 3: domain classification.
	dom := domain.General
	if l.Router != nil {
		dom = l.Router.Classify(ctx, userMessage)
	}

	// Step 4: signal detection + immediate confidence effects.
	sig := l.detectSignal(ctx, userMessage)

	// Step 5: parallel retrieval (semantic memories + mistake warnings).
	var semanticHits []memory.ContextHit
	var warnings []mistake.Warning
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := l.Memory.RetrieveContext(gctx, userMessage, dom)
		if err != nil {
			log.Warn().Err(err).Msg("semantic_retrieval_failed")
			return nil
		}
		semanticHits = hits
		return nil
	})
	g.Go(func() error {
		if l.Mistakes == nil {
			return nil
		}
		w, err := l.Mistakes.GetWarningsForPrompt(gctx, userMessage, 3)
		if err != nil {
			log.Warn().Err(err).Msg("mistake_retrieval_failed")
			return nil
		}
		warnings = w
		return nil
	})
	_ = g.Wait() // retrieval failures degrade to empty, never fail the turn.

	// Step 6: graph context.
	var graphNodes []graph.ContextNode
	if nodes, err := l.Graph.GetContextForQuery(ctx, userMessage, graphContextK); err != nil {
		log.Warn().Err(err).Msg("graph_context_failed")
	} else {
		graphNodes = nodes
	}

	// Step 7: domain-specific context.
	var domainContext string
	if l.Handlers != nil {
		if c, err := l.Handlers.For(dom).Context(ctx, domain.Query{SessionID: sessionID, Message: userMessage}); err != nil {
			log.Warn().Err(err).Msg("domain_context_failed")
		} else {
			domainContext = c
		}
	}

	// Step 8: optional web search.
	var searchBlock string
	if l.cfg.WebSearchEnabled && l.Search != nil && websearch.ShouldSearch(userMessage) {
		if results, err := l.Search.Search(ctx, userMessage); err != nil {
			log.Warn().Err(err).Msg("web_search_failed")
		} else {
			searchBlock = websearch.FormatBlock(results)
		}
	}

	// Step 9: prompt assembly.
	system := l.assemblePrompt(agentName, dom, domainContext, searchBlock, graphNodes, warnings, semanticHits, sig, cmds)

	messages := make([]llm.Message, 0, len(l.Memory.Short.GetMessages())+1)
	for _, m := range l.Memory.Short.GetMessages() {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	observability.Metrics().TurnDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	return &turnContext{
		sessionID: sessionID, domain: dom, sig: sig, messages: messages,
		system: system, cmds: cmds,
	}, nil
}

// detectSignal classifies the message's feedback character and, for
// correction/confirmation signals, resolves the most recently discussed
// graph nodes (via the prior agent turn) and applies the corresponding
// confidence effect through the Evolver.
func (l *Loop) detectSignal(ctx context.Context, message string) signal.Signal {
	sig := signal.Detect(message)
	if sig.Type == signal.TypeNone || sig.Type == signal.TypeFrustration {
		return sig
	}
	lastAgent := l.Memory.Short.LastAgentResponse()
	if lastAgent == "" {
		return sig
	}
	nodes, err := l.Graph.GetContextForQuery(ctx, lastAgent, signalContextK)
	if err != nil || len(nodes) == 0 {
		return sig
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.Node.ID)
	}
	switch sig.Type {
	case signal.TypeCorrection:
		for _, id := range ids {
			if err := l.Evolver.CorrectNode(id, "user correction signal: "+sig.Snippet); err != nil {
				observability.LoggerWithTrace(ctx).Debug().Err(err).Msg("signal_correct_node_failed")
			}
		}
	case signal.TypeConfirmation:
		l.Evolver.ConfirmNodes(ids)
	}
	return sig
}

// assemblePrompt concatenates the prompt blocks in their fixed order:
// base, datetime, domain addendum, domain context, search results, graph
// context, mistake warnings, past interactions, then signal/personality
// acknowledgments.
func (l *Loop) assemblePrompt(agentName, dom, domainContext, searchBlock string, graphNodes []graph.ContextNode, warnings []mistake.Warning, hits []memory.ContextHit, sig signal.Signal, cmds []personality.Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a long-running personal assistant. Be direct, helpful, and remember what matters to this user.\n", agentName)
	fmt.Fprintf(&b, "Current datetime: %s\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&b, "Conversation domain: %s\n", dom)

	if domainContext != "" {
		b.WriteString("\n" + domainContext)
	}
	if searchBlock != "" {
		b.WriteString("\n" + searchBlock)
	}
	if len(graphNodes) > 0 {
		b.WriteString("\n─── KNOWLEDGE GRAPH CONTEXT ───\n")
		for _, n := range graphNodes {
			fmt.Fprintf(&b, "- (%s, confidence %.2f) %s\n", n.Node.Type, n.Node.Confidence, n.Node.DisplayLabel)
		}
	}
	if len(warnings) > 0 {
		b.WriteString("\n" + mistake.FormatWarningsBlock(warnings))
	}
	if len(hits) > 0 {
		b.WriteString("\n─── RELEVANT PAST INTERACTIONS ───\n")
		for _, h := range hits {
			fmt.Fprintf(&b, "- User: %s | You: %s (relevance %.2f)\n", h.UserMessage, h.AgentResponse, h.Relevance)
		}
	}
	if sig.Type == signal.TypeCorrection {
		b.WriteString("\nThe user just corrected something you said. Acknowledge the correction briefly and adjust.\n")
	}
	if ack := personality.AcknowledgmentPrompt(cmds); ack != "" {
		b.WriteString("\n" + ack + "\n")
	}
	return b.String()
}

// finalize runs the post-response phase: domain post-process, memory
// write, and the background extraction spawn.
func (l *Loop) finalize(ctx context.Context, userMessage, agentResponse string, tc *turnContext, tokens int) error {
	log := observability.LoggerWithTrace(ctx)

	if l.Handlers != nil {
		if _, err := l.Handlers.For(tc.domain).PostProcess(ctx, domain.Turn{
			SessionID: tc.sessionID, UserMessage: userMessage, AgentResponse: agentResponse,
		}); err != nil {
			log.Warn().Err(err).Msg("domain_post_process_failed")
		}
	}

	l.Memory.Short.Append(userMessage, agentResponse)

	interaction, err := l.Memory.Long.RecordInteraction(ctx, tc.sessionID, userMessage, agentResponse, tc.domain, tokens)
	if err != nil {
		log.Warn().Err(err).Msg("record_interaction_failed")
	}
	if interaction.ID != "" {
		if err := l.Memory.Semantic.IndexInteraction(ctx, interaction.ID, tc.sessionID, userMessage, agentResponse, tc.domain, interaction.Timestamp); err != nil {
			log.Warn().Err(err).Msg("semantic_index_failed")
		}
	}
	if err := l.Memory.Episodic.Append(tc.sessionID, "interaction", tc.domain, map[string]string{
		"user_message": userMessage, "agent_response": agentResponse,
	}, 0.5); err != nil {
		log.Warn().Err(err).Msg("episodic_append_failed")
	}

	// Background spawn, launched only after memory writes complete.
	if l.cfg.ExtractionEnabled {
		text := fmt.Sprintf("User: %s\nAssistant: %s", userMessage, agentResponse)
		sourceID := interaction.ID
		if sourceID == "" {
			sourceID = uuid.NewString()
		}
		l.spawnExtraction(ctx, extractionTask{domain: tc.domain, sourceID: sourceID, text: text})
	}
	return nil
}
