// Command psychoportald is the process entrypoint: it loads configuration,
// wires every core component along one-way dependencies (Loop depends on
// Graph and Evolver by reference, never owns them; all graph mutation flows
// Loop -> Evolver -> Graph), and exposes the internal/api REST+WebSocket
// transport over the core. The HTTP/WebSocket surface itself is a
// replaceable transport, so this driver stays thin: config load -> logger
// init -> otel init -> provider construction -> handler registration ->
// ListenAndServe.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dswagner/psychoportal/internal/api"
	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/domain"
	"github.com/dswagner/psychoportal/internal/embedding"
	"github.com/dswagner/psychoportal/internal/evolve"
	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/llm/anthropic"
	"github.com/dswagner/psychoportal/internal/llm/google"
	"github.com/dswagner/psychoportal/internal/llm/ollama"
	"github.com/dswagner/psychoportal/internal/llm/openai"
	"github.com/dswagner/psychoportal/internal/loop"
	"github.com/dswagner/psychoportal/internal/memory"
	"github.com/dswagner/psychoportal/internal/mistake"
	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/persistence/databases"
	"github.com/dswagner/psychoportal/internal/personality"
	"github.com/dswagner/psychoportal/internal/proactive"
	"github.com/dswagner/psychoportal/internal/reflection"
	"github.com/dswagner/psychoportal/internal/storage/relational"
	"github.com/dswagner/psychoportal/internal/storage/vector"
	"github.com/dswagner/psychoportal/internal/tools/websearch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel_init_failed_continuing")
		shutdown = nil
	}
	if shutdown != nil {
		observability.AttachOTelLogBridge(cfg.Obs.ServiceName)
		defer func() { _ = shutdown(context.Background()) }()
	}

	if cfg.ClickHouseDSN != "" {
		if sink, err := observability.NewClickHouseSink(context.Background(), cfg.ClickHouseDSN); err != nil {
			log.Warn().Err(err).Msg("clickhouse_sink_init_failed_continuing")
		} else {
			observability.SetAnalyticsSink(sink)
			defer sink.Close()
		}
	}

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.GraphDir, cfg.Storage.JournalDir, cfg.Storage.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed_to_create_data_dir")
		}
	}

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed_to_construct_llm_provider")
	}

	embedFn := llm.EmbedWithFallback(provider, embedding.New(cfg.Storage.VectorDimensions))
	vecStore := vector.New(cfg.Storage, embedFn)

	relStore, err := newRelationalStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed_to_construct_relational_store")
	}
	defer relStore.Close()

	g, err := graph.Load(context.Background(), cfg.Storage.GraphDir, cfg.Evolution, vecStore)
	if err != nil {
		log.Fatal().Err(err).Msg("failed_to_load_graph")
	}
	evolver := evolve.New(g)

	dbm, err := databases.NewManager(context.Background(), cfg.Storage)
	if err != nil {
		log.Warn().Err(err).Msg("search_backend_init_failed_falling_back_to_memory")
		dbm.Search = databases.NewMemorySearch()
	}
	defer dbm.Close()

	shortTerm := memory.NewShortTerm(cfg.MaxShortTermMessages)
	longTerm := memory.NewLongTermWithSearch(relStore, dbm.Search)
	semantic := memory.NewSemantic(vecStore)
	episodic, err := memory.Load(context.Background(), cfg.Storage.DataDir)
	if err != nil {
		log.Warn().Err(err).Msg("episodic_load_failed_starting_empty")
		episodic = memory.NewEpisodic()
	}
	mem := memory.NewManager(shortTerm, longTerm, semantic, episodic)

	mistakes := mistake.New(relStore, vecStore)
	router := newDomainRouter(cfg, provider)
	registry := domain.NewRegistry(relStore)

	pers, err := personality.Load(cfg.Storage.PersonalityPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed_to_load_personality")
	}

	var searcher *websearch.Searcher
	if cfg.WebSearchEnabled {
		searcher = websearch.NewSearcher(noopURLLister)
		searcher.JS = websearch.NewJSFetcher(0)
	}

	refl := &reflection.Engine{
		Long:       longTerm,
		Graph:      g,
		Evolver:    evolver,
		Mistakes:   mistakes,
		Provider:   provider,
		Insight:    &reflection.InsightGenerator{Provider: provider},
		GraphDir:   cfg.Storage.GraphDir,
		JournalDir: cfg.Storage.JournalDir,
		S3Bucket:   cfg.Storage.JournalS3Bucket,
	}

	l := loop.New(cfg, provider, mem, g, evolver, router, registry, mistakes, pers, searcher, refl)
	defer l.Close()

	reminders := proactive.NewReminderManager(relStore)
	calendar := proactive.NewCalendarManager(relStore)
	scheduler := proactive.NewScheduler(reminders, calendar, cfg.ProactiveSchedulerInterval)

	if len(cfg.KafkaBrokers) > 0 {
		if pub, err := proactive.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotifyTopic); err != nil {
			log.Warn().Err(err).Msg("kafka_publisher_init_failed_continuing")
		} else {
			scheduler.OnNotify(pub.Publish)
			defer pub.Close()
		}
	}

	if cfg.ProactiveEnabled {
		rootCtx, cancelSched := context.WithCancel(context.Background())
		defer cancelSched()
		scheduler.Start(rootCtx)
		defer scheduler.Stop()

		if cfg.GoogleCalendar.RefreshToken != "" {
			sync := proactive.NewGoogleCalendarSync(rootCtx, relStore,
				cfg.GoogleCalendar.ClientID, cfg.GoogleCalendar.ClientSecret,
				cfg.GoogleCalendar.RefreshToken, cfg.GoogleCalendar.CalendarID)
			go runGoogleCalendarSync(rootCtx, sync, cfg.GoogleCalendar.SyncInterval)
		}
	}

	srv := newHTTPServer(cfg, l, g, relStore, pers, scheduler)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("psychoportal_listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http_server_failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := g.Save(cfg.Storage.GraphDir); err != nil {
		log.Error().Err(err).Msg("final_graph_save_failed")
	}
	if err := episodic.Save(cfg.Storage.DataDir); err != nil {
		log.Error().Err(err).Msg("final_episodic_save_failed")
	}
}

// newProvider selects the configured LLM backend. Only the provider named
// by cfg.LLMProvider is constructed; the others stay unused collaborators.
func newProvider(cfg config.Config) (llm.Provider, error) {
	httpClient := observability.NewHTTPClient(nil)
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case config.ProviderOpenAI:
		return openai.New(cfg.OpenAI, httpClient), nil
	case config.ProviderOllama:
		return ollama.New(cfg.Ollama.Endpoint, cfg.Ollama.Model, cfg.Ollama.Timeout), nil
	case config.ProviderGoogle:
		return google.New(cfg.Google)
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newDomainRouter wires a Redis-backed classify cache when REDIS_URL is
// configured, falling back to
// the in-process cache otherwise.
func newDomainRouter(cfg config.Config, provider llm.Provider) *domain.Router {
	if cfg.RedisURL == "" {
		return domain.NewRouter(provider)
	}
	cache, err := domain.NewRedisCache(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis_classify_cache_init_failed_falling_back_to_memory")
		return domain.NewRouter(provider)
	}
	return domain.NewRouterWithCache(provider, cache)
}

// runGoogleCalendarSync pulls upcoming Google Calendar events into the
// relational store on a fixed interval until ctx is cancelled.
func runGoogleCalendarSync(ctx context.Context, sync *proactive.GoogleCalendarSync, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n, err := sync.Sync(ctx, time.Now(), 7*24*time.Hour); err != nil {
			log.Warn().Err(err).Msg("google_calendar_sync_failed")
		} else {
			log.Debug().Int("events", n).Msg("google_calendar_sync_ok")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// newRelationalStore picks Postgres when a DSN is configured, otherwise the
// in-memory fallback suited to a local single-user run.
func newRelationalStore(cfg config.Config) (relational.Store, error) {
	if cfg.Storage.RelationalDSN == "" {
		return relational.NewMemoryStore(), nil
	}
	pool, err := databases.OpenPool(context.Background(), cfg.Storage.RelationalDSN)
	if err != nil {
		return nil, fmt.Errorf("connect relational store: %w", err)
	}
	return relational.NewPostgresStore(pool), nil
}

// noopURLLister is the default web-search URL source until an operator
// wires a real search API key; the search provider is a pluggable
// collaborator, and this keeps websearch.Searcher's contract satisfied
// without picking a specific search vendor.
func noopURLLister(ctx context.Context, query string, n int) ([]string, error) {
	return nil, nil
}

// newHTTPServer wires the full REST+WebSocket surface behind
// internal/api.Server: chat,
// streaming chat, sessions, history, ingestion, graph inspection, tasks,
// health metrics, personality, proactive notifications/reminders/calendar,
// and the voice named-interface stubs.
func newHTTPServer(cfg config.Config, l *loop.Loop, g *graph.Graph, store relational.Store, pers *personality.Store, sched *proactive.Scheduler) *http.Server {
	srv := api.NewServer(l, g, store, pers, sched, nil, nil)
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
