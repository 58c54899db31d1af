// Package api implements the HTTP/WebSocket surface, a transport over the
// core: chat, history, ingestion, stats, sessions, graph
// export/inspection/delete, tasks, health-metrics, personality GET/PATCH,
// notifications, reminders, calendar, and voice config/TTS/STT.
package api

import (
	"net/http"

	"github.com/dswagner/psychoportal/internal/graph"
	"github.com/dswagner/psychoportal/internal/llm/stt"
	"github.com/dswagner/psychoportal/internal/llm/tts"
	"github.com/dswagner/psychoportal/internal/loop"
	"github.com/dswagner/psychoportal/internal/personality"
	"github.com/dswagner/psychoportal/internal/proactive"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// Server wires the Interaction Loop, Graph, relational Store, Personality
// Store, and Proactive Scheduler behind net/http handlers. It owns no
// domain state itself; every handler is a thin translation from HTTP to
// an existing core method.
type Server struct {
	loop    *loop.Loop
	graph   *graph.Graph
	store   relational.Store
	pers    *personality.Store
	sched   *proactive.Scheduler
	tts     tts.Synthesizer
	stt     stt.Transcriber
	mux     *http.ServeMux
}

// NewServer builds the API server and registers every route. tts/stt may
// be nil, in which case tts.Unconfigured{}/stt.Unconfigured{} back the
// voice endpoints.
func NewServer(l *loop.Loop, g *graph.Graph, store relational.Store, pers *personality.Store, sched *proactive.Scheduler, synth tts.Synthesizer, transcriber stt.Transcriber) *Server {
	if synth == nil {
		synth = tts.Unconfigured{}
	}
	if transcriber == nil {
		transcriber = stt.Unconfigured{}
	}
	s := &Server{
		loop: l, graph: g, store: store, pers: pers, sched: sched,
		tts: synth, stt: transcriber, mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler so Server can be passed straight to
// http.Server.Handler or otelhttp.NewHandler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	// Sessions + chat
	s.mux.HandleFunc("POST /session/start", s.handleSessionStart)
	s.mux.HandleFunc("POST /session/end", s.handleSessionEnd)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.Handle("GET /ws/chat", s.handleWSChat())
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("POST /ingest", s.handleIngest)

	// Graph
	s.mux.HandleFunc("GET /graph/stats", s.handleGraphStats)
	s.mux.HandleFunc("GET /graph/export", s.handleGraphExport)
	s.mux.HandleFunc("GET /graph/inspect/{id}", s.handleGraphInspect)
	s.mux.HandleFunc("DELETE /graph/{id}", s.handleGraphDelete)

	// Tasks + health metrics
	s.mux.HandleFunc("GET /tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /tasks", s.handleCreateTask)
	s.mux.HandleFunc("POST /tasks/{id}/complete", s.handleCompleteTask)
	s.mux.HandleFunc("GET /health-metrics", s.handleListHealthMetrics)
	s.mux.HandleFunc("POST /health-metrics", s.handleCreateHealthMetric)

	// Personality
	s.mux.HandleFunc("GET /personality", s.handleGetPersonality)
	s.mux.HandleFunc("PATCH /personality", s.handlePatchPersonality)

	// Proactive: notifications, reminders, calendar
	s.mux.HandleFunc("GET /notifications", s.handleListNotifications)
	s.mux.HandleFunc("POST /notifications/{id}/read", s.handleMarkNotificationRead)
	s.mux.HandleFunc("GET /reminders", s.handleListReminders)
	s.mux.HandleFunc("POST /reminders", s.handleCreateReminder)
	s.mux.HandleFunc("POST /reminders/{id}/complete", s.handleCompleteReminder)
	s.mux.HandleFunc("POST /reminders/{id}/snooze", s.handleSnoozeReminder)
	s.mux.HandleFunc("GET /calendar", s.handleListCalendarEvents)
	s.mux.HandleFunc("POST /calendar", s.handleCreateCalendarEvent)

	// Voice: named-interface stubs only
	s.mux.HandleFunc("GET /voice/config", s.handleVoiceConfig)
	s.mux.HandleFunc("POST /voice/tts", s.handleTTS)
	s.mux.HandleFunc("POST /voice/stt", s.handleSTT)
}
