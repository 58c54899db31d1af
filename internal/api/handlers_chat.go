package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/websocket"

	"github.com/dswagner/psychoportal/internal/observability"
)

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.loop.StartSession(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	res, err := s.loop.EndSession(r.Context(), req.Summary)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.loop.Process(r.Context(), req.Message)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.sched.NoteInteraction(time.Now())
	respondJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if q := r.URL.Query().Get("q"); q != "" {
		hits, err := s.store.SearchInteractions(r.Context(), q, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"interactions": hits})
		return
	}
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, errMissingSessionID)
		return
	}
	hits, err := s.store.RecentInteractions(r.Context(), sessionID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"interactions": hits})
}

// wsFrame is the typed frame shape: {type: "token"|"done"|"error"|"pong",
// ...}.
type wsFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

type wsRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wsStreamHandler adapts llm.StreamHandler's OnDelta callback into "token"
// frames written to the WebSocket connection as they arrive.
type wsStreamHandler struct {
	conn *websocket.Conn
}

func (h *wsStreamHandler) OnDelta(content string) {
	_ = websocket.JSON.Send(h.conn, wsFrame{Type: "token", Content: content})
}

// handleWSChat streams token events over /ws/chat. websocket.Handler
// wraps a plain function and satisfies http.Handler directly, no separate
// upgrade step needed.
func (s *Server) handleWSChat() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()
		log := observability.LoggerWithTrace(conn.Request().Context())
		for {
			var req wsRequest
			if err := websocket.JSON.Receive(conn, &req); err != nil {
				return
			}
			if req.Type == "ping" {
				_ = websocket.JSON.Send(conn, wsFrame{Type: "pong"})
				continue
			}
			h := &wsStreamHandler{conn: conn}
			_, err := s.loop.StreamProcess(conn.Request().Context(), req.Message, h)
			if err != nil {
				log.Debug().Err(err).Msg("ws_chat_stream_failed")
				_ = websocket.JSON.Send(conn, wsFrame{Type: "error", Error: err.Error()})
				continue
			}
			s.sched.NoteInteraction(time.Now())
			_ = websocket.JSON.Send(conn, wsFrame{Type: "done"})
		}
	})
}
