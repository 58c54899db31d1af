package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/dswagner/psychoportal/internal/llm/stt"
	"github.com/dswagner/psychoportal/internal/llm/tts"
)

// handleVoiceConfig reports whether a real synthesizer/transcriber is
// wired, letting a client decide whether to show voice controls at all
// instead of discovering it via a failed call.
func (s *Server) handleVoiceConfig(w http.ResponseWriter, r *http.Request) {
	_, ttsUnconfigured := s.tts.(tts.Unconfigured)
	_, sttUnconfigured := s.stt.(stt.Unconfigured)
	respondJSON(w, http.StatusOK, map[string]bool{
		"tts_configured": !ttsUnconfigured,
		"stt_configured": !sttUnconfigured,
	})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	audio, mimeType, err := s.tts.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Write(audio)
}

func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	mediaType := r.Header.Get("Content-Type")
	audio, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	text, err := s.stt.Transcribe(r.Context(), audio, mediaType)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": text})
}
