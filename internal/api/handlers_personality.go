package api

import (
	"encoding/json"
	"net/http"

	"github.com/dswagner/psychoportal/internal/personality"
)

func (s *Server) handleGetPersonality(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"traits":  s.pers.Snapshot(),
		"profile": s.pers.Profile(),
	})
}

// patchPersonalityRequest accepts either a free-text directive parsed with
// personality.ParseCommands ("be more funny", "set warmth to 80%") or an
// explicit field
// update, so a scripted client doesn't have to round-trip through NL.
type patchPersonalityRequest struct {
	Directive string  `json:"directive"`
	Field     string  `json:"field"`
	Value     float64 `json:"value"`
	Absolute  bool    `json:"absolute"`
}

func (s *Server) handlePatchPersonality(w http.ResponseWriter, r *http.Request) {
	var req patchPersonalityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	if req.Directive != "" {
		cmds := personality.ParseCommands(req.Directive)
		var traits personality.Traits
		for _, cmd := range cmds {
			t, err := s.pers.Apply(cmd)
			if err != nil {
				respondError(w, http.StatusBadRequest, err)
				return
			}
			traits = t
		}
		respondJSON(w, http.StatusOK, map[string]any{"traits": traits, "commands_applied": len(cmds)})
		return
	}

	if req.Field == "" {
		respondError(w, http.StatusBadRequest, errMissingField)
		return
	}
	traits, err := s.pers.Apply(personality.Command{Field: req.Field, Value: req.Value, Absolute: req.Absolute})
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"traits": traits})
}
