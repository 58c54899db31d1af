package api

import (
	"net/http"
)

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.graph.Stats())
}

// handleGraphExport writes the byte-stable graph+metadata snapshot
// without touching disk, reusing Graph.Export's shared Graph.snapshot
// builder.
func (s *Server) handleGraphExport(w http.ResponseWriter, r *http.Request) {
	graphJSON, metaJSON, err := s.graph.Export()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"graph":`))
	w.Write(graphJSON)
	w.Write([]byte(`,"metadata":`))
	w.Write(metaJSON)
	w.Write([]byte(`}`))
}

func (s *Server) handleGraphInspect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	includeDeprecated := r.URL.Query().Get("include_deprecated") == "true"
	n, ok := s.graph.GetNode(id, includeDeprecated)
	if !ok {
		respondError(w, http.StatusNotFound, errNodeNotFound(id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"node":     n,
		"out_edges": s.graph.OutEdges(id),
		"in_edges":  s.graph.InEdges(id),
		"pagerank":  s.graph.PageRank(id),
	})
}

// handleGraphDelete applies soft-delete deprecation, the
// graph's only "delete" semantic; nodes are never hard-removed.
func (s *Server) handleGraphDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "deleted via api"
	}
	if err := s.graph.Deprecate(id, reason); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deprecated"})
}
