package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dswagner/psychoportal/internal/model"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("unread") == "true" {
		respondJSON(w, http.StatusOK, map[string]any{"notifications": s.sched.Unread()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": s.sched.All()})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	s.sched.MarkRead(r.PathValue("id"))
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	reminders, err := s.store.ListReminders(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (s *Server) handleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var rem model.Reminder
	if err := json.NewDecoder(r.Body).Decode(&rem); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if rem.ID == "" {
		rem.ID = uuid.NewString()
	}
	if rem.CreatedAt.IsZero() {
		rem.CreatedAt = time.Now().UTC()
	}
	if rem.Recurrence == "" {
		rem.Recurrence = model.RecurrenceNone
	}
	if rem.Priority == "" {
		rem.Priority = model.PriorityNormal
	}
	if err := s.store.CreateReminder(r.Context(), rem); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, rem)
}

func (s *Server) handleCompleteReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.CompleteReminder(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleSnoozeReminder(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Until time.Time `json:"until"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.SnoozeReminder(r.Context(), id, req.Until); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "snoozed"})
}

func (s *Server) handleListCalendarEvents(w http.ResponseWriter, r *http.Request) {
	from := time.Now().Add(-24 * time.Hour)
	to := time.Now().Add(30 * 24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	events, err := s.store.ListUpcomingEvents(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCreateCalendarEvent(w http.ResponseWriter, r *http.Request) {
	var e model.CalendarEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Recurrence == "" {
		e.Recurrence = model.RecurrenceNone
	}
	if err := s.store.CreateCalendarEvent(r.Context(), e); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusCreated, e)
}
