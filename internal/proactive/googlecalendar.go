package proactive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dswagner/psychoportal/internal/model"
	"github.com/dswagner/psychoportal/internal/observability"
	"github.com/dswagner/psychoportal/internal/storage/relational"
)

// GoogleCalendarSync pulls upcoming events from a user's Google Calendar
// into the local relational store's calendar_events table, the concrete
// adapter for Google Calendar integration. It is a one-way pull:
// PsychoPortal never writes back to Google.
type GoogleCalendarSync struct {
	store      relational.Store
	httpClient *http.Client
	calendarID string
}

// NewGoogleCalendarSync builds a sync adapter from a long-lived OAuth2
// refresh token. clientID/clientSecret/refreshToken come from an operator's
// Google Cloud OAuth client registered with the Calendar API's read-only
// scope; calendarID defaults to "primary".
func NewGoogleCalendarSync(ctx context.Context, store relational.Store, clientID, clientSecret, refreshToken, calendarID string) *GoogleCalendarSync {
	if calendarID == "" {
		calendarID = "primary"
	}
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar.readonly"},
	}
	tok := &oauth2.Token{RefreshToken: refreshToken}
	client := observability.NewHTTPClient(conf.Client(ctx, tok))
	return &GoogleCalendarSync{store: store, httpClient: client, calendarID: calendarID}
}

type gcalEventsResponse struct {
	Items []gcalEvent `json:"items"`
}

type gcalEvent struct {
	ID       string      `json:"id"`
	Summary  string      `json:"summary"`
	Location string      `json:"location"`
	Start    gcalDateTime `json:"start"`
	End      gcalDateTime `json:"end"`
}

type gcalDateTime struct {
	DateTime time.Time `json:"dateTime"`
	Date     string    `json:"date"`
}

func (d gcalDateTime) asTime() (time.Time, bool) {
	if !d.DateTime.IsZero() {
		return d.DateTime, false
	}
	if d.Date != "" {
		if t, err := time.Parse("2006-01-02", d.Date); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Sync fetches events starting within [now, now+window) from the Calendar
// API and inserts them into the relational store, keyed by a
// "gcal:<external id>" id so repeated syncs don't duplicate rows. An event
// already stored under that id is left unchanged.
func (s *GoogleCalendarSync) Sync(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	url := fmt.Sprintf(
		"https://www.googleapis.com/calendar/v3/calendars/%s/events?timeMin=%s&timeMax=%s&singleEvents=true&orderBy=startTime",
		s.calendarID, now.Format(time.RFC3339), now.Add(window).Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("google calendar: fetch events: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("google calendar: unexpected status %d", resp.StatusCode)
	}

	var parsed gcalEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("google calendar: decode response: %w", err)
	}

	log := observability.LoggerWithTrace(ctx)
	count := 0
	for _, ev := range parsed.Items {
		start, allDay := ev.Start.asTime()
		end, _ := ev.End.asTime()
		if start.IsZero() {
			continue
		}
		err := s.store.CreateCalendarEvent(ctx, model.CalendarEvent{
			ID:              "gcal:" + ev.ID,
			Title:           ev.Summary,
			StartTimestamp:  start,
			EndTimestamp:    end,
			Location:        ev.Location,
			Recurrence:      model.RecurrenceNone,
			AllDay:          allDay,
			ReminderMinutes: 30,
			CreatedAt:       now,
		})
		if err != nil {
			log.Warn().Err(err).Str("event_id", ev.ID).Msg("google_calendar_upsert_failed")
			continue
		}
		count++
	}
	return count, nil
}
