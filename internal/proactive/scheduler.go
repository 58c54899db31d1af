package proactive

import (
	"context"
	"sync"
	"time"

	"github.com/dswagner/psychoportal/internal/observability"
)

const maxNotifications = 50

// NotificationType distinguishes reminder from calendar-event pre-event
// notifications.
type NotificationType string

const (
	NotificationReminder NotificationType = "reminder"
	NotificationEvent    NotificationType = "event"
	NotificationCheckin  NotificationType = "checkin"
)

// Notification is one queued proactive alert.
type Notification struct {
	ID        string
	Type      NotificationType
	Title     string
	Body      string
	CreatedAt time.Time
	Read      bool
}

// Callback is invoked synchronously for every newly-queued notification,
// allowing a push-integration (WebSocket, TTS) to subscribe.
type Callback func(Notification)

// Scheduler runs the periodic tick loop: a bounded
// deque of notifications, deduplicated by id, fed by the reminder and
// calendar sub-managers.
type Scheduler struct {
	reminders *ReminderManager
	calendar  *CalendarManager
	checkin   *CheckinEngine
	interval  time.Duration

	mu              sync.Mutex
	queue           []Notification
	seen            map[string]struct{}
	callback        Callback
	lastInteraction time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler wires the sub-managers and tick interval. The check-in idle
// threshold defaults to four hours; NoteInteraction resets the
// idle clock every time the loop processes a message.
func NewScheduler(reminders *ReminderManager, calendar *CalendarManager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Scheduler{
		reminders: reminders,
		calendar:  calendar,
		checkin:   NewCheckinEngine(4 * time.Hour),
		interval:  interval,
		seen:      make(map[string]struct{}),
	}
}

// NoteInteraction records the time of the most recent user interaction,
// resetting the idle clock the check-in engine watches.
func (s *Scheduler) NoteInteraction(now time.Time) {
	s.mu.Lock()
	s.lastInteraction = now
	s.mu.Unlock()
}

// OnNotify registers a push-integration callback, replacing any previous one.
func (s *Scheduler) OnNotify(cb Callback) {
	s.mu.Lock()
	s.callback = cb
	s.mu.Unlock()
}

// Start launches the periodic tick loop in a background goroutine. Stop
// cancels it and joins on completion.
func (s *Scheduler) Start(ctx context.Context) {
	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.Tick(tickCtx, time.Now())
			}
		}
	}()
}

// Stop cancels the tick loop and blocks until it has exited.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// Tick runs one scan-and-notify pass. Exported so tests (and a caller
// simulating clock advancement) can drive it
// directly without waiting on a real ticker.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	log := observability.LoggerWithTrace(ctx)

	due, err := s.reminders.GetDue(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("proactive_reminders_scan_failed")
	}
	for _, r := range due {
		s.notify(Notification{
			ID: "reminder:" + r.ID, Type: NotificationReminder,
			Title: r.Title, Body: r.Notes, CreatedAt: now,
		})
		if err := s.reminders.RescheduleRecurring(ctx, r); err != nil {
			log.Warn().Err(err).Str("reminder_id", r.ID).Msg("proactive_reminder_reschedule_failed")
		}
	}

	events, err := s.calendar.GetNeedingReminder(ctx, now)
	if err != nil {
		log.Warn().Err(err).Msg("proactive_calendar_scan_failed")
	}
	for _, e := range events {
		s.notify(Notification{
			ID: "event:" + e.ID, Type: NotificationEvent,
			Title: e.Title, Body: e.Location, CreatedAt: now,
		})
	}

	s.mu.Lock()
	last := s.lastInteraction
	s.mu.Unlock()
	if s.checkin.ShouldCheckin(last, now) {
		s.NotifyCheckin(now, "It's been a while since we last talked.")
	}
}

// notify appends a notification to the bounded deque, deduplicated by id,
// dropping the oldest entry on overflow, and fires the push callback.
func (s *Scheduler) notify(n Notification) {
	s.mu.Lock()
	if _, ok := s.seen[n.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.seen[n.ID] = struct{}{}
	s.queue = append(s.queue, n)
	if len(s.queue) > maxNotifications {
		dropped := s.queue[0]
		s.queue = s.queue[1:]
		delete(s.seen, dropped.ID)
	}
	cb := s.callback
	s.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

// NotifyCheckin queues a check-in notification keyed by the tick's hour,
// so repeated idle ticks don't flood duplicates.
func (s *Scheduler) NotifyCheckin(now time.Time, body string) {
	s.notify(Notification{
		ID: "checkin:" + now.Truncate(time.Hour).Format(time.RFC3339), Type: NotificationCheckin,
		Body: body, CreatedAt: now,
	})
}

// All returns every queued notification, oldest first.
func (s *Scheduler) All() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.queue))
	copy(out, s.queue)
	return out
}

// Unread returns queued notifications not yet marked read.
func (s *Scheduler) Unread() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Notification
	for _, n := range s.queue {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// MarkRead flips the Read flag for a queued notification by id.
func (s *Scheduler) MarkRead(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].ID == id {
			s.queue[i].Read = true
			return
		}
	}
}
