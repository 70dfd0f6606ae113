package emergency

import (
	"sync"
	"time"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// EventKind names a System transition.
type EventKind string

const (
	EventCountdownStarted   EventKind = "countdown_started"
	EventCountdownTick      EventKind = "countdown_tick"
	EventCountdownCancelled EventKind = "countdown_cancelled"
	EventAlertActivated     EventKind = "alert_activated"
	EventAlertFalseAlarm    EventKind = "alert_false_alarm"
	EventAlertResolved      EventKind = "alert_resolved"
	EventAlertUpdated       EventKind = "alert_updated"
	EventAlertAbandoned     EventKind = "alert_abandoned"
)

// Event describes one transition. Alert is a copy and is set for the
// alert_* kinds only, together with the contacts known at that moment.
type Event struct {
	Kind             EventKind                 `json:"kind"`
	Type             models.AlertType          `json:"type,omitempty"`
	SecondsRemaining int                       `json:"secondsRemaining"`
	Alert            *models.EmergencyAlert    `json:"alert,omitempty"`
	Contacts         []models.EmergencyContact `json:"-"`
	At               time.Time                 `json:"at"`
}

// Listener receives events synchronously on the goroutine that caused the
// transition. It may call back into the System.
type Listener func(Event)

type listenerSet struct {
	mu        sync.RWMutex
	listeners []Listener
}

func (l *listenerSet) add(fn Listener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *listenerSet) emit(events ...Event) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()

	for _, evt := range events {
		for _, fn := range listeners {
			fn(evt)
		}
	}
}
