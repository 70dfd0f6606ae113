package gamification

import (
	"sync"
	"time"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// EventKind names a ledger change.
type EventKind string

const (
	EventSessionStarted     EventKind = "session_started"
	EventSessionEnded       EventKind = "session_ended"
	EventPointsAdded        EventKind = "points_added"
	EventAchievementAwarded EventKind = "achievement_awarded"
)

// Event describes one ledger change. Session and Achievement are copies.
// TotalPoints is userPoints after the change.
type Event struct {
	Kind        EventKind               `json:"kind"`
	UserID      string                  `json:"userId"`
	Session     *models.ActivitySession `json:"session,omitempty"`
	Achievement *models.Achievement     `json:"achievement,omitempty"`
	Points      int                     `json:"points,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
	TotalPoints int                     `json:"totalPoints"`
	At          time.Time               `json:"at"`
}

// Listener is called after the ledger lock is released and may call back
// into the Ledger.
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

func (l *listenerSet) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()

	for _, evt := range events {
		for _, fn := range listeners {
			fn(evt)
		}
	}
}
