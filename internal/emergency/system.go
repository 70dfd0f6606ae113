package emergency

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// DefaultCountdownSeconds is the delay between a trigger and activation.
const DefaultCountdownSeconds = 10

// State is the position of the emergency state machine.
type State int

const (
	StateIdle State = iota
	StateCountingDown
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountingDown:
		return "countingDown"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StateIdle
	case "countingDown":
		*s = StateCountingDown
	case "active":
		*s = StateActive
	default:
		return fmt.Errorf("unknown emergency state %q", string(b))
	}
	return nil
}

// Options configures a System. Zero values take defaults.
type Options struct {
	CountdownSeconds int
	TickInterval     time.Duration
	MonitorInterval  time.Duration

	// UserID resolves the owning user when an alert is created.
	UserID func() string
	// HeartRate returns the latest wearable heart rate, if any.
	HeartRate func() *int
	// Detector decides on idle ticks whether to trigger. nil disables detection.
	Detector Detector
}

func (o *Options) applyDefaults() {
	if o.CountdownSeconds <= 0 {
		o.CountdownSeconds = DefaultCountdownSeconds
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.MonitorInterval <= 0 {
		o.MonitorInterval = 5 * time.Second
	}
	if o.UserID == nil {
		o.UserID = func() string { return UnknownUser }
	}
}

// UnknownUser is the owner recorded when no user identity is available.
const UnknownUser = "unknown"

// Snapshot is a consistent read of the System.
type Snapshot struct {
	State            State                     `json:"state"`
	SecondsRemaining int                       `json:"secondsRemaining"`
	PendingType      models.AlertType          `json:"pendingType,omitempty"`
	ActiveAlert      *models.EmergencyAlert    `json:"activeAlert,omitempty"`
	LastAlert        *models.EmergencyAlert    `json:"lastAlert,omitempty"`
	Contacts         []models.EmergencyContact `json:"contacts"`
}

// System owns the emergency countdown, the active alert and the alarm.
// All transitions run to completion under one mutex; listeners are called
// after it is released.
type System struct {
	mu sync.Mutex

	opts      Options
	scheduler Scheduler
	alarm     AlarmPlayer
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	state       State
	remaining   int
	pendingType models.AlertType
	active      *models.EmergencyAlert
	last        *models.EmergencyAlert
	contacts    []models.EmergencyContact

	// gen invalidates ticks from a countdown that has already been stopped.
	gen           uint64
	stopCountdown func()
	stopMonitor   func()
	disposed      bool

	listeners listenerSet
}

// NewSystem creates an idle System. scheduler and alarm may be nil, in
// which case the ticker scheduler and the log alarm are used.
func NewSystem(opts Options, scheduler Scheduler, alarm AlarmPlayer, logger *zap.Logger) *System {
	opts.applyDefaults()
	if scheduler == nil {
		scheduler = TickerScheduler{}
	}
	if alarm == nil {
		alarm = NewLogAlarm(logger)
	}
	return &System{
		opts:      opts,
		scheduler: scheduler,
		alarm:     alarm,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		state:     StateIdle,
	}
}

// Subscribe registers l for every subsequent event.
func (s *System) Subscribe(l Listener) {
	s.listeners.add(l)
}

// Trigger starts a countdown for t. It returns false, changing nothing,
// unless the System is idle.
func (s *System) Trigger(t models.AlertType) bool {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false
	}
	if !t.Valid() {
		s.mu.Unlock()
		s.logger.Warn("Ignoring emergency trigger with unknown type", zap.String("type", string(t)))
		return false
	}
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		s.logger.Info("Emergency already in progress, trigger ignored",
			zap.String("type", string(t)),
			zap.Stringer("state", state),
		)
		return false
	}

	s.state = StateCountingDown
	s.remaining = s.opts.CountdownSeconds
	s.pendingType = t
	s.gen++
	gen := s.gen
	s.stopCountdown = s.scheduler.Every(s.opts.TickInterval, func() { s.tick(gen) })

	evt := s.eventLocked(EventCountdownStarted, nil)
	s.mu.Unlock()

	s.logger.Warn("Emergency countdown started",
		zap.String("type", string(t)),
		zap.Int("seconds", s.opts.CountdownSeconds),
	)
	s.listeners.emit(evt)
	return true
}

// tick is the countdown timer callback.
func (s *System) tick(gen uint64) {
	s.mu.Lock()
	if s.state != StateCountingDown || s.gen != gen {
		s.mu.Unlock()
		return
	}

	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining > 0 {
		evt := s.eventLocked(EventCountdownTick, nil)
		s.mu.Unlock()
		s.listeners.emit(evt)
		return
	}

	events := []Event{s.eventLocked(EventCountdownTick, nil)}
	alert := s.activateLocked()
	events = append(events, s.eventLocked(EventAlertActivated, alert))
	s.mu.Unlock()

	s.logger.Error("EMERGENCY ACTIVATED",
		zap.String("alert_id", alert.ID),
		zap.String("type", string(alert.Type)),
		zap.String("user_id", alert.UserID),
	)
	s.listeners.emit(events...)
}

func (s *System) activateLocked() *models.EmergencyAlert {
	s.stopCountdownLocked()

	alert := &models.EmergencyAlert{
		ID:               s.newID(),
		UserID:           s.opts.UserID(),
		Timestamp:        s.now(),
		Type:             s.pendingType,
		Status:           models.AlertStatusPending,
		NotifiedContacts: []string{},
	}
	if s.opts.HeartRate != nil {
		alert.HeartRate = s.opts.HeartRate()
	}

	s.active = alert
	s.state = StateActive
	s.remaining = 0

	if err := s.alarm.Play(); err != nil {
		s.logger.Error("Failed to play alarm", zap.String("alert_id", alert.ID), zap.Error(err))
	}
	return alert
}

// Cancel aborts a countdown, or marks the active alert as a false alarm.
// The returned alert is non-nil only in the second case.
func (s *System) Cancel() *models.EmergencyAlert {
	s.mu.Lock()
	switch s.state {
	case StateCountingDown:
		s.stopCountdownLocked()
		evt := s.eventLocked(EventCountdownCancelled, nil)
		s.state = StateIdle
		s.remaining = 0
		s.pendingType = ""
		s.mu.Unlock()

		s.logger.Info("Emergency countdown cancelled", zap.String("type", string(evt.Type)))
		s.listeners.emit(evt)
		return nil

	case StateActive:
		alert := s.closeLocked(models.AlertStatusFalseAlarm).Clone()
		evt := s.eventLocked(EventAlertFalseAlarm, alert)
		s.mu.Unlock()

		s.logger.Info("Emergency marked as false alarm", zap.String("alert_id", alert.ID))
		s.listeners.emit(evt)
		return alert

	default:
		s.mu.Unlock()
		s.logger.Debug("Cancel ignored, no emergency in progress")
		return nil
	}
}

// Resolve closes the active alert as resolved. It is a no-op unless an
// alert is active.
func (s *System) Resolve() *models.EmergencyAlert {
	s.mu.Lock()
	if s.state != StateActive {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("Resolve ignored, no active alert", zap.Stringer("state", state))
		return nil
	}

	alert := s.closeLocked(models.AlertStatusResolved).Clone()
	evt := s.eventLocked(EventAlertResolved, alert)
	s.mu.Unlock()

	s.logger.Info("Emergency resolved", zap.String("alert_id", alert.ID))
	s.listeners.emit(evt)
	return alert
}

func (s *System) closeLocked(status models.AlertStatus) *models.EmergencyAlert {
	s.alarm.Stop()

	alert := s.active
	alert.Status = status
	s.last = alert
	s.active = nil
	s.state = StateIdle
	s.pendingType = ""
	return alert
}

// RecordNotified appends contact ids reported by the dispatcher to the
// alert with alertID. The status is left unchanged.
func (s *System) RecordNotified(alertID string, contactIDs []string) bool {
	if len(contactIDs) == 0 {
		return false
	}

	s.mu.Lock()
	var alert *models.EmergencyAlert
	switch {
	case s.active != nil && s.active.ID == alertID:
		alert = s.active
	case s.last != nil && s.last.ID == alertID:
		alert = s.last
	default:
		s.mu.Unlock()
		return false
	}
	alert.NotifiedContacts = append(alert.NotifiedContacts, contactIDs...)
	evt := s.eventLocked(EventAlertUpdated, alert)
	s.mu.Unlock()

	s.listeners.emit(evt)
	return true
}

// SetContacts replaces the contact list read at activation time.
func (s *System) SetContacts(contacts []models.EmergencyContact) {
	s.mu.Lock()
	s.contacts = append([]models.EmergencyContact(nil), contacts...)
	s.mu.Unlock()
}

// Contacts returns a copy of the contact list.
func (s *System) Contacts() []models.EmergencyContact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.EmergencyContact{}, s.contacts...)
}

// Snapshot returns the current state.
func (s *System) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:            s.state,
		SecondsRemaining: s.remaining,
		PendingType:      s.pendingType,
		ActiveAlert:      s.active.Clone(),
		LastAlert:        s.last.Clone(),
		Contacts:         append([]models.EmergencyContact{}, s.contacts...),
	}
	return snap
}

// State returns the current state only.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispose stops the countdown, the alarm and the idle monitor. It is safe
// to call more than once; afterwards Trigger is a no-op. An active alert
// keeps its pending status and is reported with alert_abandoned.
func (s *System) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true

	s.stopCountdownLocked()
	if s.stopMonitor != nil {
		s.stopMonitor()
		s.stopMonitor = nil
	}
	var evts []Event
	if s.state == StateActive {
		s.alarm.Stop()
		evts = append(evts, s.eventLocked(EventAlertAbandoned, s.active))
		s.last = s.active
		s.active = nil
	}
	s.state = StateIdle
	s.remaining = 0
	s.pendingType = ""
	s.mu.Unlock()

	s.logger.Info("Emergency system disposed")
	s.listeners.emit(evts...)
}

func (s *System) stopCountdownLocked() {
	if s.stopCountdown != nil {
		s.stopCountdown()
		s.stopCountdown = nil
	}
	// late ticks from the stopped timer see a new generation
	s.gen++
}

func (s *System) eventLocked(kind EventKind, alert *models.EmergencyAlert) Event {
	evt := Event{
		Kind:             kind,
		Type:             s.pendingType,
		SecondsRemaining: s.remaining,
		At:               s.now(),
	}
	if alert != nil {
		evt.Alert = alert.Clone()
		evt.Type = alert.Type
		evt.Contacts = append([]models.EmergencyContact(nil), s.contacts...)
	}
	return evt
}
