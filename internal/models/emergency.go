package models

import (
	"time"
)

// AlertType is the cause that started an emergency flow.
type AlertType string

const (
	AlertTypeNoMovement      AlertType = "noMovement"
	AlertTypeLostVisual      AlertType = "lostVisual"
	AlertTypeAbnormalPattern AlertType = "abnormalPattern"
	AlertTypeUserInitiated   AlertType = "userInitiated"
)

// Valid reports whether t is one of the known alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeNoMovement, AlertTypeLostVisual, AlertTypeAbnormalPattern, AlertTypeUserInitiated:
		return true
	}
	return false
}

// AlertStatus is the lifecycle position of an EmergencyAlert.
type AlertStatus string

const (
	AlertStatusPending    AlertStatus = "pending"
	AlertStatusNotified   AlertStatus = "notified" // reserved for an external dispatcher
	AlertStatusResolved   AlertStatus = "resolved"
	AlertStatusFalseAlarm AlertStatus = "falseAlarm"
)

// Final reports whether the status can no longer change.
func (s AlertStatus) Final() bool {
	return s == AlertStatusResolved || s == AlertStatusFalseAlarm
}

// Location is an optional GPS fix attached to an alert.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

// EmergencyAlert is created when a countdown completes without cancellation
// (table emergency_alerts).
type EmergencyAlert struct {
	ID               string      `json:"id" db:"alert_id"`
	UserID           string      `json:"userId" db:"user_id"`
	Timestamp        time.Time   `json:"timestamp" db:"triggered_at"`
	Type             AlertType   `json:"type" db:"alert_type"`
	Status           AlertStatus `json:"status" db:"status"`
	Location         *Location   `json:"location,omitempty" db:"location"`
	HeartRate        *int        `json:"heartRate,omitempty" db:"heart_rate"`
	NotifiedContacts []string    `json:"notifiedContacts" db:"notified_contacts"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (a *EmergencyAlert) Clone() *EmergencyAlert {
	if a == nil {
		return nil
	}
	c := *a
	c.NotifiedContacts = append([]string{}, a.NotifiedContacts...)
	if a.Location != nil {
		loc := *a.Location
		c.Location = &loc
	}
	if a.HeartRate != nil {
		hr := *a.HeartRate
		c.HeartRate = &hr
	}
	return &c
}

// EmergencyContact is owned by the settings collaborator and only read here.
type EmergencyContact struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Phone              string `json:"phone"`
	Relationship       string `json:"relationship"`
	IsEmergencyService bool   `json:"isEmergencyService"`
}
