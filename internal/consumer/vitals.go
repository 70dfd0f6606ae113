package consumer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Vitals keeps the latest wearable reading.
type Vitals struct {
	mu     sync.RWMutex
	latest *models.BiometricReading
	maxAge time.Duration
	now    func() time.Time
}

// NewVitals creates an empty store. Readings older than maxAge are treated
// as absent; zero keeps them forever.
func NewVitals(maxAge time.Duration) *Vitals {
	return &Vitals{maxAge: maxAge, now: time.Now}
}

// Update replaces the latest reading unless r is older than it.
func (v *Vitals) Update(r models.BiometricReading) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.latest != nil && r.Timestamp.Before(v.latest.Timestamp) {
		return
	}
	v.latest = &r
}

// Latest returns a copy of the latest fresh reading, or nil.
func (v *Vitals) Latest() *models.BiometricReading {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.latest == nil {
		return nil
	}
	if v.maxAge > 0 && v.now().Sub(v.latest.Timestamp) > v.maxAge {
		return nil
	}
	c := *v.latest
	return &c
}

// HeartRate returns the heart rate of the latest fresh reading, or nil.
func (v *Vitals) HeartRate() *int {
	r := v.Latest()
	if r == nil || r.HeartRate == nil {
		return nil
	}
	hr := *r.HeartRate
	return &hr
}

// Tracking is the camera collaborator's "is tracking active" flag.
type Tracking struct {
	active atomic.Bool
}

func (t *Tracking) Set(active bool) { t.active.Store(active) }

func (t *Tracking) Active() bool { return t.active.Load() }
