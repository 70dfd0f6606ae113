package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/gamification"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// sample returns the value of the series name{labels}, or -1 when absent.
func sample(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			match := true
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestObserveEmergency(t *testing.T) {
	m := New()

	m.ObserveEmergency(emergency.Event{Kind: emergency.EventCountdownStarted, Type: models.AlertTypeNoMovement, SecondsRemaining: 10})
	assert.Equal(t, 10.0, sample(t, m, "kids_safety_emergency_countdown_seconds", nil))

	m.ObserveEmergency(emergency.Event{Kind: emergency.EventCountdownTick, SecondsRemaining: 4})
	assert.Equal(t, 4.0, sample(t, m, "kids_safety_emergency_countdown_seconds", nil))

	m.ObserveEmergency(emergency.Event{Kind: emergency.EventAlertActivated, Type: models.AlertTypeNoMovement})
	m.ObserveEmergency(emergency.Event{Kind: emergency.EventAlertResolved})
	m.ObserveEmergency(emergency.Event{Kind: emergency.EventAlertAbandoned})

	assert.Equal(t, 1.0, sample(t, m, "kids_safety_emergency_triggers_total", map[string]string{"type": "noMovement"}))
	assert.Equal(t, 1.0, sample(t, m, "kids_safety_emergency_activations_total", map[string]string{"type": "noMovement"}))
	assert.Equal(t, 1.0, sample(t, m, "kids_safety_emergency_outcomes_total", map[string]string{"outcome": "resolved"}))
	assert.Equal(t, 1.0, sample(t, m, "kids_safety_emergency_outcomes_total", map[string]string{"outcome": "abandoned"}))
	assert.Equal(t, 0.0, sample(t, m, "kids_safety_emergency_countdown_seconds", nil))
}

func TestObserveLedger(t *testing.T) {
	m := New()

	m.ObserveLedger(gamification.Event{Kind: gamification.EventPointsAdded, Points: 10})
	m.ObserveLedger(gamification.Event{Kind: gamification.EventPointsAdded, Points: 5})
	m.ObserveLedger(gamification.Event{Kind: gamification.EventSessionEnded, Session: &models.ActivitySession{ActivityType: "dance"}})
	m.ObserveLedger(gamification.Event{Kind: gamification.EventAchievementAwarded, Achievement: &models.Achievement{ID: "first-session"}})

	assert.Equal(t, 15.0, sample(t, m, "kids_safety_points_awarded_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "kids_safety_sessions_completed_total", map[string]string{"activity": "dance"}))
	assert.Equal(t, 1.0, sample(t, m, "kids_safety_achievements_awarded_total", map[string]string{"achievement": "first-session"}))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/health", http.StatusOK, 3*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kids_safety_http_requests_total{method="GET",path="/health",status="200"} 1`)
}
