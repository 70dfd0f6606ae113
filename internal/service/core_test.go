package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/common/redis"
	"github.com/meiriv/kids-sports-safety-app/internal/config"
	"github.com/meiriv/kids-sports-safety-app/internal/emergency"
	"github.com/meiriv/kids-sports-safety-app/internal/events"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
	"github.com/meiriv/kids-sports-safety-app/internal/store"
)

func testConfig() *config.Config {
	cfg := &config.Config{DefaultLanguage: "en"}
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Emergency.CountdownSeconds = 1
	cfg.Emergency.MonitorInterval = time.Hour
	cfg.Leaderboard.Refresh = "@every 1h"
	cfg.Notifier.Timeout = time.Second
	return cfg
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	return mr, goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func streamKinds(t *testing.T, mr *miniredis.Miniredis, stream string) []string {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	msgs, err := redis.ReadRange(context.Background(), client, stream, 100)
	require.NoError(t, err)

	var kinds []string
	for _, m := range msgs {
		var v struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal([]byte(m.Values["data"].(string)), &v))
		kinds = append(kinds, v.Kind)
	}
	return kinds
}

func TestCoreService_SessionPersisted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS emergency_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO activity_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	mr, client := newRedis(t)
	s, err := New(testConfig(), Backends{DB: db, Redis: client}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-1", DisplayName: "Noa"}))

	s.Ledger().StartActivitySession("freestyle")
	s.Ledger().AddPoints(10, "start")
	s.Ledger().AddPoints(5, "progress")
	ended, ok := s.Ledger().EndActivitySession()
	require.True(t, ok)
	assert.Equal(t, 15, ended.Points)

	s.Stop()

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"session_started", "session_ended"}, streamKinds(t, mr, events.SessionStream))

	raw, err := mr.Get("kids:progress:kid-1")
	require.NoError(t, err)
	var p models.Progress
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, 15, p.Points)
	assert.Equal(t, 15, p.PersonalBests["freestyle"])
}

func TestCoreService_AlertNotifiesContacts(t *testing.T) {
	var got struct {
		Message  string                    `json:"message"`
		Contacts []models.EmergencyContact `json:"contacts"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notify", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0,"msg":"ok","data":{"notified":["c-1"]}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Notifier.WebhookURL = srv.URL
	mr, client := newRedis(t)
	s, err := New(cfg, Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))
	require.NoError(t, s.UpdateContacts(ctx, []models.EmergencyContact{
		{ID: "c-1", Name: "Mom", Phone: "+972500000001", Relationship: "parent"},
	}))

	require.True(t, s.System().Trigger(models.AlertTypeNoMovement))
	require.Eventually(t, func() bool {
		a := s.System().Snapshot().ActiveAlert
		return a != nil && len(a.NotifiedContacts) == 1
	}, 5*time.Second, 20*time.Millisecond)

	active := s.System().Snapshot().ActiveAlert
	assert.Equal(t, "kid-1", active.UserID)
	assert.Equal(t, []string{"c-1"}, active.NotifiedContacts)
	assert.Contains(t, got.Message, "kid-1 may need help")
	require.Len(t, got.Contacts, 1)

	resolved := s.System().Resolve()
	require.NotNil(t, resolved)
	assert.Equal(t, models.AlertStatusResolved, resolved.Status)

	s.Stop()

	assert.Equal(t, []string{"alert_activated", "alert_updated", "alert_resolved"}, streamKinds(t, mr, events.EmergencyStream))
	raw, err := mr.Get("kids:contacts:kid-1")
	require.NoError(t, err)
	assert.Contains(t, raw, "c-1")
}

func TestCoreService_SetUserRestoresState(t *testing.T) {
	_, client := newRedis(t)
	ctx := context.Background()
	kv := store.NewRedisKV(client)
	require.NoError(t, store.NewProgressStore(kv).Save(ctx, "kid-2", models.Progress{
		UserID:        "kid-2",
		Points:        180,
		PersonalBests: map[string]int{"dance": 70},
	}))
	require.NoError(t, store.NewContactStore(kv).Save(ctx, "kid-2", []models.EmergencyContact{
		{ID: "c-9", Name: "Dad", Phone: "+972500000009"},
	}))

	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-2"}))

	assert.Equal(t, 180, s.Ledger().UserPoints())
	best, ok := s.Ledger().PersonalBest("dance")
	require.True(t, ok)
	assert.Equal(t, 70, best)
	require.Len(t, s.System().Contacts(), 1)
	assert.Equal(t, "Dad", s.System().Contacts()[0].Name)

	require.NoError(t, s.SetUser(ctx, nil))

	assert.Equal(t, 0, s.Ledger().UserPoints())
	assert.Empty(t, s.System().Contacts())
	assert.Nil(t, s.Ledger().CurrentUser())
}

func TestCoreService_SwitchUserEndsOpenSession(t *testing.T) {
	mr, client := newRedis(t)
	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))
	s.Ledger().StartActivitySession("boxing")
	s.Ledger().AddPoints(20, "combo")

	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-2"}))
	assert.Nil(t, s.Ledger().CurrentSession())
	assert.Equal(t, 0, s.Ledger().UserPoints())

	s.Stop()

	raw, err := mr.Get("kids:progress:kid-1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"points":20`)
}

func TestCoreService_UnknownUserIsNotPersisted(t *testing.T) {
	mr, client := newRedis(t)
	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)

	s.Ledger().AddPoints(10, "warm-up")
	require.NoError(t, s.UpdateContacts(context.Background(), []models.EmergencyContact{{ID: "c-1", Phone: "1"}}))
	s.Stop()

	assert.Empty(t, mr.Keys())
	assert.Equal(t, 10, s.Ledger().UserPoints())
}

func TestCoreService_NoBackends(t *testing.T) {
	s, err := New(testConfig(), Backends{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	sessions, err := s.Sessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	alerts, err := s.Alerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/emergency", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Code   int                `json:"code"`
		Result emergency.Snapshot `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 2000, res.Code)
	assert.Equal(t, emergency.StateIdle, res.Result.State)

	metrics := httptest.NewRecorder()
	s.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), "kids_safety_http_requests_total")
}

func TestCoreService_StopIsIdempotent(t *testing.T) {
	s, err := New(testConfig(), Backends{}, zap.NewNop())
	require.NoError(t, err)

	s.Stop()
	s.Stop()

	assert.False(t, s.System().Trigger(models.AlertTypeUserInitiated))
}

func TestCoreService_SchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(assert.AnError)

	_, err = New(testConfig(), Backends{DB: db}, zap.NewNop())

	assert.ErrorIs(t, err, assert.AnError)
}

func TestCoreService_UnreadableProgressIsMergedBeforeSave(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	require.NoError(t, store.NewProgressStore(store.NewRedisKV(client)).Save(ctx, "kid-1", models.Progress{
		UserID:        "kid-1",
		Points:        5000,
		PersonalBests: map[string]int{"dance": 300},
	}))

	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	assert.Error(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))
	mr.SetError("")

	s.Ledger().AddPoints(10, "warm-up")
	s.Stop()

	assert.Equal(t, 5010, s.Ledger().UserPoints())
	raw, err := mr.Get("kids:progress:kid-1")
	require.NoError(t, err)
	var p models.Progress
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, 5010, p.Points)
	assert.Equal(t, 300, p.PersonalBests["dance"])
}

func TestCoreService_UnreadableProgressIsNotOverwritten(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	require.NoError(t, store.NewProgressStore(store.NewRedisKV(client)).Save(ctx, "kid-1", models.Progress{
		UserID: "kid-1",
		Points: 5000,
	}))

	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	assert.Error(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))
	s.Ledger().AddPoints(10, "warm-up")
	s.Stop()
	mr.SetError("")

	raw, err := mr.Get("kids:progress:kid-1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"points":5000`)
}

func TestCoreService_UnreadableContactsAreKept(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	contactStore := store.NewContactStore(store.NewRedisKV(client))
	require.NoError(t, contactStore.Save(ctx, "kid-1", []models.EmergencyContact{
		{ID: "c-9", Name: "Dad", Phone: "+972500000009"},
	}))

	s, err := New(testConfig(), Backends{Redis: client}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()

	mr.SetError("LOADING Redis is loading the dataset in memory")
	assert.Error(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))

	mom := models.EmergencyContact{ID: "c-1", Name: "Mom", Phone: "+972500000001"}
	assert.Error(t, s.UpdateContacts(ctx, []models.EmergencyContact{mom}))
	assert.Equal(t, []models.EmergencyContact{mom}, s.System().Contacts())

	mr.SetError("")
	stored, err := contactStore.Load(ctx, "kid-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "c-9", stored[0].ID)

	require.NoError(t, s.UpdateContacts(ctx, []models.EmergencyContact{mom}))

	stored, err = contactStore.Load(ctx, "kid-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "c-9", stored[0].ID)
	assert.Equal(t, "c-1", stored[1].ID)
	assert.Len(t, s.System().Contacts(), 2)
}

func TestCoreService_NotificationAfterResolveIsStored(t *testing.T) {
	requested := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case requested <- struct{}{}:
		default:
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0,"msg":"ok","data":{"notified":["c-1"]}}`))
	}))
	defer srv.Close()
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS emergency_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	for _, want := range []struct{ status, notified string }{
		{"pending", "{}"},
		{"resolved", "{}"},
		{"resolved", `{"c-1"}`},
	} {
		mock.ExpectExec(`INSERT INTO emergency_alerts`).
			WithArgs(sqlmock.AnyArg(), "kid-1", sqlmock.AnyArg(), "noMovement", want.status,
				sqlmock.AnyArg(), sqlmock.AnyArg(), want.notified).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectClose()

	cfg := testConfig()
	cfg.Notifier.WebhookURL = srv.URL
	cfg.Notifier.Timeout = 5 * time.Second
	s, err := New(cfg, Backends{DB: db}, zap.NewNop())
	require.NoError(t, err)
	defer s.Stop()
	defer unblock()

	ctx := context.Background()
	require.NoError(t, s.SetUser(ctx, &models.User{ID: "kid-1"}))
	require.NoError(t, s.UpdateContacts(ctx, []models.EmergencyContact{
		{ID: "c-1", Name: "Mom", Phone: "+972500000001"},
	}))

	require.True(t, s.System().Trigger(models.AlertTypeNoMovement))
	select {
	case <-requested:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher was not called")
	}

	resolved := s.System().Resolve()
	require.NotNil(t, resolved)
	assert.Empty(t, resolved.NotifiedContacts)
	unblock()

	require.Eventually(t, func() bool {
		last := s.System().Snapshot().LastAlert
		return last != nil && len(last.NotifiedContacts) == 1
	}, 5*time.Second, 20*time.Millisecond)
	last := s.System().Snapshot().LastAlert
	assert.Equal(t, models.AlertStatusResolved, last.Status)

	s.Stop()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCoreService_NoNotificationAfterStop(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":0,"msg":"ok","data":{"notified":["c-1"]}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Notifier.WebhookURL = srv.URL
	s, err := New(cfg, Backends{}, zap.NewNop())
	require.NoError(t, err)
	s.Stop()

	s.onEmergencyEvent(emergency.Event{
		Kind: emergency.EventAlertActivated,
		Alert: &models.EmergencyAlert{
			ID:     "alert-1",
			UserID: "kid-1",
			Type:   models.AlertTypeNoMovement,
			Status: models.AlertStatusPending,
		},
		Contacts: []models.EmergencyContact{{ID: "c-1", Phone: "+972500000001"}},
	})
	s.notifyWG.Wait()

	assert.Zero(t, atomic.LoadInt32(&calls))
}
