package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/common/redis"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

func setupPublisher(t *testing.T) (*miniredis.Miniredis, *redis.Client, *Publisher) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p := NewPublisher(client, zap.NewNop())
	p.now = func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }
	return mr, client, p
}

func TestPublisher_PublishAlert(t *testing.T) {
	_, client, p := setupPublisher(t)
	ctx := context.Background()
	alert := &models.EmergencyAlert{
		ID:     "alert-1",
		UserID: "kid-1",
		Type:   models.AlertTypeUserInitiated,
		Status: models.AlertStatusPending,
	}

	require.NoError(t, p.PublishAlert(ctx, "alert_activated", alert))

	msgs, err := redis.ReadRange(ctx, client, EmergencyStream, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got AlertMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "alert_activated", got.Kind)
	assert.Equal(t, "alert-1", got.Alert.ID)
	assert.Equal(t, models.AlertStatusPending, got.Alert.Status)
}

func TestPublisher_PublishSession(t *testing.T) {
	_, client, p := setupPublisher(t)
	ctx := context.Background()
	session := &models.ActivitySession{ID: "s-1", UserID: "kid-1", ActivityType: "dance", Points: 15}

	require.NoError(t, p.PublishSession(ctx, "session_ended", session))

	msgs, err := redis.ReadRange(ctx, client, SessionStream, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var got SessionMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "session_ended", got.Kind)
	assert.Equal(t, 15, got.Session.Points)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher

	assert.NoError(t, p.PublishAlert(context.Background(), "alert_activated", &models.EmergencyAlert{ID: "a"}))
	assert.NoError(t, p.PublishSession(context.Background(), "session_ended", &models.ActivitySession{ID: "s"}))
}

func TestPublisher_RedisDown(t *testing.T) {
	mr, _, p := setupPublisher(t)
	mr.Close()

	err := p.PublishAlert(context.Background(), "alert_activated", &models.EmergencyAlert{ID: "alert-9"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "alert-9")
}
