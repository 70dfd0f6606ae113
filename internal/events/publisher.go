package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meiriv/kids-sports-safety-app/common/redis"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Redis stream names.
const (
	EmergencyStream = "kids:emergency:events"
	SessionStream   = "kids:session:events"
)

// AlertMessage is the "data" payload of an EmergencyStream entry.
type AlertMessage struct {
	Kind  string                 `json:"kind"`
	Alert *models.EmergencyAlert `json:"alert"`
	At    time.Time              `json:"at"`
}

// SessionMessage is the "data" payload of a SessionStream entry.
type SessionMessage struct {
	Kind    string                  `json:"kind"`
	Session *models.ActivitySession `json:"session"`
	At      time.Time               `json:"at"`
}

// Publisher writes alert and session events to Redis streams. A nil
// *Publisher discards everything.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher on client.
func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger, now: time.Now}
}

// PublishAlert appends an alert transition to EmergencyStream.
func (p *Publisher) PublishAlert(ctx context.Context, kind string, alert *models.EmergencyAlert) error {
	if p == nil || alert == nil {
		return nil
	}
	id, err := redis.PublishJSONToStream(ctx, p.client, EmergencyStream, AlertMessage{
		Kind:  kind,
		Alert: alert,
		At:    p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.ID, err)
	}

	p.logger.Debug("Published alert event",
		zap.String("stream", EmergencyStream),
		zap.String("message_id", id),
		zap.String("kind", kind),
		zap.String("alert_id", alert.ID),
	)
	return nil
}

// PublishSession appends a session event to SessionStream.
func (p *Publisher) PublishSession(ctx context.Context, kind string, session *models.ActivitySession) error {
	if p == nil || session == nil {
		return nil
	}
	id, err := redis.PublishJSONToStream(ctx, p.client, SessionStream, SessionMessage{
		Kind:    kind,
		Session: session,
		At:      p.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish session %s: %w", session.ID, err)
	}

	p.logger.Debug("Published session event",
		zap.String("stream", SessionStream),
		zap.String("message_id", id),
		zap.String("kind", kind),
		zap.String("session_id", session.ID),
	)
	return nil
}
