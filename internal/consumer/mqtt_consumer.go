package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	mqttcommon "github.com/meiriv/kids-sports-safety-app/common/mqtt"
	"github.com/meiriv/kids-sports-safety-app/internal/models"
)

// Subscriber is the part of the MQTT client the consumer uses.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// Emergency is the command surface of the emergency system.
type Emergency interface {
	Trigger(t models.AlertType) bool
	Cancel() *models.EmergencyAlert
	Resolve() *models.EmergencyAlert
}

// Command actions accepted on the emergency topic.
const (
	ActionTrigger = "trigger"
	ActionCancel  = "cancel"
	ActionResolve = "resolve"
)

// TrackingMessage is the payload of kids/<user>/tracking.
type TrackingMessage struct {
	Tracking bool `json:"tracking"`
}

// CommandMessage is the payload of kids/<user>/emergency.
type CommandMessage struct {
	Action string           `json:"action"`
	Type   models.AlertType `json:"type,omitempty"`
}

// AnyUser subscribes to the topics of every user.
const AnyUser = "+"

// MQTTConsumer feeds device messages of one user into the core.
type MQTTConsumer struct {
	client    Subscriber
	qos       byte
	emergency Emergency
	vitals    *Vitals
	tracking  *Tracking
	logger    *zap.Logger

	// subMu serializes subscription changes; mu guards userID only so
	// handlers never wait on a broker round trip.
	subMu   sync.Mutex
	started bool
	mu      sync.RWMutex
	userID  string
}

func NewMQTTConsumer(
	client Subscriber,
	userID string,
	qos byte,
	emergency Emergency,
	vitals *Vitals,
	tracking *Tracking,
	logger *zap.Logger,
) *MQTTConsumer {
	if userID == "" {
		userID = AnyUser
	}
	return &MQTTConsumer{
		client:    client,
		userID:    userID,
		qos:       qos,
		emergency: emergency,
		vitals:    vitals,
		tracking:  tracking,
		logger:    logger,
	}
}

// Topics lists the subscribed topics.
func (c *MQTTConsumer) Topics() []string {
	return topicsFor(c.currentUser())
}

func (c *MQTTConsumer) currentUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func topicsFor(userID string) []string {
	prefix := "kids/" + userID + "/"
	return []string{prefix + "tracking", prefix + "biometrics", prefix + "emergency"}
}

// Start subscribes to every topic. It does not block.
func (c *MQTTConsumer) Start(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if err := c.subscribe(ctx, c.Topics()); err != nil {
		return err
	}
	c.started = true
	c.logger.Info("MQTT consumer started", zap.Strings("topics", c.Topics()))
	return nil
}

func (c *MQTTConsumer) subscribe(ctx context.Context, topics []string) error {
	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.client.Subscribe(topic, c.qos, c.handleMessage); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}
	return nil
}

// SetUserID moves the subscriptions to the topics of userID. An empty id
// listens to every user. Messages still in flight for the previous user
// are dropped.
func (c *MQTTConsumer) SetUserID(ctx context.Context, userID string) error {
	if userID == "" {
		userID = AnyUser
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	prev := c.currentUser()
	if userID == prev {
		return nil
	}

	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	if !c.started {
		return nil
	}

	if err := c.client.Unsubscribe(topicsFor(prev)...); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.String("user_id", prev), zap.Error(err))
	}
	if err := c.subscribe(ctx, topicsFor(userID)); err != nil {
		return err
	}
	c.logger.Info("MQTT consumer switched user", zap.Strings("topics", topicsFor(userID)))
	return nil
}

// Stop unsubscribes from every topic.
func (c *MQTTConsumer) Stop() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	if err := c.client.Unsubscribe(c.Topics()...); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

func (c *MQTTConsumer) acceptsUser(userID string) bool {
	current := c.currentUser()
	return current == AnyUser || current == userID
}

func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	// kids/{user_id}/{kind}
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "kids" {
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	if !c.acceptsUser(parts[1]) {
		c.logger.Debug("Dropped message of another user", zap.String("topic", topic))
		return nil
	}

	switch parts[2] {
	case "tracking":
		return c.handleTracking(payload)
	case "biometrics":
		return c.handleBiometrics(parts[1], payload)
	case "emergency":
		return c.handleCommand(payload)
	default:
		return fmt.Errorf("unsupported topic: %s", topic)
	}
}

func (c *MQTTConsumer) handleTracking(payload []byte) error {
	var msg TrackingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal tracking message: %w", err)
	}
	c.tracking.Set(msg.Tracking)
	return nil
}

func (c *MQTTConsumer) handleBiometrics(userID string, payload []byte) error {
	var reading models.BiometricReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("failed to unmarshal biometric reading: %w", err)
	}
	if reading.UserID == "" {
		reading.UserID = userID
	}
	c.vitals.Update(reading)
	return nil
}

func (c *MQTTConsumer) handleCommand(payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal emergency command: %w", err)
	}

	switch cmd.Action {
	case ActionTrigger:
		t := cmd.Type
		if t == "" {
			t = models.AlertTypeUserInitiated
		}
		if !c.emergency.Trigger(t) {
			c.logger.Info("Emergency trigger ignored", zap.String("type", string(t)))
		}
	case ActionCancel:
		c.emergency.Cancel()
	case ActionResolve:
		c.emergency.Resolve()
	default:
		return fmt.Errorf("unknown emergency action: %q", cmd.Action)
	}
	return nil
}
