package emergency

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AlarmPlayer is the alarm sound side effect. Play starts looping playback,
// Stop halts it and rewinds. Play errors are logged by the System and never
// surface to callers.
type AlarmPlayer interface {
	Play() error
	Stop()
}

// LogAlarm only logs. Used when no siren device is configured.
type LogAlarm struct {
	logger *zap.Logger
}

func NewLogAlarm(logger *zap.Logger) *LogAlarm {
	return &LogAlarm{logger: logger}
}

func (a *LogAlarm) Play() error {
	a.logger.Warn("Alarm playing")
	return nil
}

func (a *LogAlarm) Stop() {
	a.logger.Info("Alarm stopped")
}

// Publisher is the subset of the MQTT client the siren needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// SirenCommand is the retained payload sent to the siren topic.
type SirenCommand struct {
	State string `json:"state"` // "on" | "off"
	Loop  bool   `json:"loop"`
	At    int64  `json:"at"`
}

// MQTTAlarm drives a networked siren (home hub or wearable) by publishing
// retained on/off commands.
type MQTTAlarm struct {
	publisher Publisher
	topic     string
	qos       byte
	logger    *zap.Logger
}

func NewMQTTAlarm(publisher Publisher, topic string, qos byte, logger *zap.Logger) *MQTTAlarm {
	return &MQTTAlarm{
		publisher: publisher,
		topic:     topic,
		qos:       qos,
		logger:    logger,
	}
}

func (a *MQTTAlarm) Play() error {
	if err := a.send("on"); err != nil {
		return fmt.Errorf("failed to start siren: %w", err)
	}
	return nil
}

func (a *MQTTAlarm) Stop() {
	if err := a.send("off"); err != nil {
		a.logger.Error("Failed to stop siren",
			zap.String("topic", a.topic),
			zap.Error(err),
		)
	}
}

func (a *MQTTAlarm) send(state string) error {
	payload, err := json.Marshal(SirenCommand{
		State: state,
		Loop:  state == "on",
		At:    time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return a.publisher.Publish(a.topic, a.qos, true, payload)
}
