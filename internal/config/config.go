package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/meiriv/kids-sports-safety-app/common/config"
)

// Config is the kids-safety-core service configuration.
type Config struct {
	Database  config.DatabaseConfig
	DBEnabled bool

	Redis        config.RedisConfig
	RedisEnabled bool

	MQTT        config.MQTTConfig
	MQTTEnabled bool

	HTTP struct {
		Addr string
	}

	Emergency struct {
		CountdownSeconds int
		MonitorInterval  time.Duration
		SirenTopic       string // empty: log alarm only
	}

	Leaderboard struct {
		BaseURL string // empty: development boards from MockSource
		Refresh string // cron schedule
		Timeout time.Duration
	}

	Notifier struct {
		WebhookURL string // empty: contacts are not notified
		Timeout    time.Duration
	}

	User struct {
		ID          string
		DisplayName string
	}

	DefaultLanguage string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "kids_safety",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = config.GetEnvBool("DB_ENABLED", true)

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.RedisEnabled = config.GetEnvBool("REDIS_ENABLED", true)

	cfg.MQTT = config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "kids-safety-core",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")
	cfg.MQTTEnabled = config.GetEnvBool("MQTT_ENABLED", true)

	cfg.HTTP.Addr = config.GetEnv("HTTP_ADDR", ":8080")

	cfg.Emergency.CountdownSeconds = config.GetEnvInt("EMERGENCY_COUNTDOWN_SECONDS", 10)
	cfg.Emergency.MonitorInterval = config.GetEnvDuration("EMERGENCY_MONITOR_INTERVAL", 5*time.Second)
	cfg.Emergency.SirenTopic = config.GetEnv("EMERGENCY_SIREN_TOPIC", "")

	cfg.Leaderboard.BaseURL = config.GetEnv("LEADERBOARD_BASE_URL", "")
	cfg.Leaderboard.Refresh = config.GetEnv("LEADERBOARD_REFRESH", "@every 5m")
	cfg.Leaderboard.Timeout = config.GetEnvDuration("LEADERBOARD_TIMEOUT", 5*time.Second)

	cfg.Notifier.WebhookURL = config.GetEnv("NOTIFIER_WEBHOOK_URL", "")
	cfg.Notifier.Timeout = config.GetEnvDuration("NOTIFIER_TIMEOUT", 10*time.Second)

	cfg.User.ID = config.GetEnv("SERVICE_USER_ID", "")
	cfg.User.DisplayName = config.GetEnv("SERVICE_USER_NAME", "")

	cfg.DefaultLanguage = config.GetEnv("DEFAULT_LANGUAGE", "en")

	cfg.Log.Level = config.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot default silently.
func (c *Config) Validate() error {
	if c.Emergency.CountdownSeconds <= 0 {
		return fmt.Errorf("EMERGENCY_COUNTDOWN_SECONDS must be positive, got %d", c.Emergency.CountdownSeconds)
	}
	if _, err := cron.ParseStandard(c.Leaderboard.Refresh); err != nil {
		return fmt.Errorf("invalid LEADERBOARD_REFRESH %q: %w", c.Leaderboard.Refresh, err)
	}
	return nil
}
