package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN returns the lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv overrides fields from <prefix>_HOST, <prefix>_PORT, ...
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	c.Host = GetEnv(prefix+"_HOST", c.Host)
	c.Port = GetEnvInt(prefix+"_PORT", c.Port)
	c.User = GetEnv(prefix+"_USER", c.User)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	c.Database = GetEnv(prefix+"_NAME", c.Database)
	c.SSLMode = GetEnv(prefix+"_SSLMODE", c.SSLMode)
	c.MaxConns = GetEnvInt(prefix+"_MAX_CONNS", c.MaxConns)
	c.MaxIdle = GetEnvInt(prefix+"_MAX_IDLE", c.MaxIdle)
}

// LoadFromEnv overrides fields from <prefix>_ADDR, <prefix>_PASSWORD, <prefix>_DB.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	c.Addr = GetEnv(prefix+"_ADDR", c.Addr)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	c.DB = GetEnvInt(prefix+"_DB", c.DB)
}

// LoadFromEnv overrides fields from <prefix>_BROKER, <prefix>_CLIENT_ID, ...
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	c.Broker = GetEnv(prefix+"_BROKER", c.Broker)
	c.ClientID = GetEnv(prefix+"_CLIENT_ID", c.ClientID)
	c.Username = GetEnv(prefix+"_USERNAME", c.Username)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	if qos := GetEnvInt(prefix+"_QOS", int(c.QoS)); qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

// GetEnv returns the value of key, or defaultValue when unset or empty.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt parses key as an int; unparsable values fall back to defaultValue.
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

// GetEnvBool parses key with strconv.ParseBool.
func GetEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetEnvDuration parses key with time.ParseDuration ("5s", "1m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
