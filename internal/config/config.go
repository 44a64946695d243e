package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	LogLevel      string
	MQTTBrokerURL string
	MQTTClientID  string
	Topics        Topics
	RedisAddr     string
	RedisPassword string
	RetentionDays int
	RetentionCron string
	Postgres      DBConfig
}

// Topics is the fixed topic set for the process lifetime; no dynamic
// subscription management exists.
type Topics struct {
	Telemetry     string
	DeviceStatus  string
	DeviceControl string
	AlarmControl  string
}

type DBConfig struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     string
	SSLMode  string
}

func Load() *Config {
	cfg := &Config{
		Port:          getEnv("SENSOR_HUB_PORT", "8094"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		MQTTBrokerURL: strings.TrimSpace(os.Getenv("MQTT_BROKER_URL")),
		MQTTClientID:  getEnv("SENSOR_HUB_MQTT_CLIENT_ID", "sensor-hub"),
		Topics: Topics{
			Telemetry:     getEnv("TOPIC_TELEMETRY", "sensor/data"),
			DeviceStatus:  getEnv("TOPIC_DEVICE_STATUS", "device/status"),
			DeviceControl: getEnv("TOPIC_DEVICE_CONTROL", "control/led"),
			AlarmControl:  getEnv("TOPIC_ALARM_CONTROL", "control/alarm"),
		},
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RetentionDays: parseInt(getEnv("TELEMETRY_RETENTION_DAYS", "0")),
		RetentionCron: getEnv("TELEMETRY_RETENTION_CRON", "30 3 * * *"),
		Postgres: DBConfig{
			User:     strings.TrimSpace(os.Getenv("POSTGRES_USER")),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   strings.TrimSpace(os.Getenv("POSTGRES_DB")),
			Host:     strings.TrimSpace(os.Getenv("POSTGRES_HOST")),
			Port:     strings.TrimSpace(os.Getenv("POSTGRES_PORT")),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
	}

	slog.Info("sensor-hub config loaded", "port", cfg.Port, "mqtt", cfg.MQTTBrokerURL, "telemetry_topic", cfg.Topics.Telemetry)
	return cfg
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseInt(val string) int {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return 0
	}
	return n
}
