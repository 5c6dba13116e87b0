// Package config provides configuration loading from environment variables.
package config

import (
	"log/slog"
	"time"

	"github.com/joho/godotenv"
)

// ServiceConfig holds configuration for the laserops service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	// Persistence. Empty DSN selects the in-memory stores.
	PostgresDSN string

	// Machine probing. Empty schedule disables the probe loop.
	ProbeSchedule string

	// Lifecycle event webhook. Empty URL disables the notifier.
	WebhookURL        string
	WebhookSigningKey string

	// Progress ingest over MQTT. Empty broker disables the subscriber.
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Telemetry sink. Empty URL disables the Influx writer.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// LoadServiceConfig loads service configuration from the environment.
// A .env file in the working directory is applied first if present.
func LoadServiceConfig() *ServiceConfig {
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		PostgresDSN:       GetEnv("POSTGRES_DSN", ""),
		ProbeSchedule:     GetEnv("PROBE_SCHEDULE", ""),
		WebhookURL:        GetEnv("WEBHOOK_URL", ""),
		WebhookSigningKey: GetSecretFile(GetEnv("WEBHOOK_SIGNING_KEY_FILE", "")),
		MQTTBroker:        GetEnv("MQTT_BROKER", ""),
		MQTTClientID:      GetEnv("MQTT_CLIENT_ID", "laserops-service"),
		MQTTUsername:      GetEnv("MQTT_USER", ""),
		MQTTPassword:      GetEnv("MQTT_PASS", ""),
		InfluxURL:         GetEnv("INFLUX_URL", ""),
		InfluxToken:       GetEnv("INFLUX_TOKEN", ""),
		InfluxOrg:         GetEnv("INFLUX_ORG", "laserops"),
		InfluxBucket:      GetEnv("INFLUX_BUCKET", "machine_telemetry"),
	}
}
