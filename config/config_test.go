package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `http:
  address: ":9000"
  jwt_secret: "s3cret"
  cors_origins: ["https://planner.example"]
database:
  driver: "postgres"
  postgres:
    dsn: "host=db user=hb"
notify:
  backend: "mqtt"
  timeout_ms: 1500
  mqtt:
    broker: "tcp://localhost:1883"
    qos: 1
planning:
  guard_assignments: true
maintenance:
  repair_schedule: "@every 1h"
metrics:
  prometheus_enabled: true
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"http.address", cfg.HTTP.Address, ":9000"},
		{"http.jwt_secret", cfg.HTTP.JWTSecret, "s3cret"},
		{"http.cors_origins", len(cfg.HTTP.CORSOrigins), 1},
		{"database.driver", cfg.Database.Driver, DriverPostgres},
		{"database.postgres.dsn", cfg.Database.Postgres.DSN, "host=db user=hb"},
		{"database.postgres.max_open_conns", cfg.Database.Postgres.MaxOpenConns, 50},
		{"notify.backend", cfg.Notify.Backend, BackendMQTT},
		{"notify.timeout", cfg.Notify.Timeout().Milliseconds(), int64(1500)},
		{"notify.mqtt.qos", cfg.Notify.MQTT.QoS, byte(1)},
		{"notify.mqtt.topic_prefix", cfg.Notify.MQTT.TopicPrefix, "haulboard"},
		{"planning.guard_assignments", cfg.Planning.GuardAssignments, true},
		{"maintenance.repair_schedule", cfg.Maintenance.RepairSchedule, "@every 1h"},
		{"metrics.prometheus_port", cfg.Metrics.PrometheusPort, "9090"},
		{"logging.level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"http":{"jwt_secret":"x"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, BackendNone, cfg.Notify.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeFile(t, "config.yaml", "http:\n  jwt_secret: \"file\"\n")
	t.Setenv("HB_HTTP__JWT_SECRET", "env")
	t.Setenv("HB_NOTIFY__BACKEND", "nats")
	t.Setenv("HB_NOTIFY__NATS__URL", "nats://bus:4222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.HTTP.JWTSecret)
	assert.Equal(t, BackendNATS, cfg.Notify.Backend)
	assert.Equal(t, "nats://bus:4222", cfg.Notify.NATS.URL)
	assert.Equal(t, "haulboard", cfg.Notify.NATS.SubjectPrefix)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("HB_HTTP__JWT_SECRET", "env")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.HTTP.JWTSecret)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"format", "config.toml", "x = 1"},
		{"missing secret", "config.yaml", "http:\n  address: \":1\"\n"},
		{"driver", "config.yaml", "http:\n  jwt_secret: x\ndatabase:\n  driver: mongo\n"},
		{"postgres dsn", "config.yaml", "http:\n  jwt_secret: x\ndatabase:\n  driver: postgres\n"},
		{"backend", "config.yaml", "http:\n  jwt_secret: x\nnotify:\n  backend: kafka\n"},
		{"mqtt broker", "config.yaml", "http:\n  jwt_secret: x\nnotify:\n  backend: mqtt\n"},
		{"level", "config.yaml", "http:\n  jwt_secret: x\nlogging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoggingFileConfig(t *testing.T) {
	c := LoggingConfig{File: "hb.log"}
	c.SetDefaults()
	fc := c.FileConfig()
	assert.Equal(t, "hb.log", fc.Path)
	assert.Equal(t, 100, fc.MaxSizeMB)
}
