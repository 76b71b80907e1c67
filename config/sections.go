package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/haulboard/infra/gormstore"
	"github.com/kilianp07/haulboard/infra/mqtt"
	"github.com/kilianp07/haulboard/infra/natsbus"
)

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address     string   `json:"address"`
	JWTSecret   string   `json:"jwt_secret"`
	CORSOrigins []string `json:"cors_origins"`
	// ShutdownTimeoutSec bounds the graceful shutdown of the server.
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.ShutdownTimeoutSec == 0 {
		c.ShutdownTimeoutSec = 10
	}
}

func (c HTTPConfig) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	return nil
}

// ShutdownTimeout returns ShutdownTimeoutSec as a duration.
func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects the store.
type DatabaseConfig struct {
	Driver   string           `json:"driver"`
	Postgres gormstore.Config `json:"postgres"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.Driver == DriverPostgres {
		c.Postgres.SetDefaults()
	}
}

func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		return c.Postgres.Validate()
	default:
		return fmt.Errorf("unknown driver %s", c.Driver)
	}
}

// Notification backends.
const (
	BackendNone = "none"
	BackendMQTT = "mqtt"
	BackendNATS = "nats"
)

// NotifyConfig selects the remote bus events are mirrored to.
type NotifyConfig struct {
	Backend   string         `json:"backend"`
	TimeoutMS int            `json:"timeout_ms"`
	MQTT      mqtt.Config    `json:"mqtt"`
	NATS      natsbus.Config `json:"nats"`
}

func (c *NotifyConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendNone
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 4000
	}
	switch c.Backend {
	case BackendMQTT:
		c.MQTT.SetDefaults()
	case BackendNATS:
		c.NATS.SetDefaults()
	}
}

func (c NotifyConfig) Validate() error {
	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	switch c.Backend {
	case BackendNone, BackendNATS:
		return nil
	case BackendMQTT:
		return c.MQTT.Validate()
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
}

// Timeout returns TimeoutMS as a duration.
func (c NotifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
