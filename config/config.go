// Package config provides configuration management for the recall service.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Log      LogConfig      `mapstructure:"log" validate:"required"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Storage  StorageConfig  `mapstructure:"storage"`
	EventBus EventBusConfig `mapstructure:"eventbus"`
	Context  ContextConfig  `mapstructure:"context"`
	Scenes   ScenesConfig   `mapstructure:"scenes"`
	Decay    DecayConfig    `mapstructure:"decay"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// AppConfig holds application metadata.
type AppConfig struct {
	Name string `mapstructure:"name" validate:"required"`

	// Environment is development, staging, or production.
	Environment string `mapstructure:"environment" validate:"env"`

	// NodeID identifies this process on the relay and in traces. Empty means generated.
	NodeID string `mapstructure:"node_id"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format    string `mapstructure:"format" validate:"oneof=json text"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// OpsConfig configures the operator HTTP server.
type OpsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host" validate:"omitempty,host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// Address returns host:port.
func (o OpsConfig) Address() string {
	return fmt.Sprintf("%s:%d", o.Host, o.Port)
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Type is memory or badger.
	Type   string       `mapstructure:"type" validate:"oneof=memory badger"`
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB settings.
type BadgerConfig struct {
	Path              string `mapstructure:"path"`
	InMemory          bool   `mapstructure:"in_memory"`
	SyncWrites        bool   `mapstructure:"sync_writes"`
	ValueLogFileSize  int64  `mapstructure:"value_log_file_size" validate:"gte=0"`
	NumVersionsToKeep int    `mapstructure:"num_versions_to_keep" validate:"gte=0"`
}

// EventBusConfig configures publishing.
type EventBusConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

// RetryConfig is the adapter write retry policy. MaxRetries 0 means one attempt.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gte=0"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" validate:"gtefield=InitialBackoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor" validate:"gte=1"`
}

// ContextConfig configures prompt context building.
type ContextConfig struct {
	// RecentWindow bounds the recent events included in a context.
	RecentWindow time.Duration `mapstructure:"recent_window" validate:"gt=0"`

	// StrictRecall fails BuildContext when recall tracking fails.
	StrictRecall bool `mapstructure:"strict_recall"`
}

// ScenesConfig points at an optional scene profile file.
type ScenesConfig struct {
	File     string        `mapstructure:"file" validate:"omitempty,file_exists"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// DecayConfig configures the background decay job.
type DecayConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
	StabilityHours float64       `mapstructure:"stability_hours" validate:"gt=0"`
}

// RelayConfig configures the Redis event relay.
type RelayConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Listen dispatches events relayed by other nodes on the local bus.
	Listen        bool        `mapstructure:"listen"`
	ChannelPrefix string      `mapstructure:"channel_prefix"`
	Redis         RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// GatewayConfig configures the Redis command channels that feed Publish and
// BuildContext. It shares the relay's Redis connection settings.
type GatewayConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	Workers       int           `mapstructure:"workers" validate:"min=1,max=1024"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// MetricsConfig holds Prometheus settings. Port 0 serves metrics on the ops server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	Endpoint   string            `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool              `mapstructure:"insecure"`
	Headers    map[string]string `mapstructure:"headers"`
	Timeout    time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	Sampler    string            `mapstructure:"sampler" validate:"oneof=always_on always_off parentbased_traceidratio"`
	SampleRate float64           `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a summary without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Storage: %s, Ops: %s, Relay: %t, Gateway: %t}",
		c.App.Name, c.App.Environment, c.Storage.Type, c.Ops.Address(), c.Relay.Enabled, c.Gateway.Enabled)
}
