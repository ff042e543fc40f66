package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "recall",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Ops: OpsConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1 << 30,
				NumVersionsToKeep: 1,
			},
		},
		EventBus: EventBusConfig{
			Retry: RetryConfig{
				MaxRetries:     0,
				InitialBackoff: 50 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
				BackoffFactor:  2,
			},
		},
		Context: ContextConfig{
			RecentWindow: 6 * time.Hour,
		},
		Scenes: ScenesConfig{
			Debounce: 500 * time.Millisecond,
		},
		Decay: DecayConfig{
			Enabled:        false,
			Interval:       time.Hour,
			StabilityHours: 72,
		},
		Relay: RelayConfig{
			Enabled:       false,
			Listen:        true,
			ChannelPrefix: "recall:event:",
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
		},
		Gateway: GatewayConfig{
			Enabled:       false,
			ChannelPrefix: "recall:cmd:",
			Workers:       8,
			Timeout:       5 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    0,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Insecure:   true,
			Timeout:    5 * time.Second,
			Sampler:    "parentbased_traceidratio",
			SampleRate: 0.1,
		},
	}
}
