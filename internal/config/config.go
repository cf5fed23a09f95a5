// Package config loads process-wide configuration from the environment
// using caarlos0/env-tagged struct fields.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the engine's full process-wide configuration surface.
type Config struct {
	// AuthSecret is the shared secret every externally callable operation
	// is checked against. Empty means the server is deliberately left
	// unconfigured and every Auth Gate check fails fast.
	AuthSecret string `env:"ENGINE_AUTH_SECRET"`

	// SQLitePath is the path to the SQLite database file.
	SQLitePath string `env:"ENGINE_SQLITE_PATH" envDefault:"engine.db"`

	// NATSURL enables the optional cross-process notifier fan-out when set.
	NATSURL string `env:"ENGINE_NATS_URL"`

	// WatchDebounce is the minimum interval between consecutive
	// watchQueue re-evaluations for one namespace.
	WatchDebounce time.Duration `env:"ENGINE_WATCH_DEBOUNCE" envDefault:"250ms"`

	// MaxChainDepth is loaded from the environment but not read by any
	// service: the assignment chain walk uses its own fixed bound of 10000
	// groups, and the scheduler walk relies on its visited set alone.
	MaxChainDepth int `env:"ENGINE_MAX_CHAIN_DEPTH" envDefault:"10000"`

	Temporal TemporalConfig `envPrefix:"ENGINE_TEMPORAL_"`
}

// TemporalConfig configures the optional durable-workflow integration.
type TemporalConfig struct {
	Enabled   bool   `env:"ENABLED" envDefault:"false"`
	HostPort  string `env:"HOST_PORT" envDefault:"localhost:7233"`
	Namespace string `env:"NAMESPACE" envDefault:"default"`
	TaskQueue string `env:"TASK_QUEUE" envDefault:"engine-group-chain"`
}

// Load reads Config from the environment, applying envDefault tags for any
// variable left unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
