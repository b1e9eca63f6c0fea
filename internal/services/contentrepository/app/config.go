package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformcmd "github.com/louisbranch/contentgraph/internal/platform/cmd"
)

// Event store backends.
const (
	EventStoreSQLite = "sqlite"
	EventStoreBadger = "badger"
)

// Config holds process configuration. Tags omit the CONTENTGRAPH_ prefix.
type Config struct {
	EventsDBPath      string        `env:"EVENTS_DB_PATH"      envDefault:"data/events.db"`
	ProjectionsDBPath string        `env:"PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`
	SettingsPath      string        `env:"SETTINGS_PATH"       envDefault:"settings.yaml"`
	EventStore        string        `env:"EVENT_STORE"         envDefault:"sqlite"`
	BadgerPath        string        `env:"BADGER_PATH"         envDefault:"data/events.badger"`
	GRPCAddr          string        `env:"GRPC_ADDR"           envDefault:":8090"`
	MetricsAddr       string        `env:"METRICS_ADDR"        envDefault:":9090"`
	CatchUpInterval   time.Duration `env:"CATCHUP_INTERVAL"    envDefault:"5s"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch c.EventStore {
	case EventStoreSQLite:
		if strings.TrimSpace(c.EventsDBPath) == "" {
			return fmt.Errorf("events db path is required")
		}
	case EventStoreBadger:
		if strings.TrimSpace(c.BadgerPath) == "" {
			return fmt.Errorf("badger path is required")
		}
	default:
		return fmt.Errorf("unknown event store %q, want %s or %s", c.EventStore, EventStoreSQLite, EventStoreBadger)
	}
	if strings.TrimSpace(c.ProjectionsDBPath) == "" {
		return fmt.Errorf("projections db path is required")
	}
	if strings.TrimSpace(c.SettingsPath) == "" {
		return fmt.Errorf("settings path is required")
	}
	if c.CatchUpInterval < 0 {
		return fmt.Errorf("catch-up interval must not be negative")
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	return nil
}
