package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/l1jgo/enginecore/internal/core/doc"
	"github.com/l1jgo/enginecore/internal/core/pool"
)

type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Logging LoggingConfig `toml:"logging"`

	// Systems is the [systems] table, one sub-table per system keyed by
	// system name, in file order. It is decoded separately from the struct
	// fields to keep that order.
	Systems *doc.Document `toml:"-"`

	// Env carries process-level values handed to Engine.Initialize.
	Env *doc.Document `toml:"-"`
}

type EngineConfig struct {
	EntityPoolSize    int           `toml:"entity_pool_size"`
	ComponentPoolSize int           `toml:"component_pool_size"`
	MaxBlockLength    int           `toml:"max_block_length"`
	TickRate          time.Duration `toml:"tick_rate"`
	DedicatedTickRate time.Duration `toml:"dedicated_tick_rate"`
	MainQueueLimit    int           `toml:"main_queue_limit"` // 0 = unbounded
	Templates         string        `toml:"templates"`        // entity template YAML, optional
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // rotated log file, empty = stdout only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Env.Set("configPath", path)
	return cfg, nil
}

// Parse decodes TOML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}

	all, err := doc.DecodeTOML(data)
	if err != nil {
		return nil, err
	}
	if systems, ok := all.Child("systems"); ok {
		cfg.Systems = systems
	}
	cfg.Env.Set("startTime", time.Now().Unix())
	return cfg, nil
}

func (c EngineConfig) validate() error {
	if c.EntityPoolSize < 1 {
		return fmt.Errorf("engine.entity_pool_size must be at least 1, got %d", c.EntityPoolSize)
	}
	if c.ComponentPoolSize < 1 {
		return fmt.Errorf("engine.component_pool_size must be at least 1, got %d", c.ComponentPoolSize)
	}
	if c.MaxBlockLength < 1 {
		return fmt.Errorf("engine.max_block_length must be at least 1, got %d", c.MaxBlockLength)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("engine.tick_rate must be positive, got %s", c.TickRate)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			EntityPoolSize:    1024,
			ComponentPoolSize: 256,
			MaxBlockLength:    pool.DefaultMaxBlockLength,
			TickRate:          16 * time.Millisecond,
			DedicatedTickRate: 16 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Systems: doc.New(),
		Env:     doc.New(),
	}
}
