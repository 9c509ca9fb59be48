// Package config loads plantview settings from TOML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/chazu/plantview/pkg/geometry"
)

// Delivery modes for [notify] delivery.
const (
	DeliveryAsync = "async"
	DeliverySync  = "sync"
)

type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Notify   NotifyConfig   `toml:"notify"`
	Geometry GeometryConfig `toml:"geometry"`
	Kernel   KernelConfig   `toml:"kernel"`
	Engine   EngineConfig   `toml:"engine"`
	Store    StoreConfig    `toml:"store"`
}

type LoggingConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

type NotifyConfig struct {
	Delivery string `toml:"delivery"` // async or sync
}

type GeometryConfig struct {
	CapSamples int `toml:"cap_samples"` // points per pipe cap circle, at least 4
}

type KernelConfig struct {
	Enabled   bool `toml:"enabled"`    // tessellate views on refresh
	MeshCells int  `toml:"mesh_cells"` // marching cubes resolution
}

type EngineConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// Load reads the TOML file at path over the defaults. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info"},
		Notify:   NotifyConfig{Delivery: DeliveryAsync},
		Geometry: GeometryConfig{CapSamples: 16},
		Kernel:   KernelConfig{Enabled: true, MeshCells: 200},
		Engine:   EngineConfig{Timeout: 5 * time.Second},
		Store:    StoreConfig{Path: "plantview.db"},
	}
}

// Validate rejects settings the rest of the system cannot honor.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Notify.Delivery {
	case DeliveryAsync, DeliverySync:
	default:
		return fmt.Errorf("notify.delivery: unknown mode %q, want %q or %q", c.Notify.Delivery, DeliveryAsync, DeliverySync)
	}
	if c.Geometry.CapSamples < geometry.MinCapSamples {
		return fmt.Errorf("geometry.cap_samples: %d is below the minimum of %d", c.Geometry.CapSamples, geometry.MinCapSamples)
	}
	if c.Kernel.MeshCells < 8 {
		return fmt.Errorf("kernel.mesh_cells: %d is below the minimum of 8", c.Kernel.MeshCells)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout: must be positive, got %s", c.Engine.Timeout)
	}
	return nil
}

// Level returns the parsed logging level, falling back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.Logging.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Synchronous reports whether notifications are delivered inline.
func (c *Config) Synchronous() bool {
	return c.Notify.Delivery == DeliverySync
}
