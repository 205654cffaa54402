// Package config provides configuration management for the leappipe CLI.
//
// Values are layered with koanf: built-in defaults, then leappipe.yaml, then
// LEAPPIPE_ environment variables, then explicitly set command-line flags.
package config

import (
	"log/slog"
	"time"

	"github.com/leapstack-labs/leappipe/internal/work"
)

// Default configuration values.
const (
	DefaultStateFile      = ".leappipe/state.db"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultLogFormat      = "text"
	DefaultWorkers        = 1
	DefaultSpeed          = 1.0
	DefaultServerAddr     = ":8080"
	DefaultCatalogLatency = 500 * time.Millisecond
	DefaultCatalogURL     = "http://localhost:8080"
	DefaultCatalogTimeout = 5 * time.Second
)

// EngineConfig controls the execution controller.
type EngineConfig struct {
	Workers      int  `koanf:"workers"`
	StrictCycles bool `koanf:"strict_cycles"`
}

// WorkConfig selects and tunes the built-in work unit.
type WorkConfig struct {
	Mode    work.Mode     `koanf:"mode"`
	Speed   float64       `koanf:"speed"`
	Timeout time.Duration `koanf:"timeout"`
	// Seed of 0 means "derive from the clock".
	Seed uint64 `koanf:"seed"`
}

// ServerConfig holds configuration for `leappipe serve`.
type ServerConfig struct {
	Addr           string        `koanf:"addr"`
	CatalogLatency time.Duration `koanf:"catalog_latency"`
}

// CatalogConfig points the CLI at a node-type catalog service.
type CatalogConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Config holds all CLI configuration options.
type Config struct {
	LogLevel     slog.Level    `koanf:"log_level"`
	LogFormat    string        `koanf:"log_format"`
	Verbose      bool          `koanf:"verbose"`
	OutputFormat string        `koanf:"output"`
	StatePath    string        `koanf:"state_path"`
	Engine       EngineConfig  `koanf:"engine"`
	Work         WorkConfig    `koanf:"work"`
	Server       ServerConfig  `koanf:"server"`
	Catalog      CatalogConfig `koanf:"catalog"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LogLevel:     slog.LevelWarn,
		LogFormat:    DefaultLogFormat,
		OutputFormat: DefaultOutput,
		StatePath:    DefaultStateFile,
		Engine:       EngineConfig{Workers: DefaultWorkers},
		Work:         WorkConfig{Mode: work.ModeSimulated, Speed: DefaultSpeed},
		Server:       ServerConfig{Addr: DefaultServerAddr, CatalogLatency: DefaultCatalogLatency},
		Catalog:      CatalogConfig{URL: DefaultCatalogURL, Timeout: DefaultCatalogTimeout},
	}
}

// defaults is Default flattened into koanf keys.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"log_level":              d.LogLevel.String(),
		"log_format":             d.LogFormat,
		"verbose":                false,
		"output":                 d.OutputFormat,
		"state_path":             d.StatePath,
		"engine.workers":         d.Engine.Workers,
		"engine.strict_cycles":   false,
		"work.mode":              string(d.Work.Mode),
		"work.speed":             d.Work.Speed,
		"work.timeout":           "0s",
		"work.seed":              0,
		"server.addr":            d.Server.Addr,
		"server.catalog_latency": d.Server.CatalogLatency.String(),
		"catalog.url":            d.Catalog.URL,
		"catalog.timeout":        d.Catalog.Timeout.String(),
	}
}
