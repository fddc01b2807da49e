// Package config handles loading, defaulting, and validation of the orbitwatch
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data    DataConfig    `toml:"data"    json:"data"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Server  ServerConfig  `toml:"server"  json:"server"`
	Station StationConfig `toml:"station" json:"station"`
	Sources SourcesConfig `toml:"sources" json:"sources"`
	Predict PredictConfig `toml:"predict" json:"predict"`
	Tracing TracingConfig `toml:"tracing" json:"tracing"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"`
	Format string `toml:"format" json:"format"` // text | json
	// File, when set, sends logs to a rotating file instead of stderr.
	File       string `toml:"file"         json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"  json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"  json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
}

type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

type StationConfig struct {
	Latitude     float64 `toml:"latitude"      json:"latitude"`
	Longitude    float64 `toml:"longitude"     json:"longitude"`
	Altitude     float64 `toml:"altitude"      json:"altitude"` // metres
	MinElevation float64 `toml:"min_elevation" json:"min_elevation"`
	UseGPSD      bool    `toml:"use_gpsd"      json:"use_gpsd"`
	GPSDHost     string  `toml:"gpsd_host"     json:"gpsd_host"`
}

type SourcesConfig struct {
	// Offline replays the cached catalog, TLE cache and cleanup decision
	// instead of touching the network.
	Offline        bool     `toml:"offline"         json:"offline"`
	CelesTrakURL   string   `toml:"celestrak_url"   json:"celestrak_url"`
	CelesTrakFiles []string `toml:"celestrak_files" json:"celestrak_files"`
	SatNOGSURL     string   `toml:"satnogs_url"     json:"satnogs_url"`
	TimeoutSeconds int      `toml:"timeout_seconds" json:"timeout_seconds"`
	Concurrency    int      `toml:"concurrency"     json:"concurrency"`
	// CatalogTTLHours reuses a catalog snapshot younger than this instead
	// of refetching it.
	CatalogTTLHours int `toml:"catalog_ttl_hours" json:"catalog_ttl_hours"`
}

type PredictConfig struct {
	TLERefreshHours int     `toml:"tle_refresh_hours"  json:"tle_refresh_hours"`
	LookaheadHours  int     `toml:"lookahead_hours"    json:"lookahead_hours"`
	TimeoutSeconds  int     `toml:"timeout_seconds"    json:"timeout_seconds"`
	MaxEpochAgeDays float64 `toml:"max_epoch_age_days" json:"max_epoch_age_days"`
	StepSeconds     int     `toml:"step_seconds"       json:"step_seconds"`
	ModelCacheSize  int     `toml:"model_cache_size"   json:"model_cache_size"`
	MaxParallel     int     `toml:"max_parallel"       json:"max_parallel"`
	PruneOnRefresh  bool    `toml:"prune_on_refresh"   json:"prune_on_refresh"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"      json:"enabled"`
	ServiceName string  `toml:"service_name" json:"service_name"`
	Exporter    string  `toml:"exporter"     json:"exporter"` // stdout | stderr
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "/var/lib/orbitwatch",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  64,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8001",
		},
		Station: StationConfig{
			MinElevation: 10,
			GPSDHost:     "localhost:2947",
		},
		Sources: SourcesConfig{
			CelesTrakURL:    "https://celestrak.org/NORAD/elements/",
			CelesTrakFiles:  []string{"satnogs.txt", "active.txt", "tle-new.txt"},
			SatNOGSURL:      "https://db.satnogs.org",
			TimeoutSeconds:  30,
			Concurrency:     8,
			CatalogTTLHours: 24,
		},
		Predict: PredictConfig{
			TLERefreshHours: 24,
			LookaheadHours:  24,
			TimeoutSeconds:  20,
			MaxEpochAgeDays: 30,
			StepSeconds:     60,
			ModelCacheSize:  4096,
			MaxParallel:     8,
			PruneOnRefresh:  true,
		},
		Tracing: TracingConfig{
			ServiceName: "orbitwatchd",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func Validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q must be text or json", cfg.Logging.Format)
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Station.Latitude < -90 || cfg.Station.Latitude > 90 {
		return errors.New("station.latitude must be between -90 and 90")
	}
	if cfg.Station.Longitude < -180 || cfg.Station.Longitude > 180 {
		return errors.New("station.longitude must be between -180 and 180")
	}
	if cfg.Station.MinElevation < 0 || cfg.Station.MinElevation > 90 {
		return errors.New("station.min_elevation must be between 0 and 90")
	}
	if !cfg.Sources.Offline {
		if cfg.Sources.CelesTrakURL == "" || len(cfg.Sources.CelesTrakFiles) == 0 {
			return errors.New("sources.celestrak_url and sources.celestrak_files are required unless offline")
		}
		if cfg.Sources.SatNOGSURL == "" {
			return errors.New("sources.satnogs_url is required unless offline")
		}
	}
	if cfg.Sources.TimeoutSeconds < 1 {
		return errors.New("sources.timeout_seconds must be >= 1")
	}
	if cfg.Sources.Concurrency < 1 {
		return errors.New("sources.concurrency must be >= 1")
	}
	if cfg.Predict.TLERefreshHours < 1 {
		return errors.New("predict.tle_refresh_hours must be >= 1")
	}
	if cfg.Predict.LookaheadHours < 1 {
		return errors.New("predict.lookahead_hours must be >= 1")
	}
	if cfg.Predict.TimeoutSeconds < 1 {
		return errors.New("predict.timeout_seconds must be >= 1")
	}
	if cfg.Predict.MaxEpochAgeDays < 0 {
		return errors.New("predict.max_epoch_age_days must be >= 0")
	}
	if cfg.Predict.StepSeconds < 1 || cfg.Predict.StepSeconds > 600 {
		return errors.New("predict.step_seconds must be between 1 and 600")
	}
	if cfg.Predict.MaxParallel < 1 {
		return errors.New("predict.max_parallel must be >= 1")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be between 0 and 1")
	}
	return nil
}
