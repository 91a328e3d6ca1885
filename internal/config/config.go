// Package config loads vocalx settings. Sources are applied in order:
// built-in defaults, the TOML file, a .env file in the working directory,
// then VOCALX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "VOCALX_"

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "vocalx.toml"

// Duration is a time.Duration spelled "250ms", "1s" in files and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServerConfig points at the processing backend.
type ServerConfig struct {
	URL            string   `toml:"url" env:"URL"`
	Timeout        Duration `toml:"timeout" env:"TIMEOUT"`
	OfflineCatalog bool     `toml:"offline_catalog" env:"OFFLINE_CATALOG"`
}

// LimitsConfig holds the upload ceilings in megabytes.
type LimitsConfig struct {
	AudioMB   int64 `toml:"audio_mb" env:"AUDIO_MB"`
	CloneMB   int64 `toml:"clone_mb" env:"CLONE_MB"`
	VideoMB   int64 `toml:"video_mb" env:"VIDEO_MB"`
	EffectsMB int64 `toml:"effects_mb" env:"EFFECTS_MB"`
}

// CaptureConfig selects the microphone and meter behaviour.
type CaptureConfig struct {
	SampleRate    int      `toml:"sample_rate" env:"SAMPLE_RATE"`
	Channels      int      `toml:"channels" env:"CHANNELS"`
	Device        string   `toml:"device" env:"DEVICE"`
	MeterInterval Duration `toml:"meter_interval" env:"METER_INTERVAL"`
	MeterBuckets  int      `toml:"meter_buckets" env:"METER_BUCKETS"`
	TempDir       string   `toml:"temp_dir" env:"TEMP_DIR"`
}

// PreviewConfig tunes the live effects preview.
type PreviewConfig struct {
	Quantum    Duration `toml:"quantum" env:"QUANTUM"`
	MinSpacing Duration `toml:"min_spacing" env:"MIN_SPACING"`
	ClipLimit  Duration `toml:"clip_limit" env:"CLIP_LIMIT"`
}

// PipelineConfig tunes the upload/process jobs.
type PipelineConfig struct {
	GracePeriod Duration `toml:"grace_period" env:"GRACE_PERIOD"`
}

// StoreConfig controls where saved voices live.
type StoreConfig struct {
	Path     string `toml:"path" env:"PATH"`
	Fallback bool   `toml:"fallback" env:"FALLBACK"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level" env:"LEVEL"`
	File  string `toml:"file" env:"FILE"`
}

// Config is the full set of settings.
type Config struct {
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Limits   LimitsConfig   `toml:"limits" envPrefix:"LIMITS_"`
	Capture  CaptureConfig  `toml:"capture" envPrefix:"CAPTURE_"`
	Preview  PreviewConfig  `toml:"preview" envPrefix:"PREVIEW_"`
	Pipeline PipelineConfig `toml:"pipeline" envPrefix:"PIPELINE_"`
	Store    StoreConfig    `toml:"store" envPrefix:"STORE_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:     "http://localhost:8001",
			Timeout: Duration{5 * time.Minute},
		},
		Limits: LimitsConfig{
			AudioMB:   25,
			CloneMB:   50,
			VideoMB:   100,
			EffectsMB: 50,
		},
		Capture: CaptureConfig{
			SampleRate:    16000,
			Channels:      1,
			MeterInterval: Duration{50 * time.Millisecond},
			MeterBuckets:  50,
		},
		Preview: PreviewConfig{
			Quantum:    Duration{time.Second},
			MinSpacing: Duration{250 * time.Millisecond},
			ClipLimit:  Duration{10 * time.Second},
		},
		Pipeline: PipelineConfig{
			GracePeriod: Duration{2 * time.Second},
		},
		Store: StoreConfig{
			Path:     ".vocalx/voices.db",
			Fallback: true,
		},
		Log: LogConfig{
			Level: "normal",
			File:  ".vocalx-logs/vocalx.log",
		},
	}
}

// Load reads the config file at path (a missing file is fine), then
// applies .env and the environment on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positiveDur := func(name string, d Duration) {
		if d.Duration <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.Server.URL == "" {
		errs = append(errs, errors.New("server.url is empty"))
	}
	positiveDur("server.timeout", c.Server.Timeout)
	positive("limits.audio_mb", c.Limits.AudioMB)
	positive("limits.clone_mb", c.Limits.CloneMB)
	positive("limits.video_mb", c.Limits.VideoMB)
	positive("limits.effects_mb", c.Limits.EffectsMB)
	positive("capture.sample_rate", int64(c.Capture.SampleRate))
	positive("capture.channels", int64(c.Capture.Channels))
	positiveDur("capture.meter_interval", c.Capture.MeterInterval)
	positive("capture.meter_buckets", int64(c.Capture.MeterBuckets))
	positiveDur("preview.quantum", c.Preview.Quantum)
	if c.Preview.MinSpacing.Duration < 0 {
		errs = append(errs, fmt.Errorf("preview.min_spacing must not be negative, got %s", c.Preview.MinSpacing))
	}
	positiveDur("preview.clip_limit", c.Preview.ClipLimit)
	if c.Pipeline.GracePeriod.Duration < 0 {
		errs = append(errs, fmt.Errorf("pipeline.grace_period must not be negative, got %s", c.Pipeline.GracePeriod))
	}

	return errors.Join(errs...)
}

// MB converts a megabyte ceiling to bytes.
func MB(n int64) int64 { return n * 1024 * 1024 }
