// Package config holds the tunables of an instrumented run. Values are
// resolved in order: built-in defaults, a YAML file, a .env file plus
// SELDOM_* environment variables, and finally command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SELDOM_"

// Config is the configuration of the instrumentation pipeline.
type Config struct {
	// FrameSeconds is the length in seconds of the start and stop analysis
	// windows of a recording.
	FrameSeconds float64 `yaml:"frame_seconds"`
	// FPS is the frame rate recordings are declared with.
	FPS float64 `yaml:"fps"`
	// DurationTimes is the repetition count used when a duration is
	// measured and no explicit count was given.
	DurationTimes int `yaml:"duration_times"`
	// MemoryThreshold is the maximum allowed PSS in MB.
	MemoryThreshold float64 `yaml:"memory_threshold"`
	// DurationThreshold is the maximum allowed average duration in seconds.
	DurationThreshold float64 `yaml:"duration_threshold"`

	OutputDir    string `yaml:"output_dir"`
	KeyframesDir string `yaml:"keyframes_dir"`
	Database     string `yaml:"database"`

	Platform string `yaml:"platform"`
	Device   string `yaml:"device"`
	Package  string `yaml:"package"`
	// FramePort is the local port forwarded to the iOS MJPEG server.
	FramePort int `yaml:"frame_port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		FrameSeconds:      5,
		FPS:               45,
		DurationTimes:     3,
		MemoryThreshold:   10000,
		DurationThreshold: 10000,
		OutputDir:         "reports",
		KeyframesDir:      "keyframes",
		Database:          "reports/perf.db",
		Platform:          "Android",
		FramePort:         9100,
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv loads envFile (when it exists) into the process environment and
// applies every SELDOM_* variable on top of cfg.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	floats := map[string]*float64{
		"FRAME_SECONDS":      &c.FrameSeconds,
		"FPS":                &c.FPS,
		"MEMORY_THRESHOLD":   &c.MemoryThreshold,
		"DURATION_THRESHOLD": &c.DurationThreshold,
	}
	for name, dst := range floats {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = f
	}

	ints := map[string]*int{
		"DURATION_TIMES": &c.DurationTimes,
		"FRAME_PORT":     &c.FramePort,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	strs := map[string]*string{
		"OUTPUT_DIR":    &c.OutputDir,
		"KEYFRAMES_DIR": &c.KeyframesDir,
		"DATABASE":      &c.Database,
		"PLATFORM":      &c.Platform,
		"DEVICE":        &c.Device,
		"PACKAGE":       &c.Package,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}
	return nil
}

// Validate checks that the numeric settings are usable.
func (c Config) Validate() error {
	var errs []error
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %v", c.FPS))
	}
	if c.FrameSeconds <= 0 {
		errs = append(errs, fmt.Errorf("frame_seconds must be positive, got %v", c.FrameSeconds))
	}
	if c.DurationTimes < 1 {
		errs = append(errs, fmt.Errorf("duration_times must be at least 1, got %d", c.DurationTimes))
	}
	return errors.Join(errs...)
}

// Window is the number of frames in one analysis window.
func (c Config) Window() int {
	return int(c.FrameSeconds * c.FPS)
}

// Thresholds returns the memory (MB) and duration (s) limits.
func (c Config) Thresholds() (memory, duration float64) {
	return c.MemoryThreshold, c.DurationThreshold
}
