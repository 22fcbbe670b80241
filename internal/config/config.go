// Package config holds the runtime configuration for image sources, the
// downloader, the asset library and the tool server.
package config

import (
	"os"
	"strconv"
	"time"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvLogLevel  = "IMAGE_SOURCE_LOG_LEVEL"
	EnvTempDir   = "IMAGE_SOURCE_TEMP_DIR"
	EnvAssetRoot = "IMAGE_SOURCE_ASSET_ROOT"
)

// Config is the top-level configuration struct. Start from Default and
// override only what is needed.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Queues  QueueConfig   `yaml:"queues"`
	Remote  RemoteConfig  `yaml:"remote"`
	Crop    CropConfig    `yaml:"crop"`
	Assets  AssetConfig   `yaml:"assets"`
	Encode  EncodeConfig  `yaml:"encode"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// QueueConfig sets the concurrency ceiling of each backend queue.
// A limit of zero or less means unbounded.
type QueueConfig struct {
	Local  int `yaml:"local"`
	Remote int `yaml:"remote"`
	Asset  int `yaml:"asset"`
	Crop   int `yaml:"crop"`
}

// RemoteConfig configures the HTTP downloader.
type RemoteConfig struct {
	CacheEntries  int           `yaml:"cache_entries"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	// MaxBytes caps the size of a downloaded body.
	MaxBytes int64 `yaml:"max_bytes"`
}

// CropConfig configures derived (cropped) sources.
type CropConfig struct {
	TempDir    string `yaml:"temp_dir"`
	Background string `yaml:"background"`
}

// AssetConfig configures the directory-backed asset library.
type AssetConfig struct {
	Root           string        `yaml:"root"`
	PreviewSize    int           `yaml:"preview_size"`
	ProgressSteps  int           `yaml:"progress_steps"`
	SimulatedDelay time.Duration `yaml:"simulated_delay"`
}

// EncodeConfig controls JPEG output.
type EncodeConfig struct {
	JPEGQuality int `yaml:"jpeg_quality"`
}

// MetricsConfig toggles the prometheus recorder.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Queues: QueueConfig{
			Local:  3,
			Remote: 3,
			Asset:  0,
			Crop:   2,
		},
		Remote: RemoteConfig{
			CacheEntries:  64,
			MaxAttempts:   3,
			RetryInterval: 250 * time.Millisecond,
			UserAgent:     "image-source",
			MaxBytes:      64 << 20,
		},
		Crop: CropConfig{
			TempDir:    os.TempDir(),
			Background: "#000000",
		},
		Assets: AssetConfig{
			PreviewSize:   64,
			ProgressSteps: 4,
		},
		Encode: EncodeConfig{
			JPEGQuality: 90,
		},
		Metrics: MetricsConfig{
			Namespace: "image_source",
		},
	}
}

// Load reads a YAML file over the defaults and then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	ApplyEnv(&cfg)
	return cfg, Validate(cfg)
}

// ApplyEnv overrides fields from IMAGE_SOURCE_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvTempDir); v != "" {
		cfg.Crop.TempDir = v
	}
	if v := os.Getenv(EnvAssetRoot); v != "" {
		cfg.Assets.Root = v
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("config: unknown log level %q", c.LogLevel)
	}
	if c.Encode.JPEGQuality < 1 || c.Encode.JPEGQuality > 100 {
		return errors.New("config: encode.jpeg_quality must be between 1 and 100")
	}
	if c.Remote.MaxAttempts < 1 {
		return errors.New("config: remote.max_attempts must be at least 1")
	}
	if c.Remote.CacheEntries < 1 {
		return errors.New("config: remote.cache_entries must be at least 1")
	}
	if c.Remote.MaxBytes < 1 {
		return errors.New("config: remote.max_bytes must be at least 1")
	}
	if _, err := c.Crop.BackgroundColor(); err != nil {
		return err
	}
	return nil
}

// BackgroundColor parses the crop background hex colour.
func (c CropConfig) BackgroundColor() (colorful.Color, error) {
	if c.Background == "" {
		return colorful.Color{}, nil
	}
	col, err := colorful.Hex(c.Background)
	if err != nil {
		return colorful.Color{}, errors.Wrapf(err, "config: crop.background %s", strconv.Quote(c.Background))
	}
	return col, nil
}
