package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jgoulah/gridview/pkg/models"
)

// EnvPrefix prefixes environment overrides, e.g. GRIDVIEW_API_URL
const EnvPrefix = "GRIDVIEW"

// Config holds the application configuration
type Config struct {
	API      APIConfig     `yaml:"api" envconfig:"API"`
	View     ViewConfig    `yaml:"view,omitempty" envconfig:"VIEW"`
	MQTT     MQTTConfig    `yaml:"mqtt,omitempty" envconfig:"MQTT"`
	Server   ServerConfig  `yaml:"server,omitempty" envconfig:"SERVER"`
	Capture  CaptureConfig `yaml:"capture,omitempty" envconfig:"CAPTURE"`
	Fetch    FetchConfig   `yaml:"fetch,omitempty" envconfig:"FETCH"`
	LogLevel string        `yaml:"log_level,omitempty" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
}

// APIConfig holds the grid data backend settings
type APIConfig struct {
	URL        string        `yaml:"url" envconfig:"URL" validate:"omitempty,url"` // e.g., "http://localhost:5000/api"
	Token      string        `yaml:"token,omitempty" envconfig:"TOKEN"`
	Timeout    time.Duration `yaml:"timeout,omitempty" envconfig:"TIMEOUT" validate:"gte=0"`
	MaxRetries int           `yaml:"max_retries,omitempty" envconfig:"MAX_RETRIES" validate:"gte=0,lte=20"`
}

// ViewConfig holds dashboard navigation settings
type ViewConfig struct {
	DefaultHour int  `yaml:"default_hour,omitempty" envconfig:"DEFAULT_HOUR" validate:"omitempty,min=1,max=24"` // Fallback: 12
	AllowReturn bool `yaml:"allow_return,omitempty" envconfig:"ALLOW_RETURN"`                                // Explicit back-to-overview action
}

// MQTTConfig holds MQTT broker settings for snapshot publishing
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	Broker      string `yaml:"broker" envconfig:"BROKER" validate:"required_if=Enabled true"` // e.g., "localhost:1883"
	Username    string `yaml:"username,omitempty" envconfig:"USERNAME"`
	Password    string `yaml:"password,omitempty" envconfig:"PASSWORD"`
	TopicPrefix string `yaml:"topic_prefix,omitempty" envconfig:"TOPIC_PREFIX"`
}

// ServerConfig holds the live dashboard server settings
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty" envconfig:"ADDR"`
}

// CaptureConfig holds map screenshot settings
type CaptureConfig struct {
	Width   int           `yaml:"width,omitempty" envconfig:"WIDTH" validate:"gte=0"`
	Height  int           `yaml:"height,omitempty" envconfig:"HEIGHT" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout,omitempty" envconfig:"TIMEOUT" validate:"gte=0"`
}

// FetchConfig holds cache sync settings
type FetchConfig struct {
	Concurrency int `yaml:"concurrency,omitempty" envconfig:"CONCURRENCY" validate:"gte=0,lte=24"`
}

var validate = validator.New()

// Load reads the config file, applies GRIDVIEW_* environment overrides and validates the result
func Load(configPath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// Missing file means defaults plus environment
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// GetAPITimeout returns the per-request timeout, default 30s
func (c *Config) GetAPITimeout() time.Duration {
	if c.API.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.API.Timeout
}

// GetMaxRetries returns how often a failed API request is retried, default 3
func (c *Config) GetMaxRetries() int {
	if c.API.MaxRetries <= 0 {
		return 3
	}
	return c.API.MaxRetries
}

// GetDefaultHour returns the hour selected when a session starts
func (c *Config) GetDefaultHour() int {
	if !models.ValidHour(c.View.DefaultHour) {
		return models.DefaultHour
	}
	return c.View.DefaultHour
}

// GetTopicPrefix returns the MQTT topic prefix, default "gridview"
func (c *Config) GetTopicPrefix() string {
	if c.MQTT.TopicPrefix == "" {
		return "gridview"
	}
	return c.MQTT.TopicPrefix
}

// GetServerAddr returns the listen address of the dashboard server
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return ":8080"
	}
	return c.Server.Addr
}

// GetCaptureSize returns the screenshot viewport, default 1280x800
func (c *Config) GetCaptureSize() (int, int) {
	w, h := c.Capture.Width, c.Capture.Height
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 800
	}
	return w, h
}

// GetCaptureTimeout returns how long a screenshot may take, default 60s
func (c *Config) GetCaptureTimeout() time.Duration {
	if c.Capture.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Capture.Timeout
}

// GetFetchConcurrency returns how many hours are synced in parallel, default 4
func (c *Config) GetFetchConcurrency() int {
	if c.Fetch.Concurrency <= 0 {
		return 4
	}
	return c.Fetch.Concurrency
}
