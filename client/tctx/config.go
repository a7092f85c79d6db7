package tctx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"github.com/webtrekk/webtrekk-go/client/data"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid webtrekk config")

type Config struct {
	// The ids of the accounts that every request is delivered to
	TrackIds []string `json:"track_ids" yaml:"track_ids" env:"WEBTREKK_TRACK_IDS" envSeparator:","`
	// The collection endpoint, e.g. https://q3.webtrekk.net
	TrackDomain string `json:"track_domain" yaml:"track_domain" env:"WEBTREKK_TRACK_DOMAIN"`
	// One of the logrus levels
	LogLevel string `json:"log_level" yaml:"log_level" env:"WEBTREKK_LOG_LEVEL"`
	// How often queued requests are sent
	RequestsIntervalMinutes int `json:"requests_interval_minutes" yaml:"requests_interval_minutes" env:"WEBTREKK_REQUESTS_INTERVAL_MINUTES"`
	// Maximum number of requests read from the queue per send cycle
	BatchSize int `json:"batch_size" yaml:"batch_size" env:"WEBTREKK_BATCH_SIZE"`
	// Requests older than this are deleted whether or not they were sent
	RetentionDays int `json:"retention_days" yaml:"retention_days" env:"WEBTREKK_RETENTION_DAYS"`
	// How often the retention cleanup runs
	CleanupIntervalHours int `json:"cleanup_interval_hours" yaml:"cleanup_interval_hours" env:"WEBTREKK_CLEANUP_INTERVAL_HOURS"`
	// Inactivity after which the next event starts a new session
	SessionTimeoutMinutes int `json:"session_timeout_minutes" yaml:"session_timeout_minutes" env:"WEBTREKK_SESSION_TIMEOUT_MINUTES"`
	// Upper bound for a single delivery
	SendTimeoutSeconds int `json:"send_timeout_seconds" yaml:"send_timeout_seconds" env:"WEBTREKK_SEND_TIMEOUT_SECONDS"`
	// Number of requests of one batch that may be in flight at the same time
	MaxParallelSends int `json:"max_parallel_sends" yaml:"max_parallel_sends" env:"WEBTREKK_MAX_PARALLEL_SENDS"`
	// Optional pacing of deliveries, 0 disables it
	MaxSendsPerSecond float64 `json:"max_sends_per_second" yaml:"max_sends_per_second" env:"WEBTREKK_MAX_SENDS_PER_SECOND"`
	// Scheduling constraints for the send job
	RequireNetwork       bool `json:"require_network" yaml:"require_network" env:"WEBTREKK_REQUIRE_NETWORK"`
	RequireBatteryNotLow bool `json:"require_battery_not_low" yaml:"require_battery_not_low" env:"WEBTREKK_REQUIRE_BATTERY_NOT_LOW"`
	// Optional DogStatsD address for delivery metrics
	StatsdAddress string `json:"statsd_address" yaml:"statsd_address" env:"WEBTREKK_STATSD_ADDRESS"`
	// Whether outgoing requests are traced with dd-trace-go
	EnableTracing bool `json:"enable_tracing" yaml:"enable_tracing" env:"WEBTREKK_ENABLE_TRACING"`
	// Reported in every request
	AppVersion       string `json:"app_version" yaml:"app_version" env:"WEBTREKK_APP_VERSION"`
	ScreenResolution string `json:"screen_resolution" yaml:"screen_resolution" env:"WEBTREKK_SCREEN_RESOLUTION"`
}

func (c *Config) RequestsInterval() time.Duration {
	return time.Duration(c.RequestsIntervalMinutes) * time.Minute
}

func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// FillDefaults sets every unset tunable to its default value.
func (c *Config) FillDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RequestsIntervalMinutes <= 0 {
		c.RequestsIntervalMinutes = 15
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
	if c.CleanupIntervalHours <= 0 {
		c.CleanupIntervalHours = 24
	}
	if c.SessionTimeoutMinutes <= 0 {
		c.SessionTimeoutMinutes = 30
	}
	if c.SendTimeoutSeconds <= 0 {
		c.SendTimeoutSeconds = 30
	}
	if c.MaxParallelSends <= 0 {
		c.MaxParallelSends = 1
	}
	if c.ScreenResolution == "" {
		c.ScreenResolution = "0x0"
	}
}

func (c *Config) Validate() error {
	if len(c.TrackIds) == 0 {
		return fmt.Errorf("%w: at least one track id is required", ErrInvalidConfig)
	}
	for _, id := range c.TrackIds {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: track ids must not be empty", ErrInvalidConfig)
		}
	}
	if c.TrackDomain == "" {
		return fmt.Errorf("%w: track domain is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.TrackDomain)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: track domain %q is not an absolute URL", ErrInvalidConfig, c.TrackDomain)
	}
	return nil
}

// finalize applies environment overrides and defaults, in that order.
func finalize(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}
	config.FillDefaults()
	return nil
}

func configPath() string {
	return path.Join(data.GetWebtrekkPath(), data.CONFIG_PATH)
}

func GetConfigContents() ([]byte, error) {
	dat, err := os.ReadFile(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read config file (try running `wtctl init`): %w", err)
	}
	return dat, nil
}

func GetConfig() (Config, error) {
	contents, err := GetConfigContents()
	if err != nil {
		return Config{}, err
	}
	var config Config
	err = json.Unmarshal(contents, &config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := finalize(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// LoadConfigFile reads a host supplied config file. Files ending in .yaml or .yml are parsed
// as YAML, anything else as JSON.
func LoadConfigFile(configFile string) (Config, error) {
	contents, err := os.ReadFile(configFile)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}
	var config Config
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(contents, &config)
	default:
		err = json.Unmarshal(contents, &config)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}
	if err := finalize(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func SetConfig(config *Config) error {
	serializedConfig, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	err = MakeWebtrekkDir()
	if err != nil {
		return err
	}
	stagedConfigPath := configPath() + ".tmp"
	err = os.WriteFile(stagedConfigPath, serializedConfig, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	err = os.Rename(stagedConfigPath, configPath())
	if err != nil {
		return fmt.Errorf("failed to replace config file with the updated version: %w", err)
	}
	return nil
}
