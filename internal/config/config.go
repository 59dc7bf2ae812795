package config

import (
	"fmt"
	"strings"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/ifuryst/postcast/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Publisher PublisherConfig `yaml:"publisher"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type         string `yaml:"type"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	TimeZone     string `yaml:"timezone"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	LogSQL       bool   `yaml:"log_sql"`
}

// StorageConfig describes the managed media area and how its files are served.
type StorageConfig struct {
	Dir            string `yaml:"dir"`
	Route          string `yaml:"route"`
	PublicBaseURL  string `yaml:"public_base_url"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type SchedulerConfig struct {
	Enabled     *bool  `yaml:"enabled"`
	Interval    string `yaml:"interval"`
	ScanTimeout string `yaml:"scan_timeout"`
	// Timezone applied to scheduled_at values that carry no offset.
	Timezone string `yaml:"timezone"`
}

// IsEnabled defaults to true when the flag is absent.
func (c SchedulerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c SchedulerConfig) IntervalDuration() (time.Duration, error) {
	return parsePositiveDuration("scheduler.interval", c.Interval)
}

func (c SchedulerConfig) ScanTimeoutDuration() (time.Duration, error) {
	return parsePositiveDuration("scheduler.scan_timeout", c.ScanTimeout)
}

// Location resolves Timezone, falling back to the host zone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

type PublisherConfig struct {
	Instagram PlatformConfig `yaml:"instagram"`
	WhatsApp  PlatformConfig `yaml:"whatsapp"`
}

type PlatformConfig struct {
	Enabled         bool    `yaml:"enabled"`
	RatePerMinute   float64 `yaml:"rate_per_minute"`
	MaxCaptionChars int     `yaml:"max_caption_chars"`
	SimulateFailure bool    `yaml:"simulate_failure"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		if cfg.Database.Type == "mysql" {
			cfg.Database.Port = 3306
		} else {
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "uploads"
	}
	if cfg.Storage.Route == "" {
		cfg.Storage.Route = "/uploads"
	}
	cfg.Storage.Route = "/" + strings.Trim(cfg.Storage.Route, "/")
	if cfg.Storage.PublicBaseURL == "" {
		cfg.Storage.PublicBaseURL = fmt.Sprintf("http://%s:%d%s/", cfg.Server.Host, cfg.Server.Port, cfg.Storage.Route)
	}
	if !strings.HasSuffix(cfg.Storage.PublicBaseURL, "/") {
		cfg.Storage.PublicBaseURL += "/"
	}
	if cfg.Storage.MaxUploadBytes == 0 {
		cfg.Storage.MaxUploadBytes = 50 << 20
	}
	if cfg.Scheduler.Interval == "" {
		cfg.Scheduler.Interval = "10s"
	}
	if cfg.Scheduler.ScanTimeout == "" {
		cfg.Scheduler.ScanTimeout = "5m"
	}
	if cfg.Publisher.Instagram.MaxCaptionChars == 0 {
		cfg.Publisher.Instagram.MaxCaptionChars = 2200
	}
	if cfg.Publisher.WhatsApp.MaxCaptionChars == 0 {
		cfg.Publisher.WhatsApp.MaxCaptionChars = 1024
	}
}

// Validate checks values that would otherwise only fail once the server runs.
func (cfg *Config) Validate() error {
	switch cfg.Database.Type {
	case "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if _, err := cfg.Scheduler.IntervalDuration(); err != nil {
		return err
	}
	if _, err := cfg.Scheduler.ScanTimeoutDuration(); err != nil {
		return err
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		return fmt.Errorf("invalid scheduler.timezone: %w", err)
	}
	return nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", name, value)
	}
	return d, nil
}
