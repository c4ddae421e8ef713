package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "500ms" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library form.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config defines the sync engine configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	DB     DBConfig     `yaml:"db"`
	Galaxy GalaxyConfig `yaml:"galaxy"`
	Sync   SyncConfig   `yaml:"sync"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host    string   `yaml:"host" validate:"required"`
	Port    int      `yaml:"port" validate:"gte=1,lte=65535"`
	APIKeys []string `yaml:"api_keys"`
}

type DBConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// GalaxyConfig holds upstream API settings. Credentials come from
// the environment only and never from the config file.
type GalaxyConfig struct {
	BaseURL  string `yaml:"base_url" validate:"required,url"`
	Timezone string `yaml:"timezone" validate:"required"`
	APIKey   string `yaml:"-"`
	Email    string `yaml:"-"`
	Password string `yaml:"-"`
}

type SyncConfig struct {
	PerPage        int      `yaml:"per_page" validate:"gte=1,lte=150"`
	Concurrency    int      `yaml:"concurrency" validate:"gte=1,lte=16"`
	Interval       Duration `yaml:"interval" validate:"gt=0"`
	RetryAttempts  int      `yaml:"retry_attempts" validate:"gte=1,lte=10"`
	RetryBaseDelay Duration `yaml:"retry_base_delay" validate:"gt=0"`
	RetryMaxDelay  Duration `yaml:"retry_max_delay" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
}

// Load reads configuration from an optional YAML file and environment
// variables. Environment variables win over the file.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		DB: DBConfig{
			Path: "galaxysync.db",
		},
		Galaxy: GalaxyConfig{
			BaseURL:  "https://api.galaxydigital.com/api",
			Timezone: "UTC",
		},
		Sync: SyncConfig{
			PerPage:        150,
			Concurrency:    3,
			Interval:       Duration(time.Minute),
			RetryAttempts:  4,
			RetryBaseDelay: Duration(500 * time.Millisecond),
			RetryMaxDelay:  Duration(time.Minute),
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("GALAXYSYNC_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("GALAXYSYNC_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("GALAXYSYNC_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid GALAXYSYNC_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if keys := os.Getenv("GALAXYSYNC_API_KEYS"); keys != "" {
		cfg.Server.APIKeys = splitAndTrim(keys)
	}
	if dbPath := os.Getenv("GALAXYSYNC_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if baseURL := os.Getenv("GALAXYSYNC_BASE_URL"); baseURL != "" {
		cfg.Galaxy.BaseURL = baseURL
	}
	if tz := os.Getenv("GALAXYSYNC_TIMEZONE"); tz != "" {
		cfg.Galaxy.Timezone = tz
	}
	if interval := os.Getenv("GALAXYSYNC_SYNC_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid GALAXYSYNC_SYNC_INTERVAL: %w", err)
		}
		cfg.Sync.Interval = Duration(d)
	}
	if level := os.Getenv("GALAXYSYNC_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	cfg.Galaxy.APIKey = os.Getenv("GALAXY_API_KEY")
	cfg.Galaxy.Email = os.Getenv("GALAXY_EMAIL")
	cfg.Galaxy.Password = os.Getenv("GALAXY_PASSWORD")
	return nil
}

// RequireCredentials reports an error when the upstream credentials
// are missing. Commands that never talk to the API skip this check.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Galaxy.APIKey == "" {
		missing = append(missing, "GALAXY_API_KEY")
	}
	if c.Galaxy.Email == "" {
		missing = append(missing, "GALAXY_EMAIL")
	}
	if c.Galaxy.Password == "" {
		missing = append(missing, "GALAXY_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Galaxy.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Galaxy.Timezone, err)
	}
	return loc, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
