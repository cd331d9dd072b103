package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBaseURL = "https://api.promethium.qcware.com"
	DefaultGPUType = "a100"
)

// Config holds the configuration for the application.
type Config struct {
	API struct {
		BaseURL         string        `mapstructure:"base_url"`
		Key             string        `mapstructure:"key"`
		CredentialsFile string        `mapstructure:"credentials_file"`
		Timeout         time.Duration `mapstructure:"timeout"`
	} `mapstructure:"api"`
	Resources struct {
		GPUType string `mapstructure:"gpu_type"`
	} `mapstructure:"resources"`
	Poll struct {
		Interval time.Duration `mapstructure:"interval"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"poll"`
	Output struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"output"`
	Ledger struct {
		Driver string `mapstructure:"driver"`
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"ledger"`
	Log struct {
		Level      string `mapstructure:"level"`
		Format     string `mapstructure:"format"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
	Sandbox struct {
		Addr      string   `mapstructure:"addr"`
		APIKey    string   `mapstructure:"api_key"`
		Steps     int      `mapstructure:"steps"`
		TLS       bool     `mapstructure:"tls"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"sandbox"`
}

// New returns a viper instance with defaults and environment bindings set.
// Environment variables use the PM_ prefix with dots replaced by
// underscores, e.g. PM_POLL_INTERVAL.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.key", "")
	v.SetDefault("api.credentials_file", "~/.promethium.ini")
	v.SetDefault("api.timeout", 60*time.Second)
	v.SetDefault("resources.gpu_type", DefaultGPUType)
	v.SetDefault("poll.interval", 10*time.Second)
	v.SetDefault("poll.timeout", 6*time.Hour)
	v.SetDefault("output.dir", "output")
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.dsn", ".promethium/ledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("sandbox.addr", ":8080")
	v.SetDefault("sandbox.api_key", "")
	v.SetDefault("sandbox.steps", 2)
	v.SetDefault("sandbox.tls", false)
	v.SetDefault("sandbox.cert_file", ".promethium/sandbox.crt")
	v.SetDefault("sandbox.key_file", ".promethium/sandbox.key")
	v.SetDefault("sandbox.hostnames", []string{"localhost", "127.0.0.1"})

	v.SetEnvPrefix("PM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// documented names that don't follow the section layout
	_ = v.BindEnv("api.base_url", "PM_API_BASE_URL")
	_ = v.BindEnv("api.key", "PM_API_KEY")
	_ = v.BindEnv("resources.gpu_type", "PM_GPU_TYPE")

	return v
}

// LoadConfig loads the configuration from an optional file and the
// environment. When path is empty config.yaml is looked up in . and
// ./config; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	return Load(New(), path)
}

// Load reads the configuration using an existing viper instance, so callers
// can bind command line flags before loading.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.API.BaseURL = normalizeBaseURL(config.API.BaseURL)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks for values that would make every request fail.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must not be empty")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll.interval must be positive")
	}
	if c.Poll.Timeout < 0 {
		return errors.New("poll.timeout must not be negative")
	}
	if c.Output.Dir == "" {
		return errors.New("output.dir must not be empty")
	}
	switch c.Ledger.Driver {
	case "sqlite", "postgres", "none":
	default:
		return errors.New("ledger.driver must be sqlite, postgres or none")
	}
	return nil
}

// normalizeBaseURL strips surrounding whitespace and trailing slashes so
// paths can be appended directly.
func normalizeBaseURL(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
