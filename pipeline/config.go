package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/devskill-org/menu-co2e/potato"
	"github.com/devskill-org/menu-co2e/report"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. MENU_FETCH_CONCURRENCY=4.
const EnvPrefix = "MENU"

// Config represents the configuration for the menu pipeline
type Config struct {
	// API settings
	BaseURL          string        `json:"base_url" mapstructure:"base_url"`                   // Menu API base URL
	UserAgent        string        `json:"user_agent" mapstructure:"user_agent"`               // User agent for API requests
	APITimeout       time.Duration `json:"api_timeout" mapstructure:"api_timeout"`             // Timeout for a single API request
	FetchConcurrency int           `json:"fetch_concurrency" mapstructure:"fetch_concurrency"` // Parallel emissions lookups (1 = sequential)

	// Timezone configuration
	Location string `json:"location" mapstructure:"location"` // Location all day dates are normalized to

	// Cache settings
	CacheBackend       string `json:"cache_backend" mapstructure:"cache_backend"`               // Cache backend: file, postgres
	CacheDir           string `json:"cache_dir" mapstructure:"cache_dir"`                       // Directory holding dishes.json and days.json
	PostgresConnString string `json:"postgres_conn_string" mapstructure:"postgres_conn_string"` // PostgreSQL connection string

	// Report settings
	PlotFile  string  `json:"plot_file" mapstructure:"plot_file"` // Output image path
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`   // Latitude for daylight hours
	Longitude float64 `json:"longitude" mapstructure:"longitude"` // Longitude for daylight hours

	// Logging settings
	LogLevel  string `json:"log_level" mapstructure:"log_level"`   // Log level: debug, info, warn, error
	LogFormat string `json:"log_format" mapstructure:"log_format"` // Log format: text, json

	// Dashboard settings
	ServerPort      int           `json:"server_port" mapstructure:"server_port"`           // Port for the dashboard (0 = disabled)
	RefreshInterval time.Duration `json:"refresh_interval" mapstructure:"refresh_interval"` // How often the dashboard reloads the cache
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            potato.DefaultBaseURL,
		UserAgent:          "menu-co2e/1.0",
		APITimeout:         30 * time.Second,
		FetchConcurrency:   1,
		Location:           "Europe/Stockholm",
		CacheBackend:       "file",
		CacheDir:           ".",
		PostgresConnString: "",
		PlotFile:           report.DefaultPlotFile,
		Latitude:           59.3151, // Södermalm, Stockholm
		Longitude:          18.0717, // Södermalm, Stockholm
		LogLevel:           "info",
		LogFormat:          "text",
		ServerPort:         8080,
		RefreshInterval:    5 * time.Minute,
	}
}

// LoadConfig loads configuration from a JSON file. An empty filename yields
// the defaults. Environment variables override both.
func LoadConfig(filename string) (*Config, error) {
	v := newViper()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decodeConfig(v)
}

// LoadConfigFromReader loads JSON configuration from an io.Reader
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	v := newViper()
	v.SetConfigType("json")

	if err := v.ReadConfig(reader); err != nil {
		return nil, fmt.Errorf("failed to decode config JSON: %w", err)
	}

	return decodeConfig(v)
}

// newViper returns a viper instance seeded with the defaults so that every
// key can be overridden from the environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("api_timeout", d.APITimeout)
	v.SetDefault("fetch_concurrency", d.FetchConcurrency)
	v.SetDefault("location", d.Location)
	v.SetDefault("cache_backend", d.CacheBackend)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("postgres_conn_string", d.PostgresConnString)
	v.SetDefault("plot_file", d.PlotFile)
	v.SetDefault("latitude", d.Latitude)
	v.SetDefault("longitude", d.Longitude)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("server_port", d.ServerPort)
	v.SetDefault("refresh_interval", d.RefreshInterval)

	return v
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got: %s", c.BaseURL)
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent cannot be empty")
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("api_timeout must be greater than 0, got: %s", c.APITimeout)
	}

	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1, got: %d", c.FetchConcurrency)
	}

	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("invalid location %q: %w", c.Location, err)
	}

	switch c.CacheBackend {
	case "file":
		if c.CacheDir == "" {
			return fmt.Errorf("cache_dir cannot be empty")
		}
	case "postgres":
		if c.PostgresConnString == "" {
			return fmt.Errorf("postgres_conn_string cannot be empty with the postgres cache backend")
		}
	default:
		return fmt.Errorf("invalid cache_backend: %s, must be one of: file, postgres", c.CacheBackend)
	}

	if c.PlotFile == "" {
		return fmt.Errorf("plot_file cannot be empty")
	}

	// Validate latitude
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90, got: %f", c.Latitude)
	}

	// Validate longitude
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180, got: %f", c.Longitude)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s, must be one of: debug, info, warn, error", c.LogLevel)
	}

	// Validate log format
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("invalid log_format: %s, must be one of: text, json", c.LogFormat)
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 0 and 65535, got: %d", c.ServerPort)
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be greater than 0, got: %s", c.RefreshInterval)
	}

	return nil
}

// MarshalJSON implements custom JSON marshaling to handle durations
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config
	return sonic.ConfigStd.Marshal(&struct {
		*Alias
		APITimeout         string `json:"api_timeout"`
		RefreshInterval    string `json:"refresh_interval"`
		PostgresConnString string `json:"postgres_conn_string,omitempty"`
	}{
		Alias:           (*Alias)(c),
		APITimeout:      c.APITimeout.String(),
		RefreshInterval: c.RefreshInterval.String(),
		// credentials stay out of logs
		PostgresConnString: redact(c.PostgresConnString),
	})
}

// String returns a string representation of the config
func (c *Config) String() string {
	data, _ := sonic.ConfigStd.MarshalIndent(c, "", "  ")
	return string(data)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
