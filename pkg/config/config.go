// Package config provides configuration handling for connectrunner.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Auth configuration for the dashboard API
	Auth AuthConfig `json:"auth"`

	// Browser configuration
	Browser BrowserConfig `json:"browser"`

	// Automation configuration
	Automation AutomationConfig `json:"automation"`

	// Storage configuration for the run archive
	Storage StorageConfig `json:"storage"`

	// Schedule configuration for unattended runs
	Schedule ScheduleConfig `json:"schedule"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file"`
}

// AuthConfig contains authentication settings for the dashboard API.
// PasswordHash is a bcrypt hash; the plaintext password is never stored.
type AuthConfig struct {
	// Username of the single dashboard operator
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the operator password
	PasswordHash string `json:"password_hash"`

	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`
}

// BrowserConfig contains browser driver settings
type BrowserConfig struct {
	// Headless indicates whether the browser runs without a window
	Headless bool `json:"headless"`

	// ViewportWidth is the page viewport width in pixels
	ViewportWidth int `json:"viewport_width"`

	// ViewportHeight is the page viewport height in pixels
	ViewportHeight int `json:"viewport_height"`

	// TimeoutMS is the default per-operation timeout in milliseconds
	TimeoutMS int `json:"timeout_ms"`

	// UserDataDir is the browser profile directory; empty for ephemeral
	UserDataDir string `json:"user_data_dir"`
}

// AutomationConfig contains settings for the automation run
type AutomationConfig struct {
	// TargetURL is the page the workflow operates on
	TargetURL string `json:"target_url"`

	// SelectorsFile is the path to a YAML selector profile; empty uses
	// built-in defaults
	SelectorsFile string `json:"selectors_file"`

	// MinActionDelayMS is the minimum delay between connection actions
	MinActionDelayMS int `json:"min_action_delay_ms"`

	// MaxRetries is the attempt budget for retryable step failures
	MaxRetries int `json:"max_retries"`

	// RetryBackoffMS is the base backoff between retries; the actual wait
	// grows linearly with the attempt number
	RetryBackoffMS int `json:"retry_backoff_ms"`

	// MaxScrollAttempts bounds list discovery scrolling
	MaxScrollAttempts int `json:"max_scroll_attempts"`

	// ScrollSettleMS is how long to wait after a scroll before reading
	// offsets and item counts
	ScrollSettleMS int `json:"scroll_settle_ms"`

	// Eligibility is an expression evaluated per candidate, e.g.
	// "${candidate.mutualConnections >= 10}"
	Eligibility string `json:"eligibility"`

	// MaxConnections caps how many connection requests one run may send;
	// zero means no cap
	MaxConnections int `json:"max_connections"`

	// StepTimeoutMS is the per-step wait budget in milliseconds
	StepTimeoutMS int `json:"step_timeout_ms"`
}

// StorageConfig contains run-archive storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "postgresql"

	// Postgres configuration
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// ScheduleConfig contains cron settings for unattended runs
type ScheduleConfig struct {
	// Enabled indicates whether scheduled runs are active
	Enabled bool `json:"enabled"`

	// Specs is a list of cron expressions, one run trigger each
	Specs []string `json:"specs"`
}

// LoggingConfig contains log bus settings
type LoggingConfig struct {
	// Level is the minimum level mirrored to stdout
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// BufferSize is the log bus ring capacity
	BufferSize int `json:"buffer_size"`
}

// LoadConfig loads the configuration from a file. Fields absent from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Auth: AuthConfig{
			Username:        "operator",
			TokenExpiration: 24,
		},
		Browser: BrowserConfig{
			Headless:       true,
			ViewportWidth:  1280,
			ViewportHeight: 800,
			TimeoutMS:      30000,
		},
		Automation: AutomationConfig{
			MinActionDelayMS:  45000,
			MaxRetries:        3,
			RetryBackoffMS:    1000,
			MaxScrollAttempts: 20,
			ScrollSettleMS:    750,
			Eligibility:       "${candidate.mutualConnections >= 10}",
			MaxConnections:    25,
			StepTimeoutMS:     15000,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "connectrunner",
				User:     "connectrunner",
				SSLMode:  "disable",
			},
		},
		Schedule: ScheduleConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			BufferSize: 500,
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
