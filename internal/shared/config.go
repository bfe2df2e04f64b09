package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is prepended to every environment override, e.g. TUBESYNC_DATABASE_PATH.
const EnvPrefix = "TUBESYNC"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Library     LibraryConfig     `toml:"library"`
	Sync        SyncConfig        `toml:"sync"`
	Queue       QueueConfig       `toml:"queue"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	YouTube YouTubeConfig `toml:"youtube"`
}

// YouTubeConfig contains YouTube Data API credentials.
type YouTubeConfig struct {
	APIKey       string `toml:"api_key" split_words:"true"`
	ClientID     string `toml:"client_id" split_words:"true"`
	ClientSecret string `toml:"client_secret" split_words:"true"`
	RedirectURI  string `toml:"redirect_uri" split_words:"true"`
	TokenPath    string `toml:"token_path" split_words:"true"`
}

// HasOAuthClient reports whether an OAuth client is configured.
func (c YouTubeConfig) HasOAuthClient() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns" split_words:"true"`
	MaxIdleConns int    `toml:"max_idle_conns" split_words:"true"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LibraryConfig holds CLI defaults for the local library.
type LibraryConfig struct {
	Owner string `toml:"owner"`
}

// SyncConfig tunes the background synchronization subsystem.
type SyncConfig struct {
	Workers           int           `toml:"workers"`
	MaxAttempts       int           `toml:"max_attempts" split_words:"true"`
	InitialBackoff    time.Duration `toml:"initial_backoff" split_words:"true"`
	MaxBackoff        time.Duration `toml:"max_backoff" split_words:"true"`
	JobTimeout        time.Duration `toml:"job_timeout" split_words:"true"`
	SweepSchedule     string        `toml:"sweep_schedule" split_words:"true"`
	SweepWindow       time.Duration `toml:"sweep_window" split_words:"true"`
	RequestsPerSecond float64       `toml:"requests_per_second" split_words:"true"`
	FullFetchLimit    int           `toml:"full_fetch_limit" split_words:"true"`
	RefreshLimit      int           `toml:"refresh_limit" split_words:"true"`
	PlaylistLimit     int           `toml:"playlist_limit" split_words:"true"`
	PlaylistItemLimit int           `toml:"playlist_item_limit" split_words:"true"`
	ShortsMaxSeconds  int           `toml:"shorts_max_seconds" split_words:"true"`
	ShortsDefault     bool          `toml:"shorts_default" split_words:"true"`
}

// QueueConfig selects and tunes the job queue backend.
type QueueConfig struct {
	Backend      string        `toml:"backend"`
	PollInterval time.Duration `toml:"poll_interval" split_words:"true"`
	Lease        time.Duration `toml:"lease"`
}

const (
	QueueBackendSQLite = "sqlite"
	QueueBackendMemory = "memory"
)

// Validate checks the values the sync subsystem cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Sync.Workers <= 0:
		return fmt.Errorf("%w: sync.workers must be positive", ErrInvalidConfig)
	case c.Sync.MaxAttempts <= 0:
		return fmt.Errorf("%w: sync.max_attempts must be positive", ErrInvalidConfig)
	case c.Sync.SweepWindow <= 0:
		return fmt.Errorf("%w: sync.sweep_window must be positive", ErrInvalidConfig)
	case c.Sync.InitialBackoff <= 0 || c.Sync.MaxBackoff < c.Sync.InitialBackoff:
		return fmt.Errorf("%w: sync backoff must satisfy 0 < initial_backoff <= max_backoff", ErrInvalidConfig)
	}

	switch c.Queue.Backend {
	case QueueBackendSQLite, QueueBackendMemory:
	default:
		return fmt.Errorf("%w: unknown queue backend %q", ErrInvalidConfig, c.Queue.Backend)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their embedded defaults, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overrides config values from TUBESYNC_* environment variables.
func ApplyEnv(config *Config) error {
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
