package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultStreamName           = "PERSON_EVENTS"
	defaultCommandsPrefix       = "person.commands"
	defaultEventsPrefix         = "person.events"
	defaultSnapshotFrequency    = 100
	defaultPublishAckTimeout    = 5 * time.Second
	defaultFetchTimeout         = 10 * time.Second
	defaultShutdownGrace        = 30 * time.Second
	defaultMaxInflightCommands  = 64
	defaultRetryBase            = 100 * time.Millisecond
	defaultRetryCap             = 30 * time.Second
	defaultRetryMaxAttempts     = 8
	defaultHealthPort           = 8081
)

// ErrBrokerURLEmpty is returned when no broker URL is configured.
var ErrBrokerURLEmpty = errors.New("config: broker URL cannot be empty")

// ErrDatabaseURLEmpty is returned when no database URL is configured.
var ErrDatabaseURLEmpty = errors.New("config: database URL cannot be empty")

// ErrSnapshotFrequencyInvalid is returned when snapshot_frequency is below 1.
var ErrSnapshotFrequencyInvalid = errors.New("config: snapshot_frequency must be >= 1")

// ErrMaxInflightInvalid is returned when max_inflight_commands is below 1.
var ErrMaxInflightInvalid = errors.New("config: max_inflight_commands must be >= 1")

// ErrRetryMaxAttemptsInvalid is returned when retry_max_attempts is below 1.
var ErrRetryMaxAttemptsInvalid = errors.New("config: retry_max_attempts must be >= 1")

// Config holds persond's process-wide configuration (spec.md section 6.4
// plus the ambient options layered on top of it).
type Config struct {
	BrokerURL   string `yaml:"broker_url"`
	DatabaseURL string `yaml:"database_url"`

	StreamName      string `yaml:"stream_name"`
	CommandsPrefix  string `yaml:"commands_prefix"`
	EventsPrefix    string `yaml:"events_prefix"`

	SnapshotFrequency int `yaml:"snapshot_frequency"`

	PublishAckTimeout time.Duration `yaml:"publish_ack_timeout"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`

	MaxInflightCommands int `yaml:"max_inflight_commands"`

	RetryBase        time.Duration `yaml:"retry_base"`
	RetryCap         time.Duration `yaml:"retry_cap"`
	RetryMaxAttempts int           `yaml:"retry_max_attempts"`

	LogLevel slog.Level `yaml:"-"`

	HealthPort int `yaml:"health_port"`
}

// fileConfig mirrors Config's YAML-tagged fields for decoding the
// optional supplementary file. LogLevel is read separately since
// slog.Level doesn't round-trip through yaml.v3 the way the raw string
// does.
type fileConfig struct {
	Config   `yaml:",inline"`
	LogLevel string `yaml:"log_level"`
}

// LoadConfig loads persond's configuration from environment variables,
// layered on top of an optional YAML file named by PERSON_CONFIG_FILE.
// YAML values seed defaults; environment variables always win.
func LoadConfig() (*Config, error) {
	defaults := Config{
		StreamName:          defaultStreamName,
		CommandsPrefix:      defaultCommandsPrefix,
		EventsPrefix:        defaultEventsPrefix,
		SnapshotFrequency:   defaultSnapshotFrequency,
		PublishAckTimeout:   defaultPublishAckTimeout,
		FetchTimeout:        defaultFetchTimeout,
		ShutdownGrace:       defaultShutdownGrace,
		MaxInflightCommands: defaultMaxInflightCommands,
		RetryBase:           defaultRetryBase,
		RetryCap:            defaultRetryCap,
		RetryMaxAttempts:    defaultRetryMaxAttempts,
		LogLevel:            slog.LevelInfo,
		HealthPort:          defaultHealthPort,
	}

	logLevelName := "info"

	if path := os.Getenv("PERSON_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}

		fc := fileConfig{Config: defaults, LogLevel: logLevelName}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}

		defaults = fc.Config
		logLevelName = fc.LogLevel
	}

	cfg := &Config{
		BrokerURL:           GetEnvStr("PERSON_BROKER_URL", defaults.BrokerURL),
		DatabaseURL:         GetEnvStr("PERSON_DATABASE_URL", defaults.DatabaseURL),
		StreamName:          GetEnvStr("PERSON_STREAM_NAME", defaults.StreamName),
		CommandsPrefix:      GetEnvStr("PERSON_COMMANDS_PREFIX", defaults.CommandsPrefix),
		EventsPrefix:        GetEnvStr("PERSON_EVENTS_PREFIX", defaults.EventsPrefix),
		SnapshotFrequency:   GetEnvInt("PERSON_SNAPSHOT_FREQUENCY", defaults.SnapshotFrequency),
		PublishAckTimeout:   GetEnvDuration("PERSON_PUBLISH_ACK_TIMEOUT", defaults.PublishAckTimeout),
		FetchTimeout:        GetEnvDuration("PERSON_FETCH_TIMEOUT", defaults.FetchTimeout),
		ShutdownGrace:       GetEnvDuration("PERSON_SHUTDOWN_GRACE", defaults.ShutdownGrace),
		MaxInflightCommands: GetEnvInt("PERSON_MAX_INFLIGHT_COMMANDS", defaults.MaxInflightCommands),
		RetryBase:           GetEnvDuration("PERSON_RETRY_BASE", defaults.RetryBase),
		RetryCap:            GetEnvDuration("PERSON_RETRY_CAP", defaults.RetryCap),
		RetryMaxAttempts:    GetEnvInt("PERSON_RETRY_MAX_ATTEMPTS", defaults.RetryMaxAttempts),
		LogLevel:            GetEnvLogLevel("PERSON_LOG_LEVEL", parseLogLevel(logLevelName)),
		HealthPort:          GetEnvInt("PERSON_HEALTH_PORT", defaults.HealthPort),
	}

	return cfg, nil
}

// parseLogLevel mirrors GetEnvLogLevel's mapping for a value that came
// from the YAML file rather than the environment.
func parseLogLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return ErrBrokerURLEmpty
	}

	if c.DatabaseURL == "" {
		return ErrDatabaseURLEmpty
	}

	if c.SnapshotFrequency < 1 {
		return ErrSnapshotFrequencyInvalid
	}

	if c.MaxInflightCommands < 1 {
		return ErrMaxInflightInvalid
	}

	if c.RetryMaxAttempts < 1 {
		return ErrRetryMaxAttemptsInvalid
	}

	return nil
}

// MaskDatabaseURL returns the database URL with any embedded password
// redacted, safe for logging.
func (c *Config) MaskDatabaseURL() string {
	return maskURL(c.DatabaseURL)
}

// MaskBrokerURL returns the broker URL with any embedded password
// redacted, safe for logging.
func (c *Config) MaskBrokerURL() string {
	return maskURL(c.BrokerURL)
}

// maskURL redacts the password component of a userinfo-bearing URL,
// leaving scheme, username, host, and path intact.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd == -1 {
		return raw
	}

	afterScheme := raw[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		return raw
	}

	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		return raw
	}

	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		return raw
	}

	scheme := raw[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
