// Package config loads spendsync settings from an optional JSON file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	kJson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ArionMiles/spendsync/pkg/logging"
)

// EnvPrefix is stripped from environment variable names before lookup.
const EnvPrefix = "SPENDSYNC_"

// DefaultFile is where Load looks for a config file when none is given.
const DefaultFile = "data/config.json"

// Config holds the application configuration.
type Config struct {
	// APIURL is the REST API root.
	// Environment variable: SPENDSYNC_API_URL
	APIURL string `koanf:"API_URL"`

	// StateFile is where tokens and the user snapshot are persisted.
	// Environment variable: SPENDSYNC_STATE_FILE
	StateFile string `koanf:"STATE_FILE"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	// Environment variable: SPENDSYNC_LOG_LEVEL
	LogLevel string `koanf:"LOG_LEVEL"`

	// LogFormat is text or json.
	// Environment variable: SPENDSYNC_LOG_FORMAT
	LogFormat string `koanf:"LOG_FORMAT"`

	// HealthAttempts and HealthDelay control --wait polling of the backend.
	HealthAttempts uint          `koanf:"HEALTH_ATTEMPTS"`
	HealthDelay    time.Duration `koanf:"HEALTH_DELAY"`

	// Postgres is used by the postgres export writer.
	Postgres PostgresConfig `koanf:"-"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		APIURL:         "http://localhost:8001/api",
		StateFile:      "data/session.json",
		LogLevel:       "WARN",
		LogFormat:      "text",
		HealthAttempts: 5,
		HealthDelay:    time.Second,
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
	}
}

// Load reads path (if it exists) and then the SPENDSYNC_ environment, later
// sources overriding earlier ones. An empty path means DefaultFile.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), kJson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(s, EnvPrefix)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	conf := koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}
	if err := k.UnmarshalWithConf("", &cfg, conf); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg.Postgres, conf); err != nil {
		return Config{}, fmt.Errorf("unmarshaling postgres config: %w", err)
	}

	return cfg, nil
}

// Logging returns the logging configuration for cfg.
func (c Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(c.LogLevel)
	lc.JSON = strings.EqualFold(c.LogFormat, "json")
	return lc
}
