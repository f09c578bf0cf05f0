// Package postgres provides a plugin wrapper for the PostgreSQL writer.
package postgres

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/spendsync/pkg/api"
	pgwriter "github.com/ArionMiles/spendsync/pkg/writer/postgres"
)

// Plugin implements the WriterPlugin interface for PostgreSQL.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "postgres"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Upsert expenses into a PostgreSQL table keyed by backend id"
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host": map[string]any{
				"type":        "string",
				"description": "PostgreSQL host address",
				"default":     "localhost",
			},
			"port": map[string]any{
				"type":        "integer",
				"description": "PostgreSQL port",
				"default":     5432,
			},
			"database": map[string]any{
				"type":        "string",
				"description": "Database name",
				"default":     "spendsync",
			},
			"user": map[string]any{
				"type":        "string",
				"description": "Database user",
			},
			"password": map[string]any{
				"type":        "string",
				"description": "Database password",
			},
			"sslmode": map[string]any{
				"type":        "string",
				"description": "SSL mode (disable, require, verify-ca, verify-full)",
				"default":     "disable",
				"enum":        []string{"disable", "require", "verify-ca", "verify-full"},
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of expenses upserted per transaction (default: 50)",
				"default":     50,
			},
			"maxPoolSize": map[string]any{
				"type":        "integer",
				"description": "Maximum number of connections in the pool (default: 4)",
				"default":     4,
			},
		},
		"required": []string{"host", "database", "user", "password"},
	}
}

// Config represents the PostgreSQL writer configuration.
type Config struct {
	Host        string `json:"host"`
	Port        int    `json:"port,omitempty"`
	Database    string `json:"database"`
	User        string `json:"user"`
	Password    string `json:"password"`
	SSLMode     string `json:"sslmode,omitempty"`
	BatchSize   int    `json:"batchSize,omitempty"`
	MaxPoolSize int    `json:"maxPoolSize,omitempty"`
}

// Validate checks that every required field is set.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("host is required")
	case c.Database == "":
		return fmt.Errorf("database is required")
	case c.User == "":
		return fmt.Errorf("user is required")
	case c.Password == "":
		return fmt.Errorf("password is required")
	}
	return nil
}

// NewWriter creates a new PostgreSQL writer instance.
func (p *Plugin) NewWriter(configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling postgres config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return pgwriter.New(pgwriter.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Database:    cfg.Database,
		User:        cfg.User,
		Password:    cfg.Password,
		SSLMode:     cfg.SSLMode,
		BatchSize:   cfg.BatchSize,
		MaxPoolSize: cfg.MaxPoolSize,
	}, logger)
}
