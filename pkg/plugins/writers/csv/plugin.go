// Package csv provides a plugin wrapper for the CSV writer.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/spendsync/pkg/api"
	csvwriter "github.com/ArionMiles/spendsync/pkg/writer/csv"
)

// Plugin implements the WriterPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Export expenses to a CSV file"
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the CSV output file",
			},
			"append": map[string]any{
				"type":        "boolean",
				"description": "Append rows instead of replacing the file",
				"default":     false,
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of rows written between flushes (default: 50)",
				"default":     50,
			},
		},
		"required": []string{"filePath"},
	}
}

// Config represents the CSV writer configuration.
type Config struct {
	FilePath  string `json:"filePath"`
	Append    bool   `json:"append,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

// NewWriter creates a new CSV writer instance.
func (p *Plugin) NewWriter(configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling csv config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	return csvwriter.New(csvwriter.Config{
		FilePath:  cfg.FilePath,
		Append:    cfg.Append,
		BatchSize: cfg.BatchSize,
	}, logger)
}
