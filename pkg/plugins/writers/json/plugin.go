// Package json provides a plugin wrapper for the JSON writer.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/spendsync/pkg/api"
	jsonwriter "github.com/ArionMiles/spendsync/pkg/writer/json"
)

// Plugin implements the WriterPlugin interface for JSON files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Export expenses to a JSON file, replacing entries with the same id"
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the JSON output file",
			},
			"batchSize": map[string]any{
				"type":        "integer",
				"description": "Number of expenses merged between file rewrites (default: 50)",
				"default":     50,
			},
		},
		"required": []string{"filePath"},
	}
}

// Config represents the JSON writer configuration.
type Config struct {
	FilePath  string `json:"filePath"`
	BatchSize int    `json:"batchSize,omitempty"`
}

// NewWriter creates a new JSON writer instance.
func (p *Plugin) NewWriter(configData json.RawMessage, logger *slog.Logger) (api.Writer, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling json config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	return jsonwriter.New(jsonwriter.Config{
		FilePath:  cfg.FilePath,
		BatchSize: cfg.BatchSize,
	}, logger)
}
