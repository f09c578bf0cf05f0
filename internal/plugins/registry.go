// Package plugins keeps the export writers spendsync knows about and turns
// the app's settings into the configuration each writer declares.
package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/ArionMiles/spendsync/pkg/api"
)

var (
	// ErrUnknownWriter is returned for a writer name nobody registered.
	ErrUnknownWriter = errors.New("unknown writer")
	// ErrMissingSetting is returned when a setting a writer requires is empty.
	ErrMissingSetting = errors.New("missing writer setting")
)

// WriterPlugin defines the interface for export writer plugins.
type WriterPlugin interface {
	// Name returns the plugin name (e.g., "csv", "json", "postgres").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ConfigSchema returns a JSON schema describing the plugin's
	// configuration. Its "properties" and "required" keys decide which
	// Settings the plugin receives.
	ConfigSchema() map[string]any
	// NewWriter creates a new writer instance with the given config.
	NewWriter(config json.RawMessage, logger *slog.Logger) (api.Writer, error)
}

// Settings is everything the app can offer a writer, keyed by the property
// names plugins use in their schemas. Zero values count as unset.
type Settings map[string]any

// Registry is a fixed set of writer plugins.
type Registry struct {
	plugins map[string]WriterPlugin
	names   []string
}

// NewRegistry returns a registry holding plugins. Names must be unique.
func NewRegistry(plugins ...WriterPlugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]WriterPlugin, len(plugins))}
	for _, p := range plugins {
		name := p.Name()
		if _, exists := r.plugins[name]; exists {
			return nil, fmt.Errorf("writer plugin %q registered twice", name)
		}
		r.plugins[name] = p
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r, nil
}

// Lookup returns the plugin called name.
func (r *Registry) Lookup(name string) (WriterPlugin, error) {
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownWriter, name, strings.Join(r.names, ", "))
	}
	return p, nil
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Plugins returns the registered plugins sorted by name.
func (r *Registry) Plugins() []WriterPlugin {
	out := make([]WriterPlugin, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.plugins[name])
	}
	return out
}

// Config builds the JSON configuration for the named plugin: every schema
// property with a non-zero setting is included, and every required property
// must be among them.
func (r *Registry) Config(name string, settings Settings) (json.RawMessage, error) {
	p, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	schema := p.ConfigSchema()
	properties, _ := schema["properties"].(map[string]any)
	cfg := make(map[string]any, len(properties))
	for key := range properties {
		if v, ok := settings[key]; ok && !isZero(v) {
			cfg[key] = v
		}
	}

	required, _ := schema["required"].([]string)
	var missing []string
	for _, key := range required {
		if _, ok := cfg[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s needs %s", ErrMissingSetting, name, strings.Join(missing, ", "))
	}

	return json.Marshal(cfg)
}

// Open builds the configuration for the named plugin and creates its writer.
func (r *Registry) Open(name string, settings Settings, logger *slog.Logger) (api.Writer, error) {
	cfg, err := r.Config(name, settings)
	if err != nil {
		return nil, err
	}
	p, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return p.NewWriter(cfg, logger.With("plugin", name))
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
