// Package config provides layered configuration for revview.
//
// Settings are addressed by dotted paths such as "history.redrawPadding".
// Layers, lowest precedence first: built-in defaults, a TOML or YAML file,
// REVVIEW_* environment variables, and values set explicitly (command-line
// flags). Section accessors return typed snapshots of the merged result.
package config

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/revview/internal/config/loader"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "REVVIEW_"

// Layer names, lowest precedence first.
const (
	LayerDefaults = "defaults"
	LayerFile     = "file"
	LayerEnv      = "environment"
	LayerOverride = "override"
)

var layerOrder = []string{LayerDefaults, LayerFile, LayerEnv, LayerOverride}

// Config holds the layered configuration.
type Config struct {
	mu sync.RWMutex

	layers map[string]map[string]any
	merged map[string]any

	fs        loader.FileSystem
	file      string
	envPrefix string

	// configErrors stores type errors met while reading sections.
	configErrors map[string]error
}

// Option configures a Config instance.
type Option func(*Config)

// WithFile sets the configuration file. Its extension selects the format.
func WithFile(path string) Option {
	return func(c *Config) {
		c.file = path
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithFS sets the file system used to read the configuration file.
func WithFS(fs loader.FileSystem) Option {
	return func(c *Config) {
		c.fs = fs
	}
}

// New creates a Config holding only the defaults.
func New(opts ...Option) *Config {
	c := &Config{
		layers:    map[string]map[string]any{LayerDefaults: defaultConfig()},
		fs:        loader.DefaultFS(),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.merge()
	return c
}

// Load reads the configuration file, if any, and the environment.
// A configured file that does not exist is not an error.
func (c *Config) Load(_ context.Context) error {
	var fileData map[string]any
	if c.file != "" {
		l, err := loader.ForPath(c.fs, c.file)
		if err != nil {
			return err
		}
		fileData, err = l.Load()
		if err != nil {
			return fmt.Errorf("loading %s: %w", c.file, err)
		}
	}

	envData, err := loader.NewEnvLoader(c.envPrefix).Load()
	if err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.layers[LayerFile] = fileData
	c.layers[LayerEnv] = envData
	c.merge()
	return nil
}

// File returns the configured file path.
func (c *Config) File() string {
	return c.file
}

// merge rebuilds the merged view. Callers hold mu.
func (c *Config) merge() {
	merged := make(map[string]any)
	for _, name := range layerOrder {
		merged = loader.DeepMerge(merged, c.layers[name])
	}
	c.merged = merged
	c.configErrors = nil
}

// Set stores value at path in the override layer.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A path may not descend through a setting that is not a section.
	parts := splitPath(path)
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		if v, ok := getPath(c.merged, prefix); ok {
			if _, isMap := v.(map[string]any); !isMap {
				return fmt.Errorf("%w: %s is not a section", ErrInvalidPath, prefix)
			}
		}
	}

	data := c.layers[LayerOverride]
	if data == nil {
		data = make(map[string]any)
		c.layers[LayerOverride] = data
	}
	if err := setPath(data, path, value); err != nil {
		return err
	}
	c.merge()
	return nil
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return getPath(c.merged, path)
}

// Source returns the name of the highest layer defining path.
func (c *Config) Source(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(layerOrder) - 1; i >= 0; i-- {
		if _, ok := getPath(c.layers[layerOrder[i]], path); ok {
			return layerOrder[i], true
		}
	}
	return "", false
}

// Merged returns a copy of the fully merged configuration.
func (c *Config) Merged() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return loader.Clone(c.merged)
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case uint64:
		return int(val), nil
	case float64:
		if val == float64(int(val)) {
			return int(val), nil
		}
	}
	return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// ConfigErrors returns type errors met while reading sections since the
// last change.
func (c *Config) ConfigErrors() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.configErrors == nil {
		return nil
	}
	result := make(map[string]error, len(c.configErrors))
	for k, v := range c.configErrors {
		result[k] = v
	}
	return result
}

func (c *Config) recordConfigError(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.configErrors == nil {
		c.configErrors = make(map[string]error)
	}
	if _, exists := c.configErrors[path]; !exists {
		c.configErrors[path] = err
	}
}

// defaultConfig returns the built-in defaults.
func defaultConfig() map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level": "info",
			"file":  "",
		},
		"history": map[string]any{
			"affinity":      true,
			"redrawPadding": 1,
			"queueSize":     256,
		},
		"viewer": map[string]any{
			"tabWidth": 4,
			"script":   "",
			"watch":    true,
		},
		"metrics": map[string]any{
			"addr": "",
		},
	}
}

// getPath retrieves a value from a nested map using a dot-separated path.
func getPath(m map[string]any, path string) (any, bool) {
	parts := splitPath(path)
	if len(parts) == 0 || m == nil {
		return nil, false
	}

	var current any = m
	for _, part := range parts {
		cm, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = cm[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath sets a value in a nested map using a dot-separated path.
func setPath(m map[string]any, path string, value any) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ErrInvalidPath
	}

	current := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		nextMap, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s is not a section", ErrInvalidPath, part)
		}
		current = nextMap
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// splitPath splits a dot-separated path into non-empty parts.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '.' })
}

// typeName returns the type name for error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case []any:
		return "list"
	case map[string]any:
		return "section"
	default:
		return fmt.Sprintf("%T", v)
	}
}
