package config

import (
	"errors"
	"net"

	"github.com/dshills/revview/internal/logging"
)

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration. Use Config.Set()
// to update configuration values.

// LoggingConfig provides type-safe access to logging settings.
type LoggingConfig struct {
	// Level is the minimum level written: debug, info, warn or error.
	Level string

	// File receives log output. Empty discards logs while the screen is up.
	File string
}

// HistoryConfig provides type-safe access to history engine settings.
type HistoryConfig struct {
	// Affinity confines history mutation to the UI loop.
	Affinity bool

	// RedrawPadding is the margin added around invalidated regions.
	RedrawPadding int

	// QueueSize is the capacity of the UI loop's task queue.
	QueueSize int
}

// ViewerConfig provides type-safe access to viewer settings.
type ViewerConfig struct {
	// TabWidth is the number of columns a tab expands to.
	TabWidth int

	// Script is a Lua file defining numbered actions. Empty disables scripting.
	Script string

	// Watch reloads the document when it changes on disk.
	Watch bool
}

// MetricsConfig provides type-safe access to metrics settings.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string
}

// Logging returns logging settings.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level: c.getStringOr("logging.level", "info"),
		File:  c.getStringOr("logging.file", ""),
	}
}

// History returns history engine settings.
func (c *Config) History() HistoryConfig {
	return HistoryConfig{
		Affinity:      c.getBoolOr("history.affinity", true),
		RedrawPadding: c.getIntOr("history.redrawPadding", 1),
		QueueSize:     c.getIntOr("history.queueSize", 256),
	}
}

// Viewer returns viewer settings.
func (c *Config) Viewer() ViewerConfig {
	return ViewerConfig{
		TabWidth: c.getIntOr("viewer.tabWidth", 4),
		Script:   c.getStringOr("viewer.script", ""),
		Watch:    c.getBoolOr("viewer.watch", true),
	}
}

// Metrics returns metrics settings.
func (c *Config) Metrics() MetricsConfig {
	return MetricsConfig{
		Addr: c.getStringOr("metrics.addr", ""),
	}
}

// Validate checks every section and returns all problems found, including
// settings of the wrong type.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path string, value any, msg string) {
		errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
	}

	lg := c.Logging()
	if !logging.ValidLevel(lg.Level) {
		invalid("logging.level", lg.Level, "must be debug, info, warn or error")
	}

	h := c.History()
	if h.RedrawPadding < 0 {
		invalid("history.redrawPadding", h.RedrawPadding, "must not be negative")
	}
	if h.QueueSize < 1 {
		invalid("history.queueSize", h.QueueSize, "must be at least 1")
	}

	v := c.Viewer()
	if v.TabWidth < 1 || v.TabWidth > 16 {
		invalid("viewer.tabWidth", v.TabWidth, "must be between 1 and 16")
	}

	m := c.Metrics()
	if m.Addr != "" {
		if _, _, err := net.SplitHostPort(m.Addr); err != nil {
			invalid("metrics.addr", m.Addr, err.Error())
		}
	}

	for _, err := range c.ConfigErrors() {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// These methods only return the default for ErrSettingNotFound.
// Type errors are recorded and also return the default; Validate reports them.

func (c *Config) getStringOr(path string, defaultValue string) string {
	v, err := c.GetString(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getIntOr(path string, defaultValue int) int {
	v, err := c.GetInt(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}

func (c *Config) getBoolOr(path string, defaultValue bool) bool {
	v, err := c.GetBool(path)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			c.recordConfigError(path, err)
		}
		return defaultValue
	}
	return v
}
