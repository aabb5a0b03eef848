// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// DefaultConfigFile is read relative to the working directory when no --config flag is given.
const DefaultConfigFile = "modrt.toml"

// Config holds all configuration settings for the module runtime.
type Config struct {
	Modules ModulesConfig `toml:"modules"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`

	logOnce sync.Once
	logger  *log.Logger
	logOut  io.Writer
}

// ModulesConfig holds module search and reload settings.
type ModulesConfig struct {
	Path      []string `toml:"path"`       // Search directories, in order
	Bundle    bool     `toml:"bundle"`     // Search the bundle appended to the executable last
	HotReload bool     `toml:"hot_reload"` // Reload loaded modules when their files change
	Debounce  Duration `toml:"debounce"`   // Quiet period before a change is reloaded
}

// ServerConfig holds settings for `modrt serve`.
type ServerConfig struct {
	HTTP string `toml:"http"` // Listen address; empty serves MCP over stdio
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=errors, 1=loads, 2=registry, 3=watch events
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Modules: ModulesConfig{
			Path:     []string{"lib"},
			Bundle:   true,
			Debounce: Duration(100 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from a TOML file and environment variables.
// A missing file is not an error. Flags are applied separately with ApplyFlags.
// Priority: CLI flags > env vars > TOML file > defaults
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.loadTOML(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (default "+DefaultConfigFile+")")
	fs.StringArrayP("include", "I", nil, "Prepend a directory to the module search path")
	fs.Bool("no-bundle", false, "Do not search the bundled module tree")
	fs.Bool("hot-reload", false, "Reload loaded modules when their files change")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.CountP("verbose", "v", "Verbosity level (use -v, -vv, or -vvv)")
}

// ApplyFlags applies flags registered by RegisterFlags that were set on the command line.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	if fs.Changed("include") {
		dirs, err := fs.GetStringArray("include")
		if err != nil {
			return err
		}
		c.Modules.Path = append(dirs, c.Modules.Path...)
	}
	if fs.Changed("no-bundle") {
		noBundle, err := fs.GetBool("no-bundle")
		if err != nil {
			return err
		}
		c.Modules.Bundle = !noBundle
	}
	if fs.Changed("hot-reload") {
		hot, err := fs.GetBool("hot-reload")
		if err != nil {
			return err
		}
		c.Modules.HotReload = hot
	}
	if fs.Changed("log-level") {
		level, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		c.Logging.Level = level
	}
	if fs.Changed("verbose") {
		verbosity, err := fs.GetCount("verbose")
		if err != nil {
			return err
		}
		c.Logging.Verbosity = verbosity
	}
	return nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("MODRT_PATH"); v != "" {
		c.Modules.Path = filepath.SplitList(v)
	}
	if v := os.Getenv("MODRT_BUNDLE"); v != "" {
		c.Modules.Bundle = v == "true" || v == "1"
	}
	if v := os.Getenv("MODRT_HOT_RELOAD"); v != "" {
		c.Modules.HotReload = v == "true" || v == "1"
	}
	if v := os.Getenv("MODRT_HTTP"); v != "" {
		c.Server.HTTP = v
	}
	if v := os.Getenv("MODRT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MODRT_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level.
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// SetLogOutput redirects log output. Must be called before the first Log.
func (c *Config) SetLogOutput(w io.Writer) {
	c.logOut = w
}

// Logger returns the shared logger, creating it on first use.
func (c *Config) Logger() *log.Logger {
	c.logOnce.Do(func() {
		out := c.logOut
		if out == nil {
			out = os.Stderr
		}
		c.logger = log.NewWithOptions(out, log.Options{
			Prefix:          "modrt",
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
		c.logger.SetLevel(c.logLevel())
	})
	return c.logger
}

func (c *Config) logLevel() log.Level {
	level, err := log.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		level = log.InfoLevel
	}
	if c.Logging.Verbosity >= 2 && level > log.DebugLevel {
		level = log.DebugLevel
	}
	return level
}

// Log logs a message if level is within the configured verbosity.
// Level 0 is reported as an error, level 1 as info and higher levels as debug.
func (c *Config) Log(level int, format string, args ...any) {
	if level > c.Logging.Verbosity {
		return
	}
	logger := c.Logger()
	switch level {
	case 0:
		logger.Errorf(format, args...)
	case 1:
		logger.Infof(format, args...)
	default:
		logger.Debugf(format, args...)
	}
}
