// Package config loads slughist settings from a YAML file and SLUGHIST_*
// environment variables, and owner type hierarchies from CUE.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/slug"
)

// EnvPrefix prefixes every environment override, e.g. SLUGHIST_DATABASE_PATH.
const EnvPrefix = "SLUGHIST"

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	History  HistoryConfig  `mapstructure:"history"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig selects and locates the backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	Path   string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
}

// HistoryConfig mirrors history.Config plus the location of type declarations.
type HistoryConfig struct {
	Separator       string `mapstructure:"separator" validate:"required"`
	Scoped          bool   `mapstructure:"scoped"`
	ScopedConflicts bool   `mapstructure:"scoped_conflicts"`
	TypesFile       string `mapstructure:"types_file"`
}

// LogConfig controls the default slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "slughist.db"},
		History:  HistoryConfig{Separator: slug.DefaultSeparator},
		Log:      LogConfig{Level: "info"},
	}
}

// Override adjusts a decoded Config before it is validated.
type Override func(*Config)

// WithDatabase points the configured driver at target: the file path for
// sqlite, the DSN for postgres. An empty target changes nothing.
func WithDatabase(target string) Override {
	return func(c *Config) {
		if target == "" {
			return
		}
		if c.Database.Driver == "postgres" {
			c.Database.DSN = target
			return
		}
		c.Database.Path = target
	}
}

// Load reads path (YAML; optional when empty) over the defaults, applies
// environment overrides, then overrides, and validates the result. Combining
// scoped conflict resolution with the history engine fails here.
func Load(path string, overrides ...Override) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("config loaded", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and the history engine configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	return nil
}

// Engine returns the history engine settings.
func (c *Config) Engine() history.Config {
	return history.Config{
		Separator:       c.History.Separator,
		Scoped:          c.History.Scoped,
		ScopedConflicts: c.History.ScopedConflicts,
	}
}

// SlogLevel maps Log.Level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("history.separator", d.History.Separator)
	v.SetDefault("history.scoped", d.History.Scoped)
	v.SetDefault("history.scoped_conflicts", d.History.ScopedConflicts)
	v.SetDefault("history.types_file", d.History.TypesFile)
	v.SetDefault("log.level", d.Log.Level)
}
