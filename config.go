// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Drivers Open knows.
const (
	DriverSQLite = "sqlite3"
	DriverDqlite = "dqlite"
)

// EnvPrefix prefixes the environment variables LoadConfig reads, for
// example ECSQL_READ_ONLY=true.
const EnvPrefix = "ECSQL"

// Config holds the settings of a DB.
type Config struct {
	// Driver is DriverSQLite or DriverDqlite.
	Driver string `koanf:"driver"`
	// DSN is the sqlite data source name, or the database name with
	// dqlite.
	DSN string `koanf:"dsn"`
	// ReadOnly denies every write.
	ReadOnly bool `koanf:"read_only"`
	// RequireWriteToken denies writes not presenting the write token of
	// the DB.
	RequireWriteToken bool `koanf:"require_write_token"`
	// LogLevel is a zerolog level name.
	LogLevel string `koanf:"log_level"`
	// DqliteNodes are the addresses of the dqlite cluster.
	DqliteNodes []string `koanf:"dqlite_nodes"`
}

// DefaultConfig returns the settings of an in-memory sqlite database.
func DefaultConfig() Config {
	return Config{
		Driver:   DriverSQLite,
		DSN:      ":memory:",
		LogLevel: zerolog.LevelWarnValue,
	}
}

// LoadConfig reads the YAML file at path over the defaults, then overlays
// the ECSQL_* environment variables. An empty path reads the environment
// only.
func LoadConfig(path string) (Config, error) {
	k := koanf.NewWithConf(koanf.Conf{Delim: "."})
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errors.Wrapf(err, "cannot load config %s", path)
		}
	}
	prefix := EnvPrefix + "_"
	envProvider := env.ProviderWithValue(prefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, prefix))
		if key == "dqlite_nodes" {
			return key, lo.Compact(lo.Map(strings.Split(value, ","), func(s string, _ int) string {
				return strings.TrimSpace(s)
			}))
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, errors.Wrap(err, "cannot load config from environment")
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings can be used to open a DB.
func (cfg Config) Validate() error {
	switch cfg.Driver {
	case DriverSQLite:
	case DriverDqlite:
		if len(cfg.DqliteNodes) == 0 {
			return errors.New("invalid config: dqlite driver needs dqlite_nodes")
		}
	default:
		return errors.Errorf("invalid config: unknown driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return errors.New("invalid config: empty dsn")
	}
	if _, err := cfg.level(); err != nil {
		return err
	}
	return nil
}

func (cfg Config) level() (zerolog.Level, error) {
	if cfg.LogLevel == "" {
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.NoLevel, errors.Wrap(err, "invalid config")
	}
	return level, nil
}
