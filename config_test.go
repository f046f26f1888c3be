// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql_test

import (
	"context"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"

	"github.com/canonical/ecsql"
)

type ConfigSuite struct{}

var _ = Suite(&ConfigSuite{})

// setEnv sets an environment variable and returns a function restoring it.
func setEnv(c *C, key, value string) func() {
	old, ok := os.LookupEnv(key)
	c.Assert(os.Setenv(key, value), IsNil)
	return func() {
		if ok {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	}
}

func (s *ConfigSuite) TestLoadDefaults(c *C) {
	cfg, err := ecsql.LoadConfig("")
	c.Assert(err, IsNil)
	c.Check(cfg, DeepEquals, ecsql.DefaultConfig())
}

func (s *ConfigSuite) TestLoadFileAndEnvironment(c *C) {
	path := filepath.Join(c.MkDir(), "ecsql.yaml")
	err := os.WriteFile(path, []byte(`
driver: dqlite
dsn: inventory
log_level: debug
dqlite_nodes:
  - 127.0.0.1:9001
`), 0644)
	c.Assert(err, IsNil)

	cfg, err := ecsql.LoadConfig(path)
	c.Assert(err, IsNil)
	c.Check(cfg, DeepEquals, ecsql.Config{
		Driver:      ecsql.DriverDqlite,
		DSN:         "inventory",
		LogLevel:    "debug",
		DqliteNodes: []string{"127.0.0.1:9001"},
	})

	defer setEnv(c, "ECSQL_READ_ONLY", "true")()
	defer setEnv(c, "ECSQL_DQLITE_NODES", "10.0.0.1:9001, 10.0.0.2:9001,")()
	cfg, err = ecsql.LoadConfig(path)
	c.Assert(err, IsNil)
	c.Check(cfg.ReadOnly, Equals, true)
	c.Check(cfg.DqliteNodes, DeepEquals, []string{"10.0.0.1:9001", "10.0.0.2:9001"})
	c.Check(cfg.DSN, Equals, "inventory")
}

func (s *ConfigSuite) TestLoadMissingFile(c *C) {
	_, err := ecsql.LoadConfig(filepath.Join(c.MkDir(), "missing.yaml"))
	c.Assert(err, ErrorMatches, "cannot load config .*")
}

func (s *ConfigSuite) TestValidate(c *C) {
	tests := []struct {
		summary string
		change  func(*ecsql.Config)
		err     string
	}{{
		summary: "unknown driver",
		change:  func(cfg *ecsql.Config) { cfg.Driver = "postgres" },
		err:     `invalid config: unknown driver "postgres"`,
	}, {
		summary: "dqlite without nodes",
		change:  func(cfg *ecsql.Config) { cfg.Driver = ecsql.DriverDqlite },
		err:     "invalid config: dqlite driver needs dqlite_nodes",
	}, {
		summary: "empty dsn",
		change:  func(cfg *ecsql.Config) { cfg.DSN = "" },
		err:     "invalid config: empty dsn",
	}, {
		summary: "bad log level",
		change:  func(cfg *ecsql.Config) { cfg.LogLevel = "loud" },
		err:     "invalid config: .*",
	}}
	for i, t := range tests {
		c.Logf("test %d: %s", i, t.summary)
		cfg := ecsql.DefaultConfig()
		t.change(&cfg)
		c.Check(cfg.Validate(), ErrorMatches, t.err)

		_, err := ecsql.Open(context.Background(), cfg)
		c.Check(err, ErrorMatches, t.err)
	}
	c.Check(ecsql.DefaultConfig().Validate(), IsNil)
}

func (s *ConfigSuite) TestOpenSQLite(c *C) {
	cfg := ecsql.DefaultConfig()
	cfg.LogLevel = "error"
	db, err := ecsql.Open(context.Background(), cfg)
	c.Assert(err, IsNil)
	defer db.Close()

	_, ok := db.FindClass("ts.Widget")
	c.Check(ok, Equals, false)
	var one int
	err = db.PlainDB().QueryRow("SELECT 1").Scan(&one)
	c.Assert(err, IsNil)
	c.Check(one, Equals, 1)
}
