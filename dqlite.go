// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/canonical/go-dqlite/client"
	"github.com/canonical/go-dqlite/driver"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// dqliteDriverCount numbers the dqlite drivers registered with database/sql.
// Each Open registers its own driver since the driver holds the node store.
var dqliteDriverCount int64

// openDqlite returns a database on the dqlite cluster at cfg.DqliteNodes.
// dqlite speaks the sqlite dialect, so native SQL is the same as with the
// sqlite driver.
func openDqlite(ctx context.Context, cfg Config, log zerolog.Logger) (*sql.DB, error) {
	store := client.NewInmemNodeStore()
	nodes := lo.Map(cfg.DqliteNodes, func(addr string, _ int) client.NodeInfo {
		return client.NodeInfo{Address: addr}
	})
	if err := store.Set(ctx, nodes); err != nil {
		return nil, errors.Wrap(err, "cannot set dqlite nodes")
	}
	drv, err := driver.New(store, driver.WithLogFunc(dqliteLogFunc(log)))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create dqlite driver")
	}
	name := fmt.Sprintf("ecsql-dqlite-%d", atomic.AddInt64(&dqliteDriverCount, 1))
	sql.Register(name, drv)
	return sql.Open(name, cfg.DSN)
}

// dqliteLogFunc forwards the messages of the dqlite client to log.
func dqliteLogFunc(log zerolog.Logger) client.LogFunc {
	log = log.With().Str("driver", DriverDqlite).Logger()
	return func(l client.LogLevel, format string, a ...any) {
		level := zerolog.DebugLevel
		switch l {
		case client.LogInfo:
			level = zerolog.InfoLevel
		case client.LogWarn:
			level = zerolog.WarnLevel
		case client.LogError:
			level = zerolog.ErrorLevel
		}
		log.WithLevel(level).Msgf(format, a...)
	}
}
