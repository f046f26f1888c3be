// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/prepare"
	"github.com/canonical/ecsql/internal/reader"
	"github.com/canonical/ecsql/internal/schema"
)

// WriteToken authorizes writes to a DB opened with RequireWriteToken.
type WriteToken struct {
	id uuid.UUID
}

func (t *WriteToken) String() string {
	return t.id.String()
}

// DB is a connection to an EC database: a native database holding the
// tables the imported schemas map to.
//
// All native statements run on a single connection of the underlying
// sql.DB so that in-memory databases and the statements cached on the
// connection stay consistent. A DB is not meant for concurrent use by
// several goroutines.
type DB struct {
	cfg    Config
	sqldb  *sql.DB
	conn   *sql.Conn
	issues *issue.Reporter
	token  *WriteToken
	stmts  *statementCache
	reader *reader.Reader

	// mutex guards the fields below.
	mutex        sync.RWMutex
	registry     *schema.Registry
	maps         *dbmap.Maps
	preparers    *prepare.SystemColumnPreparers
	created      map[string]bool
	listeners    map[int]func()
	nextListener int
	closed       bool

	// rowsMutex guards openRows, the result sets of stepped statements
	// indexed by statement id. They are closed with the DB.
	rowsMutex sync.Mutex
	openRows  map[int64]*sql.Rows
}

// Open opens the database cfg describes.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := cfg.level()
	log := issue.NewConsoleLogger(level)

	var sqldb *sql.DB
	var err error
	switch cfg.Driver {
	case DriverDqlite:
		sqldb, err = openDqlite(ctx, cfg, log)
	default:
		sqldb, err = sql.Open(DriverSQLite, cfg.DSN)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s database", cfg.Driver)
	}
	db, err := newDB(ctx, sqldb, cfg, issue.NewReporter(log))
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// NewDB returns a DB running on a connection of sqldb, which must be a
// sqlite database. The DB takes ownership of sqldb and closes it on Close.
// The driver settings of cfg are ignored.
func NewDB(ctx context.Context, sqldb *sql.DB, cfg Config) (*DB, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, err
	}
	return newDB(ctx, sqldb, cfg, issue.NewReporter(issue.NewConsoleLogger(level)))
}

func newDB(ctx context.Context, sqldb *sql.DB, cfg Config, issues *issue.Reporter) (*DB, error) {
	conn, err := sqldb.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to database")
	}
	registry := schema.NewRegistry()
	maps, err := dbmap.Map(registry)
	if err != nil {
		conn.Close()
		return nil, err
	}
	db := &DB{
		cfg:       cfg,
		sqldb:     sqldb,
		conn:      conn,
		issues:    issues,
		token:     &WriteToken{id: uuid.New()},
		stmts:     newStatementCache(),
		registry:  registry,
		maps:      maps,
		preparers: prepare.NewSystemColumnPreparers(),
		created:   map[string]bool{},
		listeners: map[int]func(){},
		openRows:  map[int64]*sql.Rows{},
	}
	db.reader = reader.New(conn, db.currentMaps, issues)
	db.OnSchemaCacheCleared(db.reader.SchemaCacheCleared)
	return db, nil
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// WriteToken returns the token writes must present when the DB requires
// one.
func (db *DB) WriteToken() *WriteToken {
	return db.token
}

// policy returns the write permissions of a caller presenting token.
func (db *DB) policy(token *WriteToken) prepare.Policy {
	return prepare.Policy{
		ReadOnly:          db.cfg.ReadOnly,
		RequireWriteToken: db.cfg.RequireWriteToken,
		HasValidToken:     token != nil && token == db.token,
	}
}

func (db *DB) currentMaps() *dbmap.Maps {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.maps
}

// prepareContext returns the context preparing a statement whose fields
// read row.
func (db *DB) prepareContext(row field.Row, token *WriteToken) (*prepare.Context, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	return prepare.NewContext(db.maps, db.issues, db.preparers, row, db.policy(token)), nil
}

// Prepare returns a statement prepared from ecsql.
func (db *DB) Prepare(ctx context.Context, ecsql string, token *WriteToken) (*Statement, error) {
	s := NewStatement()
	if err := s.Prepare(ctx, db, ecsql, token); err != nil {
		return nil, err
	}
	return s, nil
}

// ImportSchemas adds schemas to the DB and creates the tables they map to.
// Importing is a write: it needs the write token when the DB requires one.
// The schema cache is cleared afterwards.
func (db *DB) ImportSchemas(ctx context.Context, token *WriteToken, schemas ...*Schema) error {
	policy := db.policy(token)
	switch {
	case policy.ReadOnly:
		return errors.Wrap(ErrPolicyDenied, "cannot import schemas: database is read-only")
	case policy.RequireWriteToken && !policy.HasValidToken:
		return errors.Wrap(ErrPolicyDenied, "cannot import schemas: write token required")
	}

	if err := db.importSchemas(ctx, schemas); err != nil {
		return errors.WithMessage(err, "cannot import schemas")
	}
	db.schemaCacheCleared()
	return nil
}

func (db *DB) importSchemas(ctx context.Context, schemas []*Schema) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.closed {
		return ErrClosed
	}
	for _, s := range schemas {
		if err := db.registry.Add(s); err != nil {
			return err
		}
	}
	maps, err := dbmap.Map(db.registry)
	if err != nil {
		return err
	}
	for _, ddl := range dbmap.SequenceDDL() {
		if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
			return errors.Wrap(err, "cannot create instance id sequence")
		}
	}
	tables := lo.Filter(maps.Tables(), func(t *dbmap.Table, _ int) bool {
		return !db.created[t.Name]
	})
	for _, t := range tables {
		for _, ddl := range t.DDL() {
			if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
				return errors.Wrapf(err, "cannot create table %s", t.Name)
			}
		}
		db.created[t.Name] = true
	}
	db.maps = maps
	db.preparers = prepare.NewSystemColumnPreparers()
	db.issues.Logger().Info().
		Strs("schemas", lo.Map(schemas, func(s *Schema, _ int) string { return s.Name })).
		Int("tables", len(tables)).
		Msg("imported schemas")
	return nil
}

// ClearSchemaCache drops everything derived from the schemas: the class
// maps, the cached native statements and the caches of the instance
// reader. Listeners registered with OnSchemaCacheCleared are called.
// Statements prepared before keep working. A statement in the middle of a
// result set keeps reading it; its native statement is closed once the
// result set is.
func (db *DB) ClearSchemaCache() error {
	db.mutex.Lock()
	if db.closed {
		db.mutex.Unlock()
		return ErrClosed
	}
	maps, err := dbmap.Map(db.registry)
	if err != nil {
		db.mutex.Unlock()
		return errors.WithMessage(err, "cannot clear schema cache")
	}
	db.maps = maps
	db.preparers = prepare.NewSystemColumnPreparers()
	db.mutex.Unlock()

	db.schemaCacheCleared()
	return nil
}

// schemaCacheCleared broadcasts a schema cache clear. It must be called
// without the mutex held since listeners may use the DB.
func (db *DB) schemaCacheCleared() {
	db.stmts.clear()
	db.mutex.RLock()
	ids := lo.Keys(db.listeners)
	sort.Ints(ids)
	listeners := lo.Map(ids, func(id int, _ int) func() { return db.listeners[id] })
	db.mutex.RUnlock()
	for _, l := range listeners {
		l()
	}
}

// OnSchemaCacheCleared registers fn to be called after every schema cache
// clear, in registration order. It returns a function removing fn again.
func (db *DB) OnSchemaCacheCleared(fn func()) func() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	id := db.nextListener
	db.nextListener++
	db.listeners[id] = fn
	return func() {
		db.mutex.Lock()
		delete(db.listeners, id)
		db.mutex.Unlock()
	}
}

// AddIssueListener registers fn to receive the text of every issue the DB
// reports: misuse of values and binders, and internal errors. It returns a
// function removing fn again.
func (db *DB) AddIssueListener(fn func(msg string)) func() {
	return db.issues.AddListener(fn)
}

// FindClass returns the class called "Schema.Class", "Schema:Class" or
// "alias.Class", ignoring case.
func (db *DB) FindClass(name string) (*Class, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.registry.ClassByName(name)
}

func (db *DB) trackRows(id int64, rows *sql.Rows) {
	db.rowsMutex.Lock()
	defer db.rowsMutex.Unlock()
	if rows == nil {
		delete(db.openRows, id)
		return
	}
	db.openRows[id] = rows
}

// Close closes the native statements, the connection and the underlying
// sql.DB. Statements of the DB cannot be stepped afterwards.
func (db *DB) Close() error {
	db.mutex.Lock()
	if db.closed {
		db.mutex.Unlock()
		return nil
	}
	db.closed = true
	db.mutex.Unlock()

	// Open result sets hold the connection.
	db.rowsMutex.Lock()
	for id, rows := range db.openRows {
		rows.Close()
		delete(db.openRows, id)
	}
	db.rowsMutex.Unlock()

	db.reader.Close()
	db.stmts.closeAll()
	connErr := db.conn.Close()
	if err := db.sqldb.Close(); err != nil {
		return err
	}
	return connErr
}

func (db *DB) isClosed() bool {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.closed
}
