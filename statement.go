// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"
	"database/sql"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/prepare"
)

// Value gives typed access to a column of the current row. Accessors that
// do not apply to the column report an issue and return the zero value.
type Value = field.Value

// Binder sets the value of a parameter. Its methods return an error
// wrapping ErrBindMismatch for values the parameter cannot hold.
type Binder = prepare.Binder

type (
	Point2d = field.Point2d
	Point3d = field.Point3d
)

// stmtIDCount generates unique statement ids.
var stmtIDCount int64

type stmtState int

const (
	stateUnprepared stmtState = iota
	statePrepared
	stateStepped
	stateFinalized
)

// Statement is an ECSql statement. It is created unprepared, prepared once
// and stepped any number of times, with Reset in between. Finalize
// releases it; a Statement whose Prepare failed is finalized and must be
// discarded.
type Statement struct {
	id       int64
	state    stmtState
	db       *DB
	ecsql    string
	prepared *prepare.Prepared
	issues   *issue.Reporter

	row    *rowBuffer
	rows   *sql.Rows
	hasRow bool
	done   bool

	insertedKey InstanceKey
}

// rowBuffer holds the native columns of the current row. It is the row
// the fields of a statement read from.
type rowBuffer struct {
	values []any
}

func (r *rowBuffer) ColumnCount() int {
	return len(r.values)
}

func (r *rowBuffer) ColumnValue(i int) any {
	return r.values[i]
}

// NewStatement returns an unprepared statement. A finalizer finalizes it
// once it is garbage collected.
func NewStatement() *Statement {
	s := &Statement{
		id:     atomic.AddInt64(&stmtIDCount, 1),
		issues: issue.Nop(),
		row:    &rowBuffer{},
	}
	runtime.SetFinalizer(s, (*Statement).Finalize)
	return s
}

// Prepare translates ecsql for db. token is the write token of db; it is
// only needed for writes to a DB requiring one.
//
// Prepare fails with ErrAlreadyPrepared on a prepared statement. Any other
// failure finalizes the statement.
func (s *Statement) Prepare(ctx context.Context, db *DB, ecsql string, token *WriteToken) (err error) {
	switch s.state {
	case statePrepared, stateStepped:
		return ErrAlreadyPrepared
	case stateFinalized:
		return ErrFinalized
	}
	defer func() {
		if err != nil {
			s.Finalize()
		}
	}()

	if db == nil {
		return errors.New("cannot prepare statement: nil database")
	}
	if strings.TrimSpace(ecsql) == "" {
		return errors.Wrap(ErrInvalidECSql, "cannot prepare statement: empty ECSql")
	}
	s.issues = db.issues

	stmt, err := expr.NewParser().Parse(ecsql)
	if err != nil {
		return errors.Wrap(ErrInvalidECSql, err.Error())
	}
	pctx, err := db.prepareContext(s.row, token)
	if err != nil {
		return err
	}
	if err := expr.Resolve(pctx.Maps.Registry(), stmt); err != nil {
		return errors.Wrap(ErrInvalidECSql, err.Error())
	}
	p, err := prepare.Prepare(pctx, stmt)
	if err != nil {
		return err
	}
	if _, err := db.stmts.prepareStmt(ctx, db.conn, s.id, p.NativeSQL); err != nil {
		return errors.Wrapf(ErrInvalidECSql, "cannot prepare native statement %q: %s", p.NativeSQL, err)
	}

	s.db = db
	s.ecsql = ecsql
	s.prepared = p
	s.state = statePrepared
	return nil
}

func (s *Statement) checkPrepared() error {
	switch s.state {
	case stateUnprepared:
		return ErrNotPrepared
	case stateFinalized:
		return ErrFinalized
	}
	if s.db.isClosed() {
		return ErrClosed
	}
	return nil
}

// IsPrepared reports whether the statement can be stepped.
func (s *Statement) IsPrepared() bool {
	return s.state == statePrepared || s.state == stateStepped
}

// ECSql returns the text the statement was prepared from.
func (s *Statement) ECSql() string {
	return s.ecsql
}

// NativeSQL returns the SQL the statement runs, or "" if it is not
// prepared.
func (s *Statement) NativeSQL() string {
	if !s.IsPrepared() {
		return ""
	}
	return s.prepared.NativeSQL
}

// Step runs the statement. For a SELECT it moves to the next row and
// reports whether there is one. Other statements are run by the first Step
// after Prepare or Reset; Step returns false for them.
func (s *Statement) Step(ctx context.Context) (bool, error) {
	if err := s.checkPrepared(); err != nil {
		return false, err
	}
	s.state = stateStepped
	if s.done {
		return false, nil
	}
	if s.prepared.Kind != expr.KindSelect {
		s.done = true
		return false, s.exec(ctx)
	}

	if s.rows == nil {
		if err := s.query(ctx); err != nil {
			s.done = true
			return false, err
		}
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.closeRows()
		s.done = true
		return false, err
	}
	dest := make([]any, len(s.row.values))
	for i := range s.row.values {
		dest[i] = &s.row.values[i]
	}
	if err := s.rows.Scan(dest...); err != nil {
		s.closeRows()
		s.done = true
		return false, errors.Wrap(err, "cannot read row")
	}
	s.hasRow = true
	return true, nil
}

func (s *Statement) query(ctx context.Context) error {
	sqlstmt, err := s.db.stmts.prepareStmt(ctx, s.db.conn, s.id, s.prepared.NativeSQL)
	if err != nil {
		return errors.Wrap(err, "cannot prepare native statement")
	}
	rows, err := sqlstmt.QueryContext(ctx, s.prepared.Args()...)
	if err != nil {
		return errors.Wrap(err, "cannot run query")
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return errors.Wrap(err, "cannot read columns")
	}
	s.row.values = make([]any, len(cols))
	s.rows = rows
	s.db.stmts.acquire(s.id)
	s.db.trackRows(s.id, rows)
	return nil
}

func (s *Statement) exec(ctx context.Context) error {
	sqlstmt, err := s.db.stmts.prepareStmt(ctx, s.db.conn, s.id, s.prepared.NativeSQL)
	if err != nil {
		return errors.Wrap(err, "cannot prepare native statement")
	}
	result, err := sqlstmt.ExecContext(ctx, s.prepared.Args()...)
	if err != nil {
		return errors.Wrapf(err, "cannot run %s", s.prepared.Kind)
	}
	if s.prepared.InsertsRow {
		id, err := result.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "cannot read id of inserted row")
		}
		s.insertedKey = InstanceKey{ClassID: s.prepared.Class.ID, InstanceID: id}
	}
	return nil
}

func (s *Statement) closeRows() {
	s.hasRow = false
	if s.rows == nil {
		return
	}
	s.rows.Close()
	s.rows = nil
	if s.db != nil {
		s.db.trackRows(s.id, nil)
		s.db.stmts.release(s.id)
	}
}

// InsertedKey returns the key of the instance the last Step of an INSERT
// added. It is zero for other statements.
func (s *Statement) InsertedKey() InstanceKey {
	return s.insertedKey
}

// Reset moves the statement back before its first row. Bindings are kept.
func (s *Statement) Reset() error {
	if err := s.checkPrepared(); err != nil {
		return err
	}
	s.closeRows()
	s.done = false
	s.state = statePrepared
	return nil
}

// ClearBindings sets all parameters to NULL.
func (s *Statement) ClearBindings() error {
	if err := s.checkPrepared(); err != nil {
		return err
	}
	s.prepared.ClearBindings()
	return nil
}

// Finalize releases the statement. It can be called more than once.
func (s *Statement) Finalize() error {
	if s.state == stateFinalized {
		return nil
	}
	var err error
	if s.rows != nil {
		err = s.rows.Close()
	}
	s.closeRows()
	if s.db != nil {
		s.db.stmts.remove(s.id)
	}
	s.state = stateFinalized
	s.prepared = nil
	s.row.values = nil
	runtime.SetFinalizer(s, nil)
	return err
}

// ParameterCount returns the number of parameters, or 0 if the statement
// is not prepared.
func (s *Statement) ParameterCount() int {
	if !s.IsPrepared() {
		return 0
	}
	return s.prepared.NumParams()
}

// Binder returns the binder of the 1-based parameter index. Statements that
// are not prepared and indexes out of range get a binder whose methods all
// fail.
func (s *Statement) Binder(index int) Binder {
	if !s.IsPrepared() {
		s.issues.Report("cannot bind parameter %d: statement not prepared", index)
		return prepare.NoopBinder(s.issues, "parameter")
	}
	return s.prepared.Binder(index)
}

// BinderByName returns the binder of the parameter called name, with or
// without its leading colon.
func (s *Statement) BinderByName(name string) Binder {
	if !s.IsPrepared() {
		s.issues.Report("cannot bind parameter %s: statement not prepared", name)
		return prepare.NoopBinder(s.issues, name)
	}
	index := s.prepared.BinderIndex(name)
	if index == 0 {
		s.issues.Report("no parameter called %s", name)
		return prepare.NoopBinder(s.issues, name)
	}
	return s.prepared.Binder(index)
}

// ColumnCount returns the number of select clause items, or 0 for
// statements other than prepared SELECTs.
func (s *Statement) ColumnCount() int {
	if !s.IsPrepared() {
		return 0
	}
	return len(s.prepared.Fields)
}

// Value returns the value of select clause item i in the current row.
// Indexes out of range, statements that are not prepared and statements
// without a current row get a value whose accessors all report an issue.
func (s *Statement) Value(i int) Value {
	switch {
	case !s.IsPrepared():
		s.issues.Report("cannot get value %d: statement not prepared", i)
	case i < 0 || i >= len(s.prepared.Fields):
		s.issues.Report("column index %d out of range [0, %d)", i, len(s.prepared.Fields))
	case !s.hasRow:
		s.issues.Report("cannot get value %d: statement has no current row", i)
	default:
		return s.prepared.Fields[i]
	}
	return field.NewNoop(s.issues)
}
