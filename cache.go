// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"context"
	"database/sql"
	"sync"
)

type stmtID = int64

// cachedStmt is the native statement of one Statement.
type cachedStmt struct {
	sqlstmt *sql.Stmt
	// busy is set while a result set of the statement is open.
	busy bool
	// stale is set when the schema cache was cleared while the statement
	// was busy. The statement is closed once its result set is.
	stale bool
}

// statementCache caches the native statement of each Statement prepared on
// the connection of a DB, indexed by the Statement ID. Statements never
// share a sql.Stmt, so that stepping one does not reset the result set of
// another running the same native SQL.
//
// Cached statements stay valid for as long as the schema does: the cache is
// cleared when the schema cache of the DB is cleared and when the DB is
// closed. A Statement looks its native statement up again on every Step so
// that it survives a clear. A statement with an open result set is only
// closed by a clear once the result set is released.
//
// The mutex must be locked when accessing stmts.
type statementCache struct {
	stmts map[stmtID]*cachedStmt
	mutex sync.RWMutex
}

func newStatementCache() *statementCache {
	return &statementCache{stmts: map[stmtID]*cachedStmt{}}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn. It is used in prepareStmt.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepareStmt returns the native statement of the Statement with the given
// ID, preparing query on ps if it is not in the cache.
func (sc *statementCache) prepareStmt(ctx context.Context, ps prepareSubstrate, id stmtID, query string) (*sql.Stmt, error) {
	sc.mutex.RLock()
	cs, ok := sc.stmts[id]
	sc.mutex.RUnlock()
	if ok {
		return cs.sqlstmt, nil
	}

	sqlstmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if csAlt, ok := sc.stmts[id]; ok {
		sqlstmt.Close()
		return csAlt.sqlstmt, nil
	}
	sc.stmts[id] = &cachedStmt{sqlstmt: sqlstmt}
	return sqlstmt, nil
}

// acquire marks the native statement of id as having an open result set.
func (sc *statementCache) acquire(id stmtID) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if cs, ok := sc.stmts[id]; ok {
		cs.busy = true
	}
}

// release marks the result set of id as closed. A statement a clear left
// behind is closed now.
func (sc *statementCache) release(id stmtID) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	cs, ok := sc.stmts[id]
	if !ok {
		return
	}
	cs.busy = false
	if cs.stale {
		cs.sqlstmt.Close()
		delete(sc.stmts, id)
	}
}

// remove closes and forgets the native statement of id.
func (sc *statementCache) remove(id stmtID) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if cs, ok := sc.stmts[id]; ok {
		cs.sqlstmt.Close()
		delete(sc.stmts, id)
	}
}

// clear closes and forgets all cached statements without an open result
// set. Busy statements are closed when released.
func (sc *statementCache) clear() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for id, cs := range sc.stmts {
		if cs.busy {
			cs.stale = true
			continue
		}
		cs.sqlstmt.Close()
		delete(sc.stmts, id)
	}
}

// closeAll closes and forgets all cached statements. The result sets must
// have been closed.
func (sc *statementCache) closeAll() {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	for id, cs := range sc.stmts {
		cs.sqlstmt.Close()
		delete(sc.stmts, id)
	}
}

func (sc *statementCache) len() int {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return len(sc.stmts)
}
