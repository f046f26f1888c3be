// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
)

// Policy holds the write permissions of the connection preparing a
// statement.
type Policy struct {
	ReadOnly bool
	// RequireWriteToken is set when writes need the connection's write
	// token. HasValidToken says whether the caller presented it.
	RequireWriteToken bool
	HasValidToken     bool
}

// CheckPolicy returns an error wrapping ErrPolicyDenied if a statement of
// the given kind may not run against cm. It generates no SQL.
func CheckPolicy(policy Policy, kind expr.StatementKind, cm *dbmap.ClassMap) error {
	if kind == expr.KindSelect {
		return nil
	}
	class := cm.Class.FullName()
	switch {
	case policy.ReadOnly:
		return deniedf("cannot %s %s: database is read-only", kind, class)
	case policy.RequireWriteToken && !policy.HasValidToken:
		return deniedf("cannot %s %s: write token required", kind, class)
	case cm.Class.IsStruct() && cm.Type != dbmap.MapSecondaryTable:
		return deniedf("cannot %s %s: struct classes have no instances", kind, class)
	case !cm.IsMapped():
		return deniedf("cannot %s %s: class is not mapped", kind, class)
	case kind == expr.KindInsert && cm.Class.IsAbstract():
		return deniedf("cannot INSERT into abstract class %s", class)
	case kind == expr.KindUpdate && cm.Type == dbmap.MapRelationshipEndTable:
		return deniedf("cannot UPDATE %s: relationship is stored as a foreign key", class)
	}
	return nil
}
