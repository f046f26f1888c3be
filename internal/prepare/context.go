// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package prepare translates resolved ECSql statements into native SQL.

Preparing a statement checks the write policy, builds the native SQL of each
horizontal partition the statement touches, creates one Field per select
clause item and one Binder per parameter. Fields read the columns of the
native statement's current row by index; binders hold the values of the
native parameters they were allocated.
*/
package prepare

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
)

// Context carries the state of one Prepare call.
type Context struct {
	Maps      *dbmap.Maps
	Issues    *issue.Reporter
	Preparers *SystemColumnPreparers
	// Row is the row the fields of the statement read from.
	Row    field.Row
	Policy Policy

	fields  []field.Field
	params  *params
	anchors map[*expr.ExtractExp]*anchor
}

// NewContext returns a context preparing statements against maps.
func NewContext(maps *dbmap.Maps, issues *issue.Reporter, preparers *SystemColumnPreparers, row field.Row, policy Policy) *Context {
	return &Context{
		Maps:      maps,
		Issues:    issues,
		Preparers: preparers,
		Row:       row,
		Policy:    policy,
		anchors:   map[*expr.ExtractExp]*anchor{},
	}
}

// anchor is the placeholder written into native SQL for a value that is
// only known once all native parameters are numbered: the JSON path of an
// EXTRACT call.
type anchor struct {
	name  string
	value any
}

const anchorPrefix = "_ecsql_anchor_"

// anchor returns the anchor of e, registering it on first use.
func (ctx *Context) anchor(e *expr.ExtractExp) *anchor {
	if a, ok := ctx.anchors[e]; ok {
		return a
	}
	a := &anchor{name: anchorPrefix + strconv.Itoa(len(ctx.anchors)+1), value: e.JSONPath()}
	ctx.anchors[e] = a
	return a
}

// backfillAnchors replaces the anchors in sql by numbered parameters
// following the last one in use. It returns the new SQL, the values of the
// new parameters by number and the highest parameter number.
func (ctx *Context) backfillAnchors(sql string, maxParam int) (string, map[int]any, int) {
	fixed := map[int]any{}
	if len(ctx.anchors) == 0 {
		return sql, fixed, maxParam
	}
	// Replace in descending order so that _ecsql_anchor_1 does not match
	// the prefix of _ecsql_anchor_10.
	ordered := make([]*anchor, len(ctx.anchors))
	for _, a := range ctx.anchors {
		n, _ := strconv.Atoi(strings.TrimPrefix(a.name, anchorPrefix))
		ordered[n-1] = a
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		a := ordered[i]
		if !strings.Contains(sql, a.name) {
			continue
		}
		num := maxParam + i + 1
		fixed[num] = a.value
		sql = strings.ReplaceAll(sql, a.name, "?"+strconv.Itoa(num))
	}
	for num := range fixed {
		if num > maxParam {
			maxParam = num
		}
	}
	return sql, fixed, maxParam
}

// classMap returns the map of the class a statement is about.
func (ctx *Context) classMap(ref *expr.ClassRef) (*dbmap.ClassMap, error) {
	if ref.Resolved == nil {
		return nil, ctx.internalf("class reference %s is not resolved", ref)
	}
	cm, ok := ctx.Maps.ClassMap(ref.Resolved.ID)
	if !ok {
		return nil, ctx.internalf("no class map for %s", ref.Resolved.FullName())
	}
	return cm, nil
}
