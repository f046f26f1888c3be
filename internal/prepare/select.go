// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strconv"
	"strings"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
)

// prepareSelect creates the fields of s and returns its native SQL. A
// polymorphic SELECT over several tables becomes a UNION ALL of one SELECT
// per table.
func prepareSelect(ctx *Context, s *expr.SelectStatement) (string, error) {
	cm, err := ctx.classMap(s.From)
	if err != nil {
		return "", err
	}
	if !cm.IsMapped() {
		return "", invalidf("class %s is not mapped to a table", cm.Class.FullName())
	}

	// starts[i] is the first native column of select clause item i.
	starts := make([]int, len(s.Items))
	next := 0
	for i, item := range s.Items {
		starts[i] = next
		if next, err = CreateField(ctx, item, next); err != nil {
			return "", err
		}
	}

	parts := cm.Storage().Partitions(s.From.Polymorphic)
	if len(parts) == 0 {
		// No table holds instances of the class: the result is empty.
		return "SELECT " + strings.TrimSuffix(strings.Repeat("NULL, ", next), ", ") + " WHERE 0", nil
	}

	alias := s.From.Alias
	preparer := ctx.Preparers.For(cm.Type)
	selects := make([]string, len(parts))
	for i, part := range parts {
		r := newRenderer(ctx, part, alias)
		var cols []string
		for _, item := range s.Items {
			itemCols, err := r.selectItem(item)
			if err != nil {
				return "", err
			}
			cols = append(cols, itemCols...)
		}
		if len(cols) != next {
			return "", ctx.internalf("select clause of %s has %d native columns, fields read %d", part.Table.Name, len(cols), next)
		}
		w := &Where{}
		if s.Where != nil {
			sql, err := r.exp(s.Where)
			if err != nil {
				return "", err
			}
			w.And(sql)
		}
		if err := preparer.AppendWhereClause(w, cm, part, expr.KindSelect, s.From.Polymorphic, alias); err != nil {
			return "", err
		}
		distinct := ""
		if s.Distinct {
			distinct = "DISTINCT "
		}
		selects[i] = "SELECT " + distinct + strings.Join(cols, ", ") + fromClause(part.Table, alias) + w.Clause()
	}

	union := " UNION ALL "
	if s.Distinct {
		union = " UNION "
	}
	sql := strings.Join(selects, union)

	r := newRenderer(ctx, parts[0], alias)
	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			term, err := orderTerm(r, s, starts, o, len(parts) > 1)
			if err != nil {
				return "", err
			}
			if o.Desc {
				term += " DESC"
			}
			terms[i] = term
		}
		sql += " ORDER BY " + strings.Join(terms, ", ")
	}
	if s.Limit != nil {
		limit, err := r.exp(s.Limit)
		if err != nil {
			return "", err
		}
		sql += " LIMIT " + limit
		if s.Offset != nil {
			offset, err := r.exp(s.Offset)
			if err != nil {
				return "", err
			}
			sql += " OFFSET " + offset
		}
	}
	return sql, nil
}

// orderTerm renders an ORDER BY term. Terms naming a select clause item
// by alias, and all terms of a UNION, refer to the item's first native
// column by its ordinal.
func orderTerm(r *renderer, s *expr.SelectStatement, starts []int, o *expr.OrderItem, union bool) (string, error) {
	item := o.SelectItem
	if item == nil && union {
		item = matchingItem(s.Items, o.Exp)
		if item == nil {
			return "", invalidf("ORDER BY term %s must be a select clause item when %s spans several tables", o.Exp, s.From.ClassName)
		}
	}
	if item == nil {
		return r.exp(o.Exp)
	}
	for i, it := range s.Items {
		if it == item {
			return strconv.Itoa(starts[i] + 1), nil
		}
	}
	return "", r.ctx.internalf("ORDER BY item %s not in select clause", item)
}

// matchingItem returns the select clause item reading the same property as
// e, if any.
func matchingItem(items []*expr.DerivedProperty, e expr.Exp) *expr.DerivedProperty {
	pe, ok := e.(*expr.PropertyExp)
	if !ok {
		return nil
	}
	for _, item := range items {
		if ip, ok := item.Exp.(*expr.PropertyExp); ok && strings.EqualFold(ip.AccessString(), pe.AccessString()) {
			return item
		}
	}
	return nil
}

// singlePartition returns the partition a write to cm touches. It fails
// when the class spans several tables.
func singlePartition(cm *dbmap.ClassMap, kind expr.StatementKind, polymorphic bool) (*dbmap.HorizontalPartition, error) {
	parts := cm.Storage().Partitions(polymorphic)
	switch len(parts) {
	case 0:
		return nil, invalidf("cannot %s %s: class has no table", kind, cm.Class.FullName())
	case 1:
		return parts[0], nil
	}
	return nil, invalidf("polymorphic %s of %s spans %d tables", kind, cm.Class.FullName(), len(parts))
}
