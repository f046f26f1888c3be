// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"strings"
	"sync"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/expr"
)

// Where collects the terms of a native WHERE clause.
type Where struct {
	terms []string
}

// And adds a term. Empty terms are ignored.
func (w *Where) And(term string) {
	if term != "" {
		w.terms = append(w.terms, term)
	}
}

// Terms returns the terms added so far.
func (w *Where) Terms() []string {
	return w.terms
}

// String returns the terms joined by AND, each in parentheses when there is
// more than one.
func (w *Where) String() string {
	if len(w.terms) == 1 {
		return w.terms[0]
	}
	parts := make([]string, len(w.terms))
	for i, t := range w.terms {
		parts[i] = "(" + t + ")"
	}
	return strings.Join(parts, " AND ")
}

// Clause returns " WHERE ..." or "" when there are no terms.
func (w *Where) Clause() string {
	if len(w.terms) == 0 {
		return ""
	}
	return " WHERE " + w.String()
}

// SystemColumnPreparer adds the terms a class's mapping requires to the
// WHERE clause of a native statement reading or writing partition part of
// class map cm.
type SystemColumnPreparer interface {
	AppendWhereClause(w *Where, cm *dbmap.ClassMap, part *dbmap.HorizontalPartition, kind expr.StatementKind, polymorphic bool, alias string) error
}

// regularPreparer restricts shared tables to the rows of the partition's
// classes.
type regularPreparer struct{}

func (regularPreparer) AppendWhereClause(w *Where, cm *dbmap.ClassMap, part *dbmap.HorizontalPartition, kind expr.StatementKind, polymorphic bool, alias string) error {
	storage := cm.Storage()
	if polymorphic && kind != expr.KindSelect && storage.HasMultiplePartitions() {
		return invalidf("polymorphic %s of %s spans %d tables", kind, cm.Class.FullName(), len(storage.Polymorphic))
	}
	if part == nil {
		parts := storage.Partitions(polymorphic)
		if len(parts) != 1 {
			return invalidf("%s is stored in %d tables", cm.Class.FullName(), len(parts))
		}
		part = parts[0]
	}
	w.And(part.ClassIDFilter(alias))
	return nil
}

// endTablePreparer restricts tables holding foreign key relationships to the
// rows where the foreign key is set.
type endTablePreparer struct{}

func (endTablePreparer) AppendWhereClause(w *Where, cm *dbmap.ClassMap, part *dbmap.HorizontalPartition, kind expr.StatementKind, polymorphic bool, alias string) error {
	end := cm
	if part != nil && part.ClassMap != nil {
		end = part.ClassMap
	}
	nav := end.OtherEnd()
	if nav == nil {
		return invalidf("%s has no foreign key", cm.Class.FullName())
	}
	w.And(nav.ID.QualifiedName(alias) + " IS NOT NULL")
	return nil
}

// secondaryTablePreparer restricts secondary tables to the rows holding
// struct property values rather than array elements.
type secondaryTablePreparer struct {
	regular regularPreparer
}

func (p secondaryTablePreparer) AppendWhereClause(w *Where, cm *dbmap.ClassMap, part *dbmap.HorizontalPartition, kind expr.StatementKind, polymorphic bool, alias string) error {
	if pathID, ok := cm.Table.SystemColumn(dbmap.ColumnECPropertyPathId); ok {
		w.And(pathID.QualifiedName(alias) + " IS NOT NULL")
	}
	if index, ok := cm.Table.SystemColumn(dbmap.ColumnECArrayIndex); ok {
		w.And(index.QualifiedName(alias) + " IS NULL")
	}
	return p.regular.AppendWhereClause(w, cm, part, kind, polymorphic, alias)
}

// SystemColumnPreparers holds one SystemColumnPreparer per map type,
// created on first use. It belongs to a connection and is cleared with its
// schema cache.
type SystemColumnPreparers struct {
	mutex     sync.Mutex
	preparers map[dbmap.MapType]SystemColumnPreparer
	created   int
}

func NewSystemColumnPreparers() *SystemColumnPreparers {
	return &SystemColumnPreparers{preparers: map[dbmap.MapType]SystemColumnPreparer{}}
}

// For returns the preparer of classes mapped as t.
func (s *SystemColumnPreparers) For(t dbmap.MapType) SystemColumnPreparer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if p, ok := s.preparers[t]; ok {
		return p
	}
	var p SystemColumnPreparer
	switch t {
	case dbmap.MapRelationshipEndTable:
		p = endTablePreparer{}
	case dbmap.MapSecondaryTable:
		p = secondaryTablePreparer{}
	default:
		p = regularPreparer{}
	}
	s.preparers[t] = p
	s.created++
	return p
}

// Created returns how many preparers were created since the last Clear.
func (s *SystemColumnPreparers) Created() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.created
}

// Clear drops all preparers.
func (s *SystemColumnPreparers) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.preparers = map[dbmap.MapType]SystemColumnPreparer{}
	s.created = 0
}
