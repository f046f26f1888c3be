// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package reader reads single instances by id without preparing an ECSql
statement per read.

A Reader keeps one TableView per table, holding a prepared native statement
selecting a row of the table by id, and one Class per class, holding the
fields reading the class's properties from its views. A SeekPos remembers
what was read last so that a Seek repeating it reads nothing, a Seek of
another instance of the same class runs one native query and a Seek of
another class builds that class's fields once.

The caches are dropped when the connection's schema cache is cleared.
*/
package reader

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/dbmap"
	"github.com/canonical/ecsql/internal/field"
	"github.com/canonical/ecsql/internal/issue"
	"github.com/canonical/ecsql/internal/schema"
)

// Stats count the work done by a Reader since it was created.
type Stats struct {
	ClassBuilds     int
	TableViewBuilds int
	PropertyBuilds  int
	NativeSeeks     int
	// RowReuses counts seeks answered from the current row.
	RowReuses int
	// PropertyLoads counts classes loaded into the property existence
	// cache.
	PropertyLoads int
}

// InstanceKey identifies an instance. A zero ClassID matches any class.
type InstanceKey struct {
	ClassID    schema.ClassID
	InstanceID int64
}

// propertyKey is an entry of the property existence cache. The access
// string is lower case; "" stands for "any property".
type propertyKey struct {
	classID schema.ClassID
	access  string
}

// Reader seeks instances by id. It belongs to one connection.
type Reader struct {
	conn   Conn
	source func() *dbmap.Maps
	issues *issue.Reporter

	// inCallback is set while a Seek callback runs.
	inCallback atomic.Bool
	// stale is set by SchemaCacheCleared. The caches are dropped on the
	// next call holding the mutex.
	stale atomic.Bool

	mutex      sync.Mutex
	maps       *dbmap.Maps
	tableViews map[*dbmap.Table]*TableView
	classes    map[schema.ClassID]*Class
	// lastClassResolved caches class name lookups by lower case name.
	lastClassResolved map[string]*schema.Class
	loaded            map[schema.ClassID]bool
	properties        map[propertyKey]bool
	pos               SeekPos
	stats             Stats
}

// New returns a reader running native queries on conn. source returns the
// current class maps; it is called again after every schema cache clear.
func New(conn Conn, source func() *dbmap.Maps, issues *issue.Reporter) *Reader {
	r := &Reader{conn: conn, source: source, issues: issues}
	r.reset()
	return r
}

func (r *Reader) reset() {
	for _, v := range r.tableViews {
		v.close()
	}
	r.maps = nil
	r.tableViews = map[*dbmap.Table]*TableView{}
	r.classes = map[schema.ClassID]*Class{}
	r.lastClassResolved = map[string]*schema.Class{}
	r.loaded = map[schema.ClassID]bool{}
	r.properties = map[propertyKey]bool{}
	r.pos.reset()
}

// lock takes the mutex and drops the caches if the schema changed.
func (r *Reader) lock() {
	r.mutex.Lock()
	if r.stale.Swap(false) {
		r.reset()
	}
	if r.maps == nil {
		r.maps = r.source()
	}
}

// SchemaCacheCleared is the reader's schema cache clear listener. It may be
// called from inside a Seek callback.
func (r *Reader) SchemaCacheCleared() {
	r.stale.Store(true)
}

// InvalidateSeekPos drops the current row if it is the row of key, so that
// the next Seek of it reads it again. It reports whether it did.
func (r *Reader) InvalidateSeekPos(key InstanceKey) bool {
	if r.inCallback.Load() {
		// The callback is reading the row.
		return false
	}
	r.lock()
	defer r.mutex.Unlock()
	if !r.pos.hasRow || r.pos.instanceID != key.InstanceID {
		return false
	}
	if key.ClassID != 0 && key.ClassID != r.pos.rowClassID && key.ClassID != r.pos.class.Map.Class.ID {
		return false
	}
	r.pos.dropRow()
	return true
}

// Stats returns the counters.
func (r *Reader) Stats() Stats {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.stats
}

// Close releases the native statements of the table views.
func (r *Reader) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.reset()
}

// resolveClass returns the class of pos.
func (r *Reader) resolveClass(pos Position) (*schema.Class, error) {
	reg := r.maps.Registry()
	if pos.ClassID != 0 {
		c, ok := reg.ClassByID(pos.ClassID)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownClass, "class id %d", pos.ClassID)
		}
		return c, nil
	}
	key := strings.ToLower(pos.ClassName)
	if c, ok := r.lastClassResolved[key]; ok {
		return c, nil
	}
	c, ok := reg.ClassByName(pos.ClassName)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClass, "class %q", pos.ClassName)
	}
	r.lastClassResolved[key] = c
	return c, nil
}

// LastClassResolved returns the class a class name resolved to, if it was
// resolved since the last schema cache clear.
func (r *Reader) LastClassResolved(name string) (*schema.Class, bool) {
	r.lock()
	defer r.mutex.Unlock()
	c, ok := r.lastClassResolved[strings.ToLower(name)]
	return c, ok
}

func (r *Reader) view(t *dbmap.Table) *TableView {
	if v, ok := r.tableViews[t]; ok {
		return v
	}
	v := newTableView(t)
	r.tableViews[t] = v
	r.stats.TableViewBuilds++
	r.issues.Logger().Debug().Str("table", t.Name).Str("sql", v.SQL()).Msg("built table view")
	return v
}

func (r *Reader) class(c *schema.Class) (*Class, error) {
	if rc, ok := r.classes[c.ID]; ok {
		return rc, nil
	}
	cm, ok := r.maps.ClassMap(c.ID)
	if !ok {
		return nil, errors.Errorf("internal error: no class map for %s", c.FullName())
	}
	rc, err := newClass(r.issues, cm, r.view)
	if err != nil {
		return nil, errors.WithMessagef(err, "cannot read %s", c.FullName())
	}
	r.classes[c.ID] = rc
	r.stats.ClassBuilds++
	r.issues.Logger().Debug().Str("class", c.FullName()).Int("properties", len(rc.Properties)).Msg("built reader class")
	return rc, nil
}

// IsRowOfSubType reports whether rows of class rowClassID are instances of
// requested.
func (r *Reader) IsRowOfSubType(requested *schema.Class, rowClassID schema.ClassID) bool {
	if rowClassID == requested.ID {
		return true
	}
	c, ok := r.maps.Registry().ClassByID(rowClassID)
	return ok && c.Is(requested)
}

// seekRow moves the table views of class to the row with the given id and
// returns the class of the row.
func (r *Reader) seekRow(ctx context.Context, class *Class, id int64) (schema.ClassID, bool, error) {
	var rowClassID schema.ClassID
	for i, v := range class.views {
		r.stats.NativeSeeks++
		found, err := v.seek(ctx, r.conn, id)
		if err != nil {
			return 0, false, err
		}
		if i > 0 {
			continue
		}
		if !found {
			return 0, false, nil
		}
		var ok bool
		if rowClassID, ok = v.rowClassID(); !ok || class.Map.Type == dbmap.MapRelationshipEndTable {
			rowClassID = class.Map.Class.ID
		}
	}
	if !r.IsRowOfSubType(class.Map.Class, rowClassID) {
		return 0, false, nil
	}
	if class.Map.Type == dbmap.MapRelationshipEndTable {
		// The row holds a relationship only when its foreign key is set.
		nav := class.Map.OtherEnd()
		v := class.views[0]
		if i, ok := v.ColumnIndex(nav.ID); !ok || v.ColumnValue(i) == nil {
			return 0, false, nil
		}
	}
	return rowClassID, true, nil
}

// Seek reads the instance at pos and calls fn with it. It reports whether
// the instance exists; fn is only called when it does. fn runs without the
// reader's lock held but must not call Seek.
func (r *Reader) Seek(ctx context.Context, pos Position, fn func(*RowContext) error, opts Options) (bool, error) {
	if r.inCallback.Load() {
		return false, ErrReentrantSeek
	}
	row, found, err := r.seek(ctx, pos, opts, fn != nil)
	if err != nil || !found || fn == nil {
		return found, err
	}
	defer r.inCallback.Store(false)
	return true, fn(row)
}

// seek moves the cursor to pos. When callback is set and the instance
// exists it marks the reader as running a callback before releasing the
// lock.
func (r *Reader) seek(ctx context.Context, pos Position, opts Options, callback bool) (*RowContext, bool, error) {
	r.lock()
	defer r.mutex.Unlock()

	c, err := r.resolveClass(pos)
	if err != nil {
		return nil, false, err
	}
	class, err := r.class(c)
	if err != nil {
		return nil, false, err
	}
	var prop *Property
	if pos.AccessString != "" {
		var built bool
		prop, built, err = class.property(r.issues, pos.AccessString, r.view)
		if err != nil {
			return nil, false, err
		}
		if prop == nil {
			return nil, false, nil
		}
		if built {
			r.stats.PropertyBuilds++
		}
	}

	switch r.pos.compare(class, prop, pos.InstanceID) {
	case matchNone:
		r.pos.moveTo(class, prop)
		fallthrough
	case matchShape:
		if err := r.read(ctx, class, pos.InstanceID); err != nil || !r.pos.hasRow {
			return nil, false, err
		}
	case matchRow:
		if !opts.ForceSeek {
			r.stats.RowReuses++
			break
		}
		if err := r.read(ctx, class, pos.InstanceID); err != nil || !r.pos.hasRow {
			return nil, false, err
		}
	}
	if !callback {
		return nil, true, nil
	}

	row := &RowContext{
		issues:     r.issues,
		rowClassID: r.pos.rowClassID,
		jsonOpts:   r.jsonOptions(opts),
	}
	if prop != nil {
		row.values = []field.Value{prop.Field}
	} else {
		row.values = make([]field.Value, len(class.Properties))
		for i, p := range class.Properties {
			row.values[i] = p.Field
		}
	}
	r.inCallback.Store(true)
	return row, true, nil
}

func (r *Reader) read(ctx context.Context, class *Class, id int64) error {
	r.pos.dropRow()
	rowClassID, found, err := r.seekRow(ctx, class, id)
	if err != nil || !found {
		return err
	}
	r.pos.setRow(id, rowClassID)
	return nil
}

func (r *Reader) jsonOptions(opts Options) field.JSONOptions {
	jo := field.JSONOptions{
		AbbreviateBlobs: opts.AbbreviateBlobs,
		UseJSNames:      opts.UseJSPropertyNames,
	}
	if opts.ClassIDToClassNames {
		reg := r.maps.Registry()
		jo.ClassName = func(id schema.ClassID) (string, bool) {
			c, ok := reg.ClassByID(id)
			if !ok {
				return "", false
			}
			return c.FullName(), true
		}
	}
	return jo
}

// PropertyExists reports whether the class has a property, or nested
// member, with the given access string, ignoring case. An empty access
// string asks whether the class has any property.
func (r *Reader) PropertyExists(classID schema.ClassID, access string) bool {
	r.lock()
	defer r.mutex.Unlock()
	if !r.loaded[classID] {
		r.load(classID)
	}
	return r.properties[propertyKey{classID: classID, access: strings.ToLower(access)}]
}

// load adds the access strings of all properties of a class to the
// property existence cache.
func (r *Reader) load(classID schema.ClassID) {
	r.loaded[classID] = true
	r.stats.PropertyLoads++
	cm, ok := r.maps.ClassMap(classID)
	if !ok {
		return
	}
	add := func(access string) {
		r.properties[propertyKey{classID: classID, access: strings.ToLower(access)}] = true
	}
	var walk func(pm dbmap.PropertyMap)
	walk = func(pm dbmap.PropertyMap) {
		add(pm.AccessString())
		switch pm := pm.(type) {
		case *dbmap.StructPropertyMap:
			for _, m := range pm.Members {
				walk(m)
			}
		case *dbmap.PointPropertyMap:
			add(pm.AccessString() + ".X")
			add(pm.AccessString() + ".Y")
			if pm.Z != nil {
				add(pm.AccessString() + ".Z")
			}
		case *dbmap.NavigationPropertyMap:
			add(pm.AccessString() + "." + schema.NavigationId)
			add(pm.AccessString() + "." + schema.NavigationRelECClassId)
		}
	}
	for _, pm := range cm.PropertyMaps() {
		walk(pm)
	}
	if len(cm.Class.Properties(true)) > 0 {
		add("")
	}
}
