package model

// Field describes one attribute of an entity.
type Field struct {
	// Name is the logical name callers use.
	Name string

	// Column is the wire column on the remote API. Defaults to Name.
	Column string

	Type       FieldType
	Nullable   bool
	PrimaryKey bool

	// Shadow marks a field stored in the local shadow store instead of the
	// remote system.
	Shadow bool

	// Default is applied on insert when the caller omits the field.
	Default any

	// Related names the related entity for foreign keys and store-via fields.
	Related string

	// Relation is the relation name on the related evidence (store-via only).
	Relation string
}

// StoreVia is the resolved indirection of an entity whose rows are written
// through a relation of a parent evidence.
type StoreVia struct {
	// Table is the parent evidence the rows are stored through.
	Table string

	// Relation is the relation name on the parent evidence.
	Relation string

	// FKColumn is the wire column referencing the parent.
	FKColumn string
}

// Entity is the static descriptor of one remote evidence.
type Entity struct {
	Name  string
	Table string

	Fields []*Field

	View                bool
	ReadOnly            bool
	UseAccountingPeriod bool

	// ReadOnlyFields lists logical field names never written to the remote.
	ReadOnlyFields []string

	// Populated by NewRegistry.
	pk       *Field
	byName   map[string]*Field
	readOnly map[string]bool
	storeVia *StoreVia
}

// PrimaryKey returns the primary key field.
func (e *Entity) PrimaryKey() *Field {
	return e.pk
}

// Field returns the field with the given logical name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// StoreVia returns the store-via indirection, or nil.
func (e *Entity) StoreVia() *StoreVia {
	return e.storeVia
}

// Immutable reports whether writes are forbidden for the entity.
func (e *Entity) Immutable() bool {
	return e.View || e.ReadOnly
}

// IsWritable reports whether the field may appear in an outgoing remote
// payload. Company fields, server-computed projections and fields listed
// in ReadOnlyFields are dropped silently.
func (e *Entity) IsWritable(f *Field) bool {
	if f.Type.Kind == KindCompany || f.Type.Kind.IsServerComputed() {
		return false
	}
	return !e.readOnly[f.Name]
}

// ShadowFields returns the fields kept in the local shadow store, in
// declaration order.
func (e *Entity) ShadowFields() []*Field {
	var out []*Field
	for _, f := range e.Fields {
		if f.Shadow {
			out = append(out, f)
		}
	}
	return out
}

// HasShadow reports whether the entity has any shadow field.
func (e *Entity) HasShadow() bool {
	for _, f := range e.Fields {
		if f.Shadow {
			return true
		}
	}
	return false
}

// RemoteColumns returns the wire columns requested from the remote system
// for the given fields. The primary key column is always included because
// merging shadow values needs it.
func (e *Entity) RemoteColumns(fields []*Field) []string {
	cols := []string{e.pk.Column}
	seen := map[string]bool{e.pk.Column: true}
	for _, f := range fields {
		if f.Shadow || f.Type.Kind == KindCompany || f.Type.Kind.IsServerComputed() {
			continue
		}
		if seen[f.Column] {
			continue
		}
		seen[f.Column] = true
		cols = append(cols, f.Column)
	}
	return cols
}
