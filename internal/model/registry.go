package model

import (
	"errors"
	"fmt"
	"sort"
)

// Registry holds the validated entity descriptors. It is built once at
// startup and never mutated afterwards, so it is safe for concurrent use.
type Registry struct {
	entities map[string]*Entity
	names    []string
}

// DeclarationError lists every problem found while validating descriptors.
type DeclarationError struct {
	Problems []string
}

func (e *DeclarationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid entity declaration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid entity declarations (%d problems): %s ...", len(e.Problems), e.Problems[0])
}

// NewRegistry validates the descriptors and indexes them by name.
// All problems are collected before returning.
func NewRegistry(entities ...*Entity) (*Registry, error) {
	v := &validator{}
	r := &Registry{entities: make(map[string]*Entity, len(entities))}

	for _, e := range entities {
		if e == nil {
			v.addf("nil entity descriptor")
			continue
		}
		if e.Name == "" {
			v.addf("entity with table %q has no name", e.Table)
			continue
		}
		if _, dup := r.entities[e.Name]; dup {
			v.addf("entity %q declared twice", e.Name)
			continue
		}
		v.indexEntity(e)
		r.entities[e.Name] = e
		r.names = append(r.names, e.Name)
	}

	for _, name := range r.names {
		v.resolveRelations(r, r.entities[name])
	}

	if len(v.problems) > 0 {
		return nil, &DeclarationError{Problems: v.problems}
	}
	sort.Strings(r.names)
	return r, nil
}

// MustRegistry is NewRegistry for static declarations in tests and examples.
func MustRegistry(entities ...*Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entity returns the descriptor with the given name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Names returns entity names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Lookup returns the descriptor or a descriptive error.
func (r *Registry) Lookup(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return e, nil
}

// validator accumulates declaration problems.
type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// indexEntity fills defaults and per-entity lookup tables.
func (v *validator) indexEntity(e *Entity) {
	if e.Table == "" {
		e.Table = e.Name
	}
	e.byName = make(map[string]*Field, len(e.Fields))
	e.readOnly = make(map[string]bool, len(e.ReadOnlyFields))
	e.pk = nil
	e.storeVia = nil

	columns := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		if f == nil || f.Name == "" {
			v.addf("entity %q: field without a name", e.Name)
			continue
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		if _, dup := e.byName[f.Name]; dup {
			v.addf("entity %q: field %q declared twice", e.Name, f.Name)
			continue
		}
		if other, dup := columns[f.Column]; dup {
			v.addf("entity %q: fields %q and %q share column %q", e.Name, other, f.Name, f.Column)
		}
		columns[f.Column] = f.Name
		e.byName[f.Name] = f

		if err := validateType(f.Type); err != nil {
			v.addf("entity %q: field %q: %v", e.Name, f.Name, err)
		}
		if f.PrimaryKey {
			if e.pk != nil {
				v.addf("entity %q: more than one primary key (%q, %q)", e.Name, e.pk.Name, f.Name)
			}
			e.pk = f
			if f.Shadow {
				v.addf("entity %q: primary key %q cannot be a shadow field", e.Name, f.Name)
			}
		}
		if f.Shadow && !f.Type.Kind.IsScalar() {
			v.addf("entity %q: shadow field %q must have a scalar type, got %s", e.Name, f.Name, f.Type)
		}
	}
	if e.pk == nil {
		v.addf("entity %q: no primary key", e.Name)
	}
	for _, name := range e.ReadOnlyFields {
		if _, ok := e.byName[name]; !ok {
			v.addf("entity %q: read-only field %q is not declared", e.Name, name)
		}
		e.readOnly[name] = true
	}
}

// resolveRelations checks foreign keys and resolves the store-via triple.
func (v *validator) resolveRelations(r *Registry, e *Entity) {
	for _, f := range e.Fields {
		if f == nil {
			continue
		}
		switch f.Type.Kind {
		case KindForeignKey, KindStoreVia:
			if f.Related == "" {
				v.addf("entity %q: foreign key %q has no related entity", e.Name, f.Name)
				continue
			}
			related, ok := r.entities[f.Related]
			if !ok {
				v.addf("entity %q: foreign key %q references unknown entity %q", e.Name, f.Name, f.Related)
				continue
			}
			if f.Type.Kind != KindStoreVia {
				continue
			}
			if e.storeVia != nil {
				v.addf("entity %q: more than one store-via field", e.Name)
				continue
			}
			if f.Relation == "" {
				v.addf("entity %q: store-via field %q has no relation name", e.Name, f.Name)
				continue
			}
			e.storeVia = &StoreVia{Table: related.Table, Relation: f.Relation, FKColumn: f.Column}
		}
	}
}

func validateType(t FieldType) error {
	if !knownKinds[t.Kind] {
		return fmt.Errorf("unknown field type %q", t.Kind)
	}
	if t.Kind == KindList {
		if !t.Elem.IsScalar() {
			return errors.New("list field needs a scalar element type")
		}
	} else if t.Elem != "" {
		return errors.New("element type is only valid for list fields")
	}
	return nil
}
