package shadow

import (
	"context"
	"fmt"

	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
)

// Resolver routes the shadow fields of an entity to a Store: it splits
// write payloads, merges records into fetched rows and turns filters on
// shadow fields into sets of remote ids.
type Resolver struct {
	store Store
}

// NewResolver returns a resolver over store. A nil store disables shadow
// handling; entities declaring shadow fields then fail on use.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Enabled reports whether e has shadow fields.
func (r *Resolver) Enabled(e *model.Entity) bool {
	return e.HasShadow()
}

// IsShadow reports whether f is a shadow field of e.
func (r *Resolver) IsShadow(e *model.Entity, f *model.Field) bool {
	return r.Enabled(e) && f.Shadow
}

func (r *Resolver) requireStore(e *model.Entity) error {
	if r.store == nil {
		return fmt.Errorf("entity %s has shadow fields but no shadow store is configured", e.Name)
	}
	return nil
}

// ResolveFilter returns the ids of the objects whose shadow record
// matches l in the given company.
func (r *Resolver) ResolveFilter(ctx context.Context, e *model.Entity, sc scope.Scope, l Lookup) ([]int64, error) {
	if err := r.requireStore(e); err != nil {
		return nil, err
	}
	ids, err := r.store.Filter(ctx, e, sc, l)
	if err != nil {
		return nil, fmt.Errorf("resolve shadow filter on %s.%s: %w", e.Name, l.Field, err)
	}
	return ids, nil
}

// Merge copies the shadow values of object id into row. Fields without a
// record are set to nil; a missing record is not an error.
func (r *Resolver) Merge(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, row map[string]any, fields []*model.Field) error {
	var wanted []*model.Field
	for _, f := range fields {
		if f.Shadow {
			wanted = append(wanted, f)
		}
	}
	if len(wanted) == 0 {
		return nil
	}
	if err := r.requireStore(e); err != nil {
		return err
	}

	rec, found, err := r.store.Get(ctx, e, sc, id)
	if err != nil {
		return fmt.Errorf("load shadow record %s/%d: %w", e.Name, id, err)
	}
	for _, f := range wanted {
		if found {
			row[f.Name] = rec[f.Name]
		} else {
			row[f.Name] = nil
		}
	}
	return nil
}

// Split separates payload into its remote-native and shadow parts.
// Keys that are not fields of e stay in the remote part.
func (r *Resolver) Split(e *model.Entity, payload map[string]any) (native map[string]any, shadowed Record) {
	native = make(map[string]any, len(payload))
	shadowed = Record{}
	for k, v := range payload {
		if f, ok := e.Field(k); ok && f.Shadow {
			shadowed[k] = v
			continue
		}
		native[k] = v
	}
	return native, shadowed
}

// Upsert stores values for object id. An existing record is updated in
// place with the given values. A new record gets every shadow field of
// e, nil where values has none. With complete set, an existing record is
// also reset to nil for the fields values omits.
func (r *Resolver) Upsert(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, values Record, complete bool) error {
	if !r.Enabled(e) {
		return nil
	}
	if err := r.requireStore(e); err != nil {
		return err
	}

	existing, found, err := r.store.Get(ctx, e, sc, id)
	if err != nil {
		return fmt.Errorf("load shadow record %s/%d: %w", e.Name, id, err)
	}

	rec := make(Record, len(values))
	for _, f := range e.ShadowFields() {
		v, given := values[f.Name]
		switch {
		case given:
			rec[f.Name] = v
		case found && !complete:
			rec[f.Name] = existing[f.Name]
		default:
			rec[f.Name] = nil
		}
	}

	if err := r.store.Upsert(ctx, e, sc, id, rec); err != nil {
		return fmt.Errorf("store shadow record %s/%d: %w", e.Name, id, err)
	}
	return nil
}

// Delete removes the records of ids in the given company.
func (r *Resolver) Delete(ctx context.Context, e *model.Entity, sc scope.Scope, ids []int64) error {
	if !r.Enabled(e) || len(ids) == 0 {
		return nil
	}
	if err := r.requireStore(e); err != nil {
		return err
	}
	if err := r.store.DeleteMany(ctx, e, sc, ids); err != nil {
		return fmt.Errorf("delete shadow records of %s: %w", e.Name, err)
	}
	return nil
}
