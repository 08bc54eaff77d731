package query

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/flexiql/internal/codec"
	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
)

// Insert creates one object of entity from values keyed by logical field
// name and returns its remote id. Shadow values are stored after the
// remote insert succeeds.
func (x *Executor) Insert(ctx context.Context, sc scope.Scope, entity string, values map[string]any) (int64, error) {
	e, err := x.writableEntity(entity, "insert")
	if err != nil {
		return 0, err
	}
	if err := checkKeys(e, values); err != nil {
		return 0, err
	}

	values = withDefaults(e, values)
	for _, f := range e.Fields {
		if err := checkNull(e, f, values[f.Name]); err != nil {
			return 0, err
		}
	}

	native, shadowed := x.compiler.shadow.Split(e, values)
	rec, err := coerceShadow(e, shadowed)
	if err != nil {
		return 0, err
	}
	payload, err := x.payload(e, native)
	if err != nil {
		return 0, err
	}

	x.logger.Debug().Str("entity", e.Name).Strs("columns", slices.Sorted(maps.Keys(payload))).Msg("insert")
	id, err := x.transport.Insert(ctx, newRemoteQuery(e, sc, nil), payload)
	if err != nil {
		return 0, err
	}
	if x.compiler.shadow.Enabled(e) {
		if err := x.compiler.shadow.Upsert(ctx, e, sc, id, rec, true); err != nil {
			return id, fmt.Errorf("object %s/%d was created: %w", e.Name, id, err)
		}
	}
	return id, nil
}

// Update writes values to every object matching q and returns the ids of
// the affected objects. Only the given shadow fields change.
func (x *Executor) Update(ctx context.Context, sc scope.Scope, q Query, values map[string]any) ([]int64, error) {
	e, err := x.writableEntity(q.Entity, "update")
	if err != nil {
		return nil, err
	}
	if err := checkKeys(e, values); err != nil {
		return nil, err
	}
	for name, v := range values {
		f, _ := e.Field(name)
		if err := checkNull(e, f, v); err != nil {
			return nil, err
		}
	}

	native, shadowed := x.compiler.shadow.Split(e, values)
	rec, err := coerceShadow(e, shadowed)
	if err != nil {
		return nil, err
	}
	payload, err := x.payload(e, native)
	if err != nil {
		return nil, err
	}

	q.Fields = []string{e.PrimaryKey().Name}
	plan, err := x.compiler.Compile(ctx, sc, q)
	if err != nil {
		return nil, err
	}
	if plan.Empty {
		return nil, nil
	}

	var ids []int64
	if len(payload) == 0 {
		// Nothing to send; the shadow fields still need the affected ids.
		ids, err = x.matchingIDs(ctx, plan)
	} else {
		x.logger.Debug().
			Str("entity", e.Name).
			Str("filter", plan.Remote.FilterString()).
			Strs("columns", slices.Sorted(maps.Keys(payload))).
			Msg("update")
		ids, err = x.transport.Update(ctx, plan.Remote, payload)
	}
	if err != nil {
		return nil, err
	}

	if len(rec) == 0 || !x.compiler.shadow.Enabled(e) {
		return ids, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			return x.compiler.shadow.Upsert(gctx, e, sc, id, rec, false)
		})
	}
	if err := g.Wait(); err != nil {
		return ids, fmt.Errorf("objects of %s were updated: %w", e.Name, err)
	}
	return ids, nil
}

// Delete removes every object matching q together with its shadow
// record, and returns the removed ids.
func (x *Executor) Delete(ctx context.Context, sc scope.Scope, q Query) ([]int64, error) {
	e, err := x.writableEntity(q.Entity, "delete")
	if err != nil {
		return nil, err
	}

	q.Fields = []string{e.PrimaryKey().Name}
	plan, err := x.compiler.Compile(ctx, sc, q)
	if err != nil {
		return nil, err
	}
	if plan.Empty {
		return nil, nil
	}

	x.logger.Debug().Str("entity", e.Name).Str("filter", plan.Remote.FilterString()).Msg("delete")
	ids, err := x.transport.Delete(ctx, plan.Remote)
	if err != nil {
		return nil, err
	}
	if err := x.compiler.shadow.Delete(ctx, e, sc, ids); err != nil {
		return ids, fmt.Errorf("objects of %s were deleted: %w", e.Name, err)
	}
	return ids, nil
}

func (x *Executor) writableEntity(name, operation string) (*model.Entity, error) {
	e, err := x.compiler.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if e.Immutable() {
		return nil, dberr.OperationNotAllowed(e.Name, operation)
	}
	return e, nil
}

// payload converts the remote-native values to wire form keyed by column.
// Fields the remote never takes are dropped, and so are nil values.
func (x *Executor) payload(e *model.Entity, native map[string]any) (remote.Payload, error) {
	p := make(remote.Payload, len(native))
	for name, v := range native {
		f, _ := e.Field(name)
		if !e.IsWritable(f) {
			continue
		}
		w, err := x.compiler.codec.ToWire(f.Type, v)
		if err != nil {
			return nil, withField(err, f.Name)
		}
		if w == nil {
			continue
		}
		p[f.Column] = w
	}
	return p, nil
}

func checkKeys(e *model.Entity, values map[string]any) error {
	for name := range values {
		if _, ok := e.Field(name); !ok {
			return dberr.UnsupportedQueryShape(e.Name, "unknown field %q", name)
		}
	}
	return nil
}

// withDefaults returns a copy of values with the declared defaults of
// missing fields.
func withDefaults(e *model.Entity, values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	maps.Copy(out, values)
	for _, f := range e.Fields {
		if _, ok := out[f.Name]; !ok && f.Default != nil {
			out[f.Name] = f.Default
		}
	}
	return out
}

// checkNull rejects nil for non-nullable fields. The primary key, company
// fields and fields never written are exempt.
func checkNull(e *model.Entity, f *model.Field, v any) error {
	if v != nil || f.Nullable || f.PrimaryKey {
		return nil
	}
	if !f.Shadow && !e.IsWritable(f) {
		return nil
	}
	return dberr.Integrity(e.Name, f.Name)
}

func coerceShadow(e *model.Entity, values shadow.Record) (shadow.Record, error) {
	rec := make(shadow.Record, len(values))
	for name, v := range values {
		f, _ := e.Field(name)
		n, err := codec.Coerce(f.Type, v)
		if err != nil {
			return nil, withField(err, f.Name)
		}
		rec[name] = n
	}
	return rec, nil
}
