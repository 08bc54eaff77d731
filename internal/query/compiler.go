package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/flexiql/internal/codec"
	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
)

// ValueCodec converts values between their native and wire forms.
// *codec.Codec implements it.
type ValueCodec interface {
	ToFilter(t model.FieldType, v any) (any, error)
	ToWire(t model.FieldType, v any) (any, error)
	FromWire(t model.FieldType, raw any, column string, row map[string]any) (any, error)
}

// ShadowResolver routes shadow fields to the shadow store.
// *shadow.Resolver implements it.
type ShadowResolver interface {
	Enabled(e *model.Entity) bool
	IsShadow(e *model.Entity, f *model.Field) bool
	ResolveFilter(ctx context.Context, e *model.Entity, sc scope.Scope, l shadow.Lookup) ([]int64, error)
	Merge(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, row map[string]any, fields []*model.Field) error
	Split(e *model.Entity, payload map[string]any) (map[string]any, shadow.Record)
	Upsert(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, values shadow.Record, complete bool) error
	Delete(ctx context.Context, e *model.Entity, sc scope.Scope, ids []int64) error
}

var (
	_ ValueCodec     = (*codec.Codec)(nil)
	_ ShadowResolver = (*shadow.Resolver)(nil)
)

// ErrInvalidState is returned when a Builder method is called out of order.
var ErrInvalidState = errors.New("invalid builder state")

// State is the lifecycle state of a Builder.
type State int

const (
	StateIdle State = iota
	StateFiltering
	StateOrdered
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFiltering:
		return "filtering"
	case StateOrdered:
		return "ordered"
	case StateReady:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Compiler turns Query values into Plans.
type Compiler struct {
	registry *model.Registry
	codec    ValueCodec
	shadow   ShadowResolver
}

// NewCompiler returns a compiler over the entities of reg. A nil codec
// means codec.New(); a nil resolver disables shadow storage.
func NewCompiler(reg *model.Registry, vc ValueCodec, resolver ShadowResolver) *Compiler {
	if vc == nil {
		vc = codec.New()
	}
	if resolver == nil {
		resolver = shadow.NewResolver(nil)
	}
	return &Compiler{registry: reg, codec: vc, shadow: resolver}
}

// Registry returns the entity registry.
func (c *Compiler) Registry() *model.Registry {
	return c.registry
}

// Plan is a compiled query: the remote query to issue and what to do with
// the rows it returns.
type Plan struct {
	Entity *model.Entity
	Scope  scope.Scope
	Remote *remote.Query

	// Fields is the projection, in output order.
	Fields []*model.Field

	Offset int
	Limit  int

	// Empty plans match nothing and are never sent to the remote.
	Empty bool
}

// Compile checks q and builds its plan in scope sc. Leaves on shadow
// fields are resolved against the shadow store, so Compile may do local
// I/O; it never calls the remote.
func (c *Compiler) Compile(ctx context.Context, sc scope.Scope, q Query) (*Plan, error) {
	e, err := c.registry.Lookup(q.Entity)
	if err != nil {
		return nil, err
	}
	if err := CheckQuery(e, q); err != nil {
		return nil, err
	}
	fields, err := projection(e, q.Fields)
	if err != nil {
		return nil, err
	}

	b := c.NewBuilder(e, sc, fields)
	if q.Empty {
		b.MarkEmpty()
	}
	if err := b.AddFilters(ctx, q.Where); err != nil {
		return nil, err
	}
	for _, o := range q.OrderBy {
		if err := b.AddOrdering(o.Field, !o.Descending); err != nil {
			return nil, err
		}
	}
	if len(q.OrderBy) == 0 && q.Natural {
		if err := b.NaturalOrdering(!q.NaturalDescending); err != nil {
			return nil, err
		}
	}

	plan, err := b.Build()
	if err != nil {
		return nil, err
	}
	plan.Offset, plan.Limit = q.Offset, q.Limit
	return plan, nil
}

// projection resolves field names; no names means every field.
func projection(e *model.Entity, names []string) ([]*model.Field, error) {
	if len(names) == 0 {
		return e.Fields, nil
	}
	fields := make([]*model.Field, 0, len(names))
	for _, name := range names {
		f, ok := e.Field(name)
		if !ok {
			return nil, dberr.UnsupportedQueryShape(e.Name, "unknown field %q", name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Builder assembles one remote query. It moves through the states Idle,
// Filtering, Ordered and Ready; calls out of order fail with
// ErrInvalidState.
type Builder struct {
	c      *Compiler
	entity *model.Entity
	scope  scope.Scope
	fields []*model.Field
	remote *remote.Query
	state  State
	empty  bool
}

// NewBuilder starts a query on e in scope sc projecting fields.
func (c *Compiler) NewBuilder(e *model.Entity, sc scope.Scope, fields []*model.Field) *Builder {
	return &Builder{
		c:      c,
		entity: e,
		scope:  sc,
		fields: fields,
		remote: newRemoteQuery(e, sc, fields),
	}
}

// newRemoteQuery creates the remote query skeleton for e.
func newRemoteQuery(e *model.Entity, sc scope.Scope, fields []*model.Field) *remote.Query {
	q := remote.New(e.Table, sc, e.RemoteColumns(fields)...)
	q.PrimaryKey = e.PrimaryKey().Column
	q.UseAccountingPeriod = e.UseAccountingPeriod
	if via := e.StoreVia(); via != nil {
		q.Via = &remote.Via{Table: via.Table, Relation: via.Relation, FKColumn: via.FKColumn}
	}
	for _, f := range fields {
		if f.Type.Kind == model.KindItems {
			q.AddRelation(f.Column)
		}
	}
	return q
}

// State returns the current state.
func (b *Builder) State() State {
	return b.state
}

// MarkEmpty makes the plan match nothing.
func (b *Builder) MarkEmpty() {
	b.empty = true
}

// AddFilters compiles w into remote filters. It may be called once, before
// any ordering.
func (b *Builder) AddFilters(ctx context.Context, w Where) error {
	if b.state != StateIdle {
		return fmt.Errorf("%w: filters added in state %s", ErrInvalidState, b.state)
	}
	b.state = StateFiltering
	if b.empty {
		return nil
	}

	node, err := b.compile(ctx, w)
	if err != nil {
		return err
	}
	// Top level conjuncts stay separate filters so the transport can spot
	// single-object and accounting period filters.
	if and, ok := node.(filter.And); ok {
		for _, child := range and.Children {
			b.remote.AddFilter(child)
		}
		return nil
	}
	b.remote.AddFilter(node)
	return nil
}

// AddOrdering appends a sort key on a remote-native field.
func (b *Builder) AddOrdering(field string, ascending bool) error {
	if b.state == StateReady {
		return fmt.Errorf("%w: ordering added in state %s", ErrInvalidState, b.state)
	}
	e := b.entity
	f, ok := e.Field(field)
	if !ok {
		return dberr.UnsupportedQueryShape(e.Name, "cannot order by unknown field %q", field)
	}
	switch {
	case b.c.shadow.IsShadow(e, f):
		return dberr.UnsupportedQueryShape(e.Name, "cannot order by shadow field %q", field)
	case e.View && f.PrimaryKey:
		return dberr.UnsupportedQueryShape(e.Name, "cannot order view %s by its primary key", e.Name)
	case f.Type.Kind == model.KindCompany || f.Type.Kind.IsServerComputed():
		return dberr.UnsupportedQueryShape(e.Name, "cannot order by %s field %q", f.Type.Kind, field)
	}
	b.remote.AddOrdering(f.Column, ascending)
	b.state = StateOrdered
	return nil
}

// NaturalOrdering orders by the primary key. Views have no stable key
// and are left unordered.
func (b *Builder) NaturalOrdering(ascending bool) error {
	if b.state == StateReady {
		return fmt.Errorf("%w: ordering added in state %s", ErrInvalidState, b.state)
	}
	if b.entity.View {
		return nil
	}
	return b.AddOrdering(b.entity.PrimaryKey().Name, ascending)
}

// Build finishes the query.
func (b *Builder) Build() (*Plan, error) {
	if b.state == StateReady {
		return nil, fmt.Errorf("%w: already built", ErrInvalidState)
	}
	b.state = StateReady
	return &Plan{
		Entity: b.entity,
		Scope:  b.scope,
		Remote: b.remote,
		Fields: b.fields,
		Empty:  b.empty,
	}, nil
}

func (b *Builder) compile(ctx context.Context, w Where) (filter.Node, error) {
	switch n := w.(type) {
	case nil:
		return nil, nil
	case Leaf:
		return b.compileLeaf(ctx, n)
	case *Leaf:
		return b.compileLeaf(ctx, *n)
	case And:
		return b.compileGroup(ctx, n.Children, n.Negated, filter.Conjunction)
	case *And:
		return b.compileGroup(ctx, n.Children, n.Negated, filter.Conjunction)
	case Or:
		return b.compileGroup(ctx, n.Children, n.Negated, filter.Disjunction)
	case *Or:
		return b.compileGroup(ctx, n.Children, n.Negated, filter.Disjunction)
	}
	return nil, fmt.Errorf("unknown where node %T", w)
}

func (b *Builder) compileGroup(ctx context.Context, children []Where, negated bool, combine func(...filter.Node) filter.Node) (filter.Node, error) {
	nodes := make([]filter.Node, 0, len(children))
	for _, child := range children {
		n, err := b.compile(ctx, child)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	node := combine(nodes...)
	if negated && node != nil {
		return filter.Not{Child: node}, nil
	}
	return node, nil
}

func (b *Builder) compileLeaf(ctx context.Context, l Leaf) (filter.Node, error) {
	e := b.entity
	f, ok := e.Field(l.Field)
	if !ok {
		return nil, dberr.UnsupportedQueryShape(e.Name, "cannot filter by unknown field %q", l.Field)
	}
	if f.Type.Kind == model.KindCompany || f.Type.Kind.IsServerComputed() {
		return nil, dberr.UnsupportedQueryShape(e.Name, "cannot filter by %s field %q", f.Type.Kind, l.Field)
	}

	lookup, value := l.Lookup, l.Value
	if lookup == "" {
		lookup = filter.LookupExact
	}
	if !filter.IsLookup(lookup) {
		return nil, dberr.UnsupportedLookup(lookup)
	}
	if lookup == filter.LookupExact && value == nil {
		lookup, value = filter.LookupIsNull, true
	}

	switch {
	case b.c.shadow.IsShadow(e, f):
		// Shadow matches become a key filter, views included.
		ids, err := b.c.shadow.ResolveFilter(ctx, e, b.scope, shadow.Lookup{Field: f.Name, Lookup: lookup, Value: value})
		if err != nil {
			return nil, err
		}
		f, lookup, value = e.PrimaryKey(), filter.LookupIn, ids
	case e.View && f.PrimaryKey:
		return nil, dberr.UnsupportedQueryShape(e.Name, "cannot filter view %s by its primary key", e.Name)
	}

	op, wire, direct, err := filter.ResolveLookup(lookup, value)
	if err != nil {
		return nil, withField(err, f.Name)
	}
	if !direct {
		if lookup == filter.LookupIn {
			elems, ok := codec.Elems(value)
			if !ok {
				elems = []any{value}
			}
			if len(elems) == 0 {
				return filter.Contradiction{Negated: l.Negated}, nil
			}
			value = elems
		}
		if wire, err = b.c.codec.ToFilter(f.Type, value); err != nil {
			return nil, withField(err, f.Name)
		}
	}

	node, err := filter.NewElementary(f.Column, op, wire, l.Negated)
	if err != nil {
		return nil, err
	}
	return node, nil
}

// withField names field on engine errors that do not carry one yet.
func withField(err error, field string) error {
	var e *dberr.Error
	if errors.As(err, &e) && e.Field == "" {
		e.Field = field
	}
	return err
}
