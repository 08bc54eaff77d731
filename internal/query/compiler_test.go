package query

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/shadow"
	"github.com/roach88/flexiql/internal/testutil"
)

func TestCompile_Filters(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name  string
		query Query
		want  string
	}{
		{
			name: "lookups on native fields",
			query: Query{Entity: "invoice", Where: And{Children: []Where{
				Leaf{Field: "code", Lookup: "startswith", Value: "FV"},
				Leaf{Field: "total", Lookup: "gt", Value: 100},
			}}},
			want: "(kod begins 'FV') and (sumCelkem > 100)",
		},
		{
			name:  "empty lookup means exact",
			query: Query{Entity: "invoice", Where: Leaf{Field: "customer", Value: 12}},
			want:  "(firma = 12)",
		},
		{
			name:  "exact nil becomes isnull",
			query: Query{Entity: "invoice", Where: Leaf{Field: "code", Lookup: "exact"}},
			want:  "(kod is null)",
		},
		{
			name:  "isnull false",
			query: Query{Entity: "invoice", Where: Leaf{Field: "customer", Lookup: "isnull", Value: false}},
			want:  "(firma is not null)",
		},
		{
			name:  "membership keeps element order",
			query: Query{Entity: "invoice", Where: Leaf{Field: "code", Lookup: "in", Value: []string{"B", "A", "C"}}},
			want:  "(kod in ('B', 'A', 'C'))",
		},
		{
			name:  "empty membership matches nothing",
			query: Query{Entity: "invoice", Where: Leaf{Field: "id", Lookup: "in", Value: []int{}}},
			want:  "(id is null)",
		},
		{
			name:  "negated empty membership matches everything",
			query: Query{Entity: "invoice", Where: Leaf{Field: "id", Lookup: "in", Value: []int{}, Negated: true}},
			want:  "(id is not null)",
		},
		{
			name: "or with negated leaf",
			query: Query{Entity: "invoice", Where: Or{Children: []Where{
				Leaf{Field: "code", Value: "A"},
				Not(Leaf{Field: "total", Lookup: "lt", Value: "5.5"}),
			}}},
			want: "((kod = 'A') or (not (sumCelkem < 5.5)))",
		},
		{
			name: "negated group",
			query: Query{Entity: "invoice", Where: Not(And{Children: []Where{
				Leaf{Field: "code", Value: "A"},
				Leaf{Field: "issued", Lookup: "gte", Value: "2024-03-01"},
			}})},
			want: "(not ((kod = 'A') and (datVyst >= 2024-03-01)))",
		},
		{
			name:  "text with a quote",
			query: Query{Entity: "contact", Where: Leaf{Field: "name", Lookup: "icontains", Value: "O'Neil"}},
			want:  `(name like 'O\'Neil')`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plan := env.compile(t, tc.query)
			assert.Equal(t, tc.want, plan.Remote.FilterString())
		})
	}
}

func TestCompile_ShadowFilter(t *testing.T) {
	env := newTestEnv(t)
	env.shadow.Put("contact", demo.CompanyID, 3, shadow.Record{"notes": "Key account"})
	env.shadow.Put("contact", demo.CompanyID, 9, shadow.Record{"notes": "keyboard supplier"})
	env.shadow.Put("contact", demo.CompanyID, 5, shadow.Record{"notes": "late payer"})
	env.shadow.Put("contact", 2, 7, shadow.Record{"notes": "key in other company"})

	plan := env.compile(t, Query{Entity: "contact", Where: And{Children: []Where{
		Leaf{Field: "notes", Lookup: "icontains", Value: "key"},
		Leaf{Field: "active", Value: true},
	}}})
	assert.Equal(t, "(id in (3, 9)) and (active = true)", plan.Remote.FilterString())
	assert.Empty(t, env.transport.Calls(), "compiling never calls the remote")

	plan = env.compile(t, Query{Entity: "contact", Where: Leaf{Field: "notes", Lookup: "icontains", Value: "key", Negated: true}})
	assert.Equal(t, "(not (id in (3, 9)))", plan.Remote.FilterString())

	plan = env.compile(t, Query{Entity: "contact", Where: Leaf{Field: "rating", Lookup: "gt", Value: 3}})
	assert.Equal(t, "(id is null)", plan.Remote.FilterString(), "no shadow match")

	plan = env.compile(t, Query{Entity: "contact", Where: Leaf{Field: "rating", Lookup: "gt", Value: 3, Negated: true}})
	assert.Equal(t, "(id is not null)", plan.Remote.FilterString())
}

func TestCompile_ShadowFilterOnView(t *testing.T) {
	mem := testutil.NewMemoryShadow()
	c := NewCompiler(model.MustRegistry(&model.Entity{
		Name:  "balance",
		Table: "saldo",
		View:  true,
		Fields: []*model.Field{
			{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
			{Name: "amount", Column: "zbyvaUhradit", Type: model.TypeOf(model.KindDecimal), Nullable: true},
			{Name: "flag", Type: model.TypeOf(model.KindText), Nullable: true, Shadow: true},
		},
	}), nil, shadow.NewResolver(mem))
	mem.Put("balance", demo.CompanyID, 4, shadow.Record{"flag": "disputed"})

	plan, err := c.Compile(context.Background(), demo, Query{Entity: "balance", Where: Leaf{Field: "flag", Value: "disputed"}})
	require.NoError(t, err)
	assert.Equal(t, "(id in (4))", plan.Remote.FilterString())

	_, err = c.Compile(context.Background(), demo, Query{Entity: "balance", Where: Leaf{Field: "id", Value: 4}})
	assert.True(t, dberr.IsUnsupportedQueryShape(err), "the key itself stays unfilterable")
}

func TestCompile_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		query Query
		check func(error) bool
	}{
		{"view primary key", Query{Entity: "balance", Where: Leaf{Field: "id", Value: 1}}, dberr.IsUnsupportedQueryShape},
		{"unknown field", Query{Entity: "invoice", Where: Leaf{Field: "missing", Value: 1}}, dberr.IsUnsupportedQueryShape},
		{"company field", Query{Entity: "contact", Where: Leaf{Field: "company", Value: 1}}, dberr.IsUnsupportedQueryShape},
		{"server computed field", Query{Entity: "invoice", Where: Leaf{Field: "items", Lookup: "isnull", Value: true}}, dberr.IsUnsupportedQueryShape},
		{"unknown lookup", Query{Entity: "invoice", Where: Leaf{Field: "code", Lookup: "regex", Value: ".*"}}, dberr.IsUnsupportedLookup},
		{"malformed value", Query{Entity: "invoice", Where: Leaf{Field: "total", Lookup: "gt", Value: "abc"}}, dberr.IsValueConversion},
		{"unknown projection", Query{Entity: "invoice", Fields: []string{"nope"}}, dberr.IsUnsupportedQueryShape},
		{"join", Query{Entity: "invoice", Joins: []string{"adresar"}}, dberr.IsUnsupportedQueryShape},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.compiler.Compile(ctx, demo, tc.query)
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected error: %v", err)
		})
	}

	_, err := env.compiler.Compile(ctx, demo, Query{Entity: "nope"})
	assert.Error(t, err)
}

func TestCompile_ValueErrorNamesField(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.compiler.Compile(context.Background(), demo, Query{Entity: "invoice", Where: Leaf{Field: "issued", Lookup: "lt", Value: "yesterday"}})
	require.Error(t, err)

	var e *dberr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, dberr.CodeValueConversion, e.Code)
	assert.Equal(t, "issued", e.Field)
}

func TestCompile_Ordering(t *testing.T) {
	env := newTestEnv(t)

	plan := env.compile(t, Query{Entity: "invoice", OrderBy: []Order{
		{Field: "issued", Descending: true},
		{Field: "code"},
		{Field: "id"},
	}})
	assert.Equal(t, []string{"datVyst@D", "kod@A", "id@A"}, plan.Remote.OrderStrings())

	plan = env.compile(t, Query{Entity: "invoice", Natural: true})
	assert.Equal(t, []string{"id@A"}, plan.Remote.OrderStrings())

	plan = env.compile(t, Query{Entity: "invoice", Natural: true, NaturalDescending: true})
	assert.Equal(t, []string{"id@D"}, plan.Remote.OrderStrings())

	plan = env.compile(t, Query{Entity: "invoice", Natural: true, OrderBy: []Order{{Field: "code"}}})
	assert.Equal(t, []string{"kod@A"}, plan.Remote.OrderStrings(), "explicit ordering wins")

	plan = env.compile(t, Query{Entity: "balance", Natural: true})
	assert.Empty(t, plan.Remote.OrderStrings(), "views have no natural ordering")

	plan = env.compile(t, Query{Entity: "balance", OrderBy: []Order{{Field: "due"}}})
	assert.Equal(t, []string{"datSplat@A"}, plan.Remote.OrderStrings())
}

func TestCompile_OrderingRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, q := range []Query{
		{Entity: "contact", OrderBy: []Order{{Field: "notes"}}},
		{Entity: "balance", OrderBy: []Order{{Field: "id"}}},
		{Entity: "contact", OrderBy: []Order{{Field: "company"}}},
		{Entity: "invoice", OrderBy: []Order{{Field: "missing"}}},
	} {
		_, err := env.compiler.Compile(ctx, demo, q)
		assert.True(t, dberr.IsUnsupportedQueryShape(err), "%s by %s: %v", q.Entity, q.OrderBy[0].Field, err)
	}
}

func TestCompile_RemoteQuery(t *testing.T) {
	env := newTestEnv(t)

	plan := env.compile(t, Query{Entity: "invoice", Fields: []string{"code", "items"}, Offset: 10, Limit: 5, Where: And{Children: []Where{
		Leaf{Field: "period", Value: "code:2024"},
		Leaf{Field: "code", Lookup: "startswith", Value: "FV"},
	}}})
	assert.Equal(t, "faktura-vydana", plan.Remote.Table)
	assert.Equal(t, []string{"id", "kod"}, plan.Remote.Columns)
	assert.Equal(t, []string{"polozkyFaktury"}, plan.Remote.Relations)
	assert.Equal(t, demo, plan.Remote.Scope)
	assert.Equal(t, 10, plan.Offset)
	assert.Equal(t, 5, plan.Limit)
	assert.Len(t, plan.Remote.Filters, 2, "top level conjuncts stay separate")

	period, ok := plan.Remote.AccountingPeriod()
	require.True(t, ok)
	assert.Equal(t, "code:2024", period)

	item := env.compile(t, Query{Entity: "item"})
	require.NotNil(t, item.Remote.Via)
	assert.Equal(t, "faktura-vydana", item.Remote.Via.Table)
	assert.Equal(t, "polozkyFaktury", item.Remote.Via.Relation)
	assert.Equal(t, "doklFak", item.Remote.Via.FKColumn)

	single := env.compile(t, Query{Entity: "invoice", Where: Leaf{Field: "id", Value: "12"}})
	id, ok := single.Remote.IsSingleObject()
	assert.True(t, ok)
	assert.Equal(t, "12", id)
}

func TestCompile_EmptyQuery(t *testing.T) {
	env := newTestEnv(t)

	plan := env.compile(t, Query{Entity: "invoice", Empty: true, Where: Leaf{Field: "code", Value: "A"}})
	assert.True(t, plan.Empty)
	assert.Empty(t, plan.Remote.Filters)
}

func TestBuilder_States(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e, err := env.compiler.Registry().Lookup("invoice")
	require.NoError(t, err)

	b := env.compiler.NewBuilder(e, demo, e.Fields)
	assert.Equal(t, StateIdle, b.State())

	require.NoError(t, b.AddFilters(ctx, Leaf{Field: "code", Value: "A"}))
	assert.Equal(t, StateFiltering, b.State())

	err = b.AddFilters(ctx, Leaf{Field: "code", Value: "B"})
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, b.AddOrdering("code", true))
	require.NoError(t, b.AddOrdering("issued", false))
	assert.Equal(t, StateOrdered, b.State())

	err = b.AddFilters(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidState, "filters after ordering")

	plan, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, StateReady, b.State())
	assert.Equal(t, []string{"kod@A", "datVyst@D"}, plan.Remote.OrderStrings())

	assert.ErrorIs(t, b.AddOrdering("code", true), ErrInvalidState)
	assert.ErrorIs(t, b.NaturalOrdering(true), ErrInvalidState)
	_, err = b.Build()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestBuilder_OrderingWithoutFilters(t *testing.T) {
	env := newTestEnv(t)
	e, err := env.compiler.Registry().Lookup("invoice")
	require.NoError(t, err)

	b := env.compiler.NewBuilder(e, demo, nil)
	require.NoError(t, b.AddOrdering("code", true))
	plan, err := b.Build()
	require.NoError(t, err)
	assert.Empty(t, plan.Remote.Filters)
	assert.Equal(t, []string{"kod@A"}, plan.Remote.OrderStrings())
}

func TestCompile_Golden(t *testing.T) {
	env := newTestEnv(t)
	env.shadow.Put("contact", demo.CompanyID, 4, shadow.Record{"rating": int64(5)})

	doc := []Query{
		{Entity: "invoice", Natural: true, Where: And{Children: []Where{
			Leaf{Field: "period", Value: "code:2024"},
			Or{Children: []Where{
				Leaf{Field: "total", Lookup: "gte", Value: "1000"},
				Leaf{Field: "customer", Lookup: "in", Value: []int{12, 7}},
			}},
		}}},
		{Entity: "contact", OrderBy: []Order{{Field: "name"}, {Field: "created", Descending: true}}, Where: And{Children: []Where{
			Leaf{Field: "rating", Lookup: "gte", Value: 4},
			Not(Leaf{Field: "code", Lookup: "endswith", Value: "-X"}),
		}}},
		{Entity: "balance", Where: Leaf{Field: "due", Lookup: "lt", Value: "2024-12-31"}},
	}

	var out strings.Builder
	for _, q := range doc {
		plan := env.compile(t, q)
		fmt.Fprintf(&out, "%s\n  filter: %s\n  order: %s\n", plan.Remote.Table, plan.Remote.FilterString(), strings.Join(plan.Remote.OrderStrings(), ","))
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "compiled_queries", []byte(out.String()))
}
