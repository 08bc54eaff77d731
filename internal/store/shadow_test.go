package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
)

func TestShadow_GetMissing(t *testing.T) {
	s := createTestStore(t)
	sc := createTestCompany(t, s, "demo")

	rec, found, err := s.Get(context.Background(), mustEntity(t, s, "contact"), sc, 42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
}

func TestShadow_UpsertAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")

	require.NoError(t, s.Upsert(ctx, contact, sc, 7, shadow.Record{"notes": "vip", "rating": "5"}))

	rec, found, err := s.Get(ctx, contact, sc, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, shadow.Record{"notes": "vip", "rating": int64(5)}, rec)

	// A second upsert replaces the record; omitted fields become null.
	require.NoError(t, s.Upsert(ctx, contact, sc, 7, shadow.Record{"rating": int64(2)}))

	rec, found, err = s.Get(ctx, contact, sc, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, shadow.Record{"notes": nil, "rating": int64(2)}, rec)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM shadow_contact").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestShadow_UpsertRejectsBadValue(t *testing.T) {
	s := createTestStore(t)
	sc := createTestCompany(t, s, "demo")

	err := s.Upsert(context.Background(), mustEntity(t, s, "contact"), sc, 1, shadow.Record{"rating": "high"})
	require.Error(t, err)
	assert.True(t, dberr.IsValueConversion(err))

	var e *dberr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "rating", e.Field)
}

func TestShadow_UpsertUnknownCompany(t *testing.T) {
	s := createTestStore(t)

	err := s.Upsert(context.Background(), mustEntity(t, s, "contact"), scope.Scope{CompanyID: 999, DBName: "ghost"}, 1, shadow.Record{"notes": "x"})
	assert.Error(t, err)
}

func TestShadow_ScopedByCompany(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	demo := createTestCompany(t, s, "demo")
	other := createTestCompany(t, s, "other")

	require.NoError(t, s.Upsert(ctx, contact, demo, 1, shadow.Record{"notes": "demo"}))

	_, found, err := s.Get(ctx, contact, other, 1)
	require.NoError(t, err)
	assert.False(t, found)

	ids, err := s.Filter(ctx, contact, other, shadow.Lookup{Field: "notes", Lookup: filter.LookupExact, Value: "demo"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestShadow_DeleteMany(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, s.Upsert(ctx, contact, sc, id, shadow.Record{"notes": "n"}))
	}

	require.NoError(t, s.DeleteMany(ctx, contact, sc, []int64{1, 3, 99}))
	require.NoError(t, s.DeleteMany(ctx, contact, sc, nil))

	ids, err := s.Filter(ctx, contact, sc, shadow.Lookup{Field: "notes", Lookup: filter.LookupIsNull, Value: false})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestShadow_Filter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")

	seed := map[int64]shadow.Record{
		3: {"notes": "Key account", "rating": int64(5)},
		5: {"notes": "late payer", "rating": int64(1)},
		8: {"notes": nil, "rating": int64(3)},
		9: {"notes": "keyboard supplier", "rating": nil},
	}
	for id, rec := range seed {
		require.NoError(t, s.Upsert(ctx, contact, sc, id, rec))
	}

	testCases := []struct {
		name   string
		lookup shadow.Lookup
		want   []int64
	}{
		{"exact", shadow.Lookup{Field: "notes", Lookup: filter.LookupExact, Value: "late payer"}, []int64{5}},
		{"exact from string", shadow.Lookup{Field: "rating", Lookup: filter.LookupExact, Value: "3"}, []int64{8}},
		{"exact null matches nothing", shadow.Lookup{Field: "notes", Lookup: filter.LookupExact, Value: nil}, []int64{}},
		{"gt", shadow.Lookup{Field: "rating", Lookup: filter.LookupGT, Value: 1}, []int64{3, 8}},
		{"gte", shadow.Lookup{Field: "rating", Lookup: filter.LookupGTE, Value: 3}, []int64{3, 8}},
		{"lt", shadow.Lookup{Field: "rating", Lookup: filter.LookupLT, Value: 3}, []int64{5}},
		{"lte", shadow.Lookup{Field: "rating", Lookup: filter.LookupLTE, Value: 3}, []int64{5, 8}},
		{"in", shadow.Lookup{Field: "rating", Lookup: filter.LookupIn, Value: []int{5, 1}}, []int64{3, 5}},
		{"empty in", shadow.Lookup{Field: "rating", Lookup: filter.LookupIn, Value: []int{}}, []int64{}},
		{"in single value", shadow.Lookup{Field: "rating", Lookup: filter.LookupIn, Value: 5}, []int64{3}},
		{"in single string", shadow.Lookup{Field: "rating", Lookup: filter.LookupIn, Value: "1"}, []int64{5}},
		{"isnull", shadow.Lookup{Field: "notes", Lookup: filter.LookupIsNull, Value: true}, []int64{8}},
		{"not isnull", shadow.Lookup{Field: "rating", Lookup: filter.LookupIsNull, Value: "false"}, []int64{3, 5, 8}},
		{"icontains", shadow.Lookup{Field: "notes", Lookup: filter.LookupIContains, Value: "KEY"}, []int64{3, 9}},
		{"startswith", shadow.Lookup{Field: "notes", Lookup: filter.LookupStartsWith, Value: "late"}, []int64{5}},
		{"endswith", shadow.Lookup{Field: "notes", Lookup: filter.LookupEndsWith, Value: "supplier"}, []int64{9}},
		{"like", shadow.Lookup{Field: "notes", Lookup: filter.LookupLike, Value: "pay"}, []int64{5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := s.Filter(ctx, contact, sc, tc.lookup)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestShadow_DecimalKeepsPrecision(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), model.MustRegistry(&model.Entity{
		Name:  "contact",
		Table: "adresar",
		Fields: []*model.Field{
			{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
			{Name: "credit", Type: model.TypeOf(model.KindDecimal), Nullable: true, Shadow: true},
		},
	}))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")

	big := decimal.RequireFromString("12345678901234567.89")
	require.NoError(t, s.Upsert(ctx, contact, sc, 1, shadow.Record{"credit": big}))
	require.NoError(t, s.Upsert(ctx, contact, sc, 2, shadow.Record{"credit": "9.5"}))
	require.NoError(t, s.Upsert(ctx, contact, sc, 3, shadow.Record{"credit": "10.25"}))

	rec, found, err := s.Get(ctx, contact, sc, 1)
	require.NoError(t, err)
	require.True(t, found)
	got, ok := rec["credit"].(decimal.Decimal)
	require.True(t, ok, "credit is %T", rec["credit"])
	assert.Equal(t, "12345678901234567.89", got.String())

	testCases := []struct {
		name   string
		lookup shadow.Lookup
		want   []int64
	}{
		{"exact", shadow.Lookup{Field: "credit", Lookup: filter.LookupExact, Value: "12345678901234567.89"}, []int64{1}},
		{"exact trailing zero", shadow.Lookup{Field: "credit", Lookup: filter.LookupExact, Value: "9.50"}, []int64{2}},
		{"in", shadow.Lookup{Field: "credit", Lookup: filter.LookupIn, Value: []string{"10.250", "1"}}, []int64{3}},
		// Text order would put 10.25 before 9.5.
		{"gt", shadow.Lookup{Field: "credit", Lookup: filter.LookupGT, Value: "9.75"}, []int64{1, 3}},
		{"lte", shadow.Lookup{Field: "credit", Lookup: filter.LookupLTE, Value: "10.25"}, []int64{2, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := s.Filter(ctx, contact, sc, tc.lookup)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestShadow_FilterErrors(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")

	_, err := s.Filter(ctx, contact, sc, shadow.Lookup{Field: "name", Lookup: filter.LookupExact, Value: "x"})
	assert.Error(t, err, "name is a remote field")

	_, err = s.Filter(ctx, contact, sc, shadow.Lookup{Field: "notes", Lookup: "regex", Value: ".*"})
	assert.True(t, dberr.IsUnsupportedLookup(err))

	_, err = s.Filter(ctx, contact, sc, shadow.Lookup{Field: "rating", Lookup: filter.LookupGT, Value: "many"})
	assert.True(t, dberr.IsValueConversion(err))
}

func TestShadow_WorksThroughResolver(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	contact := mustEntity(t, s, "contact")
	sc := createTestCompany(t, s, "demo")
	r := shadow.NewResolver(s)

	require.NoError(t, r.Upsert(ctx, contact, sc, 11, shadow.Record{"notes": "first"}, true))
	require.NoError(t, r.Upsert(ctx, contact, sc, 11, shadow.Record{"rating": int64(4)}, false))

	row := map[string]any{"id": int64(11)}
	fields := contact.ShadowFields()
	require.NoError(t, r.Merge(ctx, contact, sc, 11, row, fields))
	assert.Equal(t, "first", row["notes"])
	assert.Equal(t, int64(4), row["rating"])
}
