package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addressBook() *Entity {
	return &Entity{
		Name:  "address-book",
		Table: "adresar",
		Fields: []*Field{
			{Name: "id", Type: TypeOf(KindInteger), PrimaryKey: true},
			{Name: "name", Column: "nazev", Type: TypeOf(KindText)},
			{Name: "active", Type: TypeOf(KindBoolean)},
			{Name: "notes", Type: TypeOf(KindText), Shadow: true, Nullable: true},
			{Name: "company", Column: "flexibee_company_id", Type: TypeOf(KindCompany), Nullable: true},
			{Name: "attachments", Type: TypeOf(KindRemoteFile), Nullable: true},
		},
		ReadOnlyFields: []string{"active"},
	}
}

func TestNewRegistry_Defaults(t *testing.T) {
	r, err := NewRegistry(addressBook(), &Entity{
		Name:   "bank",
		Fields: []*Field{{Name: "id", Type: TypeOf(KindInteger), PrimaryKey: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"address-book", "bank"}, r.Names())

	bank, ok := r.Entity("bank")
	require.True(t, ok)
	assert.Equal(t, "bank", bank.Table, "table defaults to the entity name")

	ab, err := r.Lookup("address-book")
	require.NoError(t, err)
	id, ok := ab.Field("id")
	require.True(t, ok)
	assert.Equal(t, "id", id.Column, "column defaults to the logical name")
	assert.Same(t, id, ab.PrimaryKey())

	name, _ := ab.Field("name")
	assert.Equal(t, "nazev", name.Column)

	_, err = r.Lookup("missing")
	assert.Error(t, err)
}

func TestEntity_FieldPartitions(t *testing.T) {
	r := MustRegistry(addressBook())
	ab, _ := r.Entity("address-book")

	shadow := ab.ShadowFields()
	require.Len(t, shadow, 1)
	assert.Equal(t, "notes", shadow[0].Name)
	assert.True(t, ab.HasShadow())

	assert.Equal(t, []string{"id", "nazev", "active"}, ab.RemoteColumns(ab.Fields))

	active, _ := ab.Field("active")
	name, _ := ab.Field("name")
	company, _ := ab.Field("company")
	files, _ := ab.Field("attachments")
	assert.False(t, ab.IsWritable(active), "listed read-only field")
	assert.True(t, ab.IsWritable(name))
	assert.False(t, ab.IsWritable(company))
	assert.False(t, ab.IsWritable(files))
}

func TestNewRegistry_StoreVia(t *testing.T) {
	invoice := &Entity{
		Name:  "invoice",
		Table: "faktura-vydana",
		Fields: []*Field{
			{Name: "id", Type: TypeOf(KindInteger), PrimaryKey: true},
		},
	}
	item := &Entity{
		Name:  "invoice-item",
		Table: "faktura-vydana-polozka",
		Fields: []*Field{
			{Name: "id", Type: TypeOf(KindInteger), PrimaryKey: true},
			{Name: "invoice", Column: "doklFak", Type: TypeOf(KindStoreVia), Related: "invoice", Relation: "polozkyFaktury"},
		},
	}

	r, err := NewRegistry(item, invoice)
	require.NoError(t, err)

	e, _ := r.Entity("invoice-item")
	require.NotNil(t, e.StoreVia())
	assert.Equal(t, StoreVia{Table: "faktura-vydana", Relation: "polozkyFaktury", FKColumn: "doklFak"}, *e.StoreVia())

	inv, _ := r.Entity("invoice")
	assert.Nil(t, inv.StoreVia())
}

func TestNewRegistry_CollectsProblems(t *testing.T) {
	bad := &Entity{
		Name: "broken",
		Fields: []*Field{
			{Name: "code", Type: TypeOf(KindText), Shadow: true, PrimaryKey: true},
			{Name: "code", Type: TypeOf(KindText)},
			{Name: "a", Column: "x", Type: TypeOf(KindText)},
			{Name: "b", Column: "x", Type: TypeOf(KindText)},
			{Name: "tags", Type: ListOf(KindItems)},
			{Name: "owner", Type: TypeOf(KindForeignKey), Related: "nobody"},
			{Name: "parent", Type: TypeOf(KindStoreVia), Related: "broken"},
			{Name: "memo", Type: TypeOf(KindList), Shadow: true},
		},
		ReadOnlyFields: []string{"ghost"},
	}

	_, err := NewRegistry(bad, &Entity{Name: "nopk"})
	require.Error(t, err)

	var declErr *DeclarationError
	require.ErrorAs(t, err, &declErr)

	joined := ""
	for _, p := range declErr.Problems {
		joined += p + "\n"
	}
	assert.Contains(t, joined, `primary key "code" cannot be a shadow field`)
	assert.Contains(t, joined, `field "code" declared twice`)
	assert.Contains(t, joined, `share column "x"`)
	assert.Contains(t, joined, `list field needs a scalar element type`)
	assert.Contains(t, joined, `references unknown entity "nobody"`)
	assert.Contains(t, joined, `store-via field "parent" has no relation name`)
	assert.Contains(t, joined, `shadow field "memo" must have a scalar type`)
	assert.Contains(t, joined, `read-only field "ghost" is not declared`)
	assert.Contains(t, joined, `entity "nopk": no primary key`)
}

func TestNewRegistry_DuplicateEntity(t *testing.T) {
	_, err := NewRegistry(addressBook(), addressBook())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `entity "address-book" declared twice`)
}

func TestParseFieldType(t *testing.T) {
	ft, err := ParseFieldType("Decimal")
	require.NoError(t, err)
	assert.Equal(t, TypeOf(KindDecimal), ft)

	ft, err = ParseFieldType("list:date")
	require.NoError(t, err)
	assert.Equal(t, ListOf(KindDate), ft)
	assert.Equal(t, "list:date", ft.String())

	for _, bad := range []string{"", "money", "list", "list:items"} {
		_, err := ParseFieldType(bad)
		assert.Error(t, err, bad)
	}
}
