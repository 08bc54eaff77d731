package testutil

import (
	"github.com/roach88/flexiql/internal/model"
)

// SampleRegistry returns a fresh registry of entities modelled on common
// FlexiBee evidences:
//
//	contact  adresar          shadow fields notes and rating
//	invoice  faktura-vydana   accounting periods, foreign key to contact
//	item     polozka-faktury  stored through invoice.polozkyFaktury
//	balance  saldo            view
//	vat_rate sazba-dph        read-only
func SampleRegistry() *model.Registry {
	return model.MustRegistry(
		&model.Entity{
			Name:  "contact",
			Table: "adresar",
			Fields: []*model.Field{
				{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
				{Name: "code", Column: "kod", Type: model.TypeOf(model.KindText), Nullable: true},
				{Name: "name", Type: model.TypeOf(model.KindText)},
				{Name: "active", Type: model.TypeOf(model.KindBoolean), Default: true},
				{Name: "created", Column: "datZaloz", Type: model.TypeOf(model.KindDate), Nullable: true},
				{Name: "notes", Type: model.TypeOf(model.KindText), Nullable: true, Shadow: true},
				{Name: "rating", Type: model.TypeOf(model.KindInteger), Nullable: true, Shadow: true},
				{Name: "company", Column: "flexibee_company_id", Type: model.TypeOf(model.KindCompany), Nullable: true},
				{Name: "attachments", Column: "prilohy", Type: model.TypeOf(model.KindRemoteFile), Nullable: true},
			},
			ReadOnlyFields: []string{"created"},
		},
		&model.Entity{
			Name:                "invoice",
			Table:               "faktura-vydana",
			UseAccountingPeriod: true,
			Fields: []*model.Field{
				{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
				{Name: "code", Column: "kod", Type: model.TypeOf(model.KindText), Nullable: true},
				{Name: "issued", Column: "datVyst", Type: model.TypeOf(model.KindDate), Nullable: true},
				{Name: "total", Column: "sumCelkem", Type: model.TypeOf(model.KindDecimal), Nullable: true},
				{Name: "customer", Column: "firma", Type: model.TypeOf(model.KindForeignKey), Related: "contact", Nullable: true},
				{Name: "period", Column: "ucetniObdobi", Type: model.TypeOf(model.KindText), Nullable: true},
				{Name: "tags", Column: "stitky", Type: model.ListOf(model.KindText), Nullable: true},
				{Name: "items", Column: "polozkyFaktury", Type: model.TypeOf(model.KindItems), Nullable: true},
			},
		},
		&model.Entity{
			Name:  "item",
			Table: "polozka-faktury",
			Fields: []*model.Field{
				{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
				{Name: "invoice", Column: "doklFak", Type: model.TypeOf(model.KindStoreVia), Related: "invoice", Relation: "polozkyFaktury"},
				{Name: "name", Column: "nazev", Type: model.TypeOf(model.KindText)},
				{Name: "quantity", Column: "mnozMj", Type: model.TypeOf(model.KindDecimal), Nullable: true},
			},
		},
		&model.Entity{
			Name:  "balance",
			Table: "saldo",
			View:  true,
			Fields: []*model.Field{
				{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
				{Name: "amount", Column: "zbyvaUhradit", Type: model.TypeOf(model.KindDecimal), Nullable: true},
				{Name: "due", Column: "datSplat", Type: model.TypeOf(model.KindDate), Nullable: true},
			},
		},
		&model.Entity{
			Name:     "vat_rate",
			Table:    "sazba-dph",
			ReadOnly: true,
			Fields: []*model.Field{
				{Name: "id", Type: model.TypeOf(model.KindInteger), PrimaryKey: true},
				{Name: "rate", Column: "sazba", Type: model.TypeOf(model.KindDecimal)},
			},
		},
	)
}
