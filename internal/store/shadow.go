package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/roach88/flexiql/internal/codec"
	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/filter"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
)

var _ shadow.Store = (*Store)(nil)

const (
	remoteIDColumn  = "remote_id"
	companyIDColumn = "company_id"
)

// ShadowTable returns the table holding the shadow records of e.
func ShadowTable(e *model.Entity) string {
	return "shadow_" + ident(e.Name)
}

// ident maps a declared name to a column or table name.
func ident(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}

// ensureShadowTables creates the table of every entity with shadow fields
// and adds columns for shadow fields the table does not have yet.
func (s *Store) ensureShadowTables(ctx context.Context) error {
	for _, name := range s.registry.Names() {
		e, _ := s.registry.Entity(name)
		if !e.HasShadow() {
			continue
		}
		if err := s.ensureShadowTable(ctx, e); err != nil {
			return fmt.Errorf("shadow table for %s: %w", e.Name, err)
		}
	}
	return nil
}

func (s *Store) ensureShadowTable(ctx context.Context, e *model.Entity) error {
	d := s.dialect
	table := ShadowTable(e)

	ctb := d.flavor.NewCreateTableBuilder()
	ctb.CreateTable(d.quote(table)).IfNotExists()
	ctb.Define(remoteIDColumn, d.idType, "NOT NULL")
	ctb.Define(companyIDColumn, d.idType, "NOT NULL")
	for _, f := range e.ShadowFields() {
		typ, err := d.columnType(f.Type.Kind)
		if err != nil {
			return err
		}
		ctb.Define(d.quote(ident(f.Name)), typ)
	}
	ctb.Define("PRIMARY KEY", "("+remoteIDColumn+", "+companyIDColumn+")")
	ctb.Define("FOREIGN KEY", "("+companyIDColumn+")", "REFERENCES companies(id) ON DELETE CASCADE")

	query, args := ctb.Build()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := d.columns(ctx, s.db, table)
	if err != nil {
		return err
	}
	for _, f := range e.ShadowFields() {
		col := ident(f.Name)
		if existing[col] {
			continue
		}
		typ, _ := d.columnType(f.Type.Kind)
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.quote(table), d.quote(col), typ)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
		s.logger.Info().
			Str("table", table).
			Str("column", col).
			Msg("added shadow column")
	}
	return nil
}

// Get implements shadow.Store.
func (s *Store) Get(ctx context.Context, e *model.Entity, sc scope.Scope, id int64) (shadow.Record, bool, error) {
	fields := e.ShadowFields()
	if len(fields) == 0 {
		return nil, false, nil
	}
	d := s.dialect

	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = d.quote(ident(f.Name))
	}
	sb := d.flavor.NewSelectBuilder()
	sb.Select(cols...).
		From(d.quote(ShadowTable(e))).
		Where(
			sb.Equal(remoteIDColumn, id),
			sb.Equal(companyIDColumn, sc.CompanyID),
		)
	query, args := sb.Build()

	values := make([]any, len(fields))
	dest := make([]any, len(fields))
	for i := range values {
		dest[i] = &values[i]
	}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", ShadowTable(e), err)
	}

	rec := make(shadow.Record, len(fields))
	for i, f := range fields {
		v, err := decodeColumn(f, values[i])
		if err != nil {
			return nil, false, err
		}
		rec[f.Name] = v
	}
	return rec, true, nil
}

// Upsert implements shadow.Store. Shadow fields missing from rec are
// stored as null.
func (s *Store) Upsert(ctx context.Context, e *model.Entity, sc scope.Scope, id int64, rec shadow.Record) error {
	fields := e.ShadowFields()
	if len(fields) == 0 {
		return nil
	}
	d := s.dialect

	cols := []string{remoteIDColumn, companyIDColumn}
	vals := []any{id, sc.CompanyID}
	updates := make([]string, 0, len(fields))
	for _, f := range fields {
		v, err := codec.Coerce(f.Type, rec[f.Name])
		if err != nil {
			return withField(err, f.Name)
		}
		col := d.quote(ident(f.Name))
		cols = append(cols, col)
		vals = append(vals, d.bindValue(f.Type.Kind, v))
		updates = append(updates, col+" = excluded."+col)
	}

	ib := d.flavor.NewInsertBuilder()
	ib.InsertInto(d.quote(ShadowTable(e))).Cols(cols...).Values(vals...)
	ib.SQL("ON CONFLICT (" + remoteIDColumn + ", " + companyIDColumn + ") DO UPDATE SET " + strings.Join(updates, ", "))
	query, args := ib.Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", ShadowTable(e), err)
	}
	return nil
}

// DeleteMany implements shadow.Store.
func (s *Store) DeleteMany(ctx context.Context, e *model.Entity, sc scope.Scope, ids []int64) error {
	if len(ids) == 0 || !e.HasShadow() {
		return nil
	}
	d := s.dialect

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	dlb := d.flavor.NewDeleteBuilder()
	dlb.DeleteFrom(d.quote(ShadowTable(e))).
		Where(
			dlb.In(remoteIDColumn, args...),
			dlb.Equal(companyIDColumn, sc.CompanyID),
		)
	query, qargs := dlb.Build()

	if _, err := s.db.ExecContext(ctx, query, qargs...); err != nil {
		return fmt.Errorf("delete from %s: %w", ShadowTable(e), err)
	}
	return nil
}

// Filter implements shadow.Store.
func (s *Store) Filter(ctx context.Context, e *model.Entity, sc scope.Scope, l shadow.Lookup) ([]int64, error) {
	f, ok := e.Field(l.Field)
	if !ok || !f.Shadow {
		return nil, fmt.Errorf("%s is not a shadow field of %s", l.Field, e.Name)
	}
	d := s.dialect

	sb := d.flavor.NewSelectBuilder()
	cond, none, err := s.lookupCond(sb, f, l)
	if err != nil {
		return nil, err
	}
	ids := []int64{}
	if none {
		return ids, nil
	}

	sb.Select(remoteIDColumn).
		From(d.quote(ShadowTable(e))).
		Where(sb.Equal(companyIDColumn, sc.CompanyID), cond).
		OrderBy(remoteIDColumn).Asc()
	query, args := sb.Build()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ShadowTable(e), err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ShadowTable(e), err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", ShadowTable(e), err)
	}
	return ids, nil
}

// lookupCond builds the condition of l. none is set when no record can
// match, such as for an empty membership list or a comparison with null.
func (s *Store) lookupCond(sb condBuilder, f *model.Field, l shadow.Lookup) (cond string, none bool, err error) {
	d := s.dialect
	col := d.quote(ident(f.Name))

	switch l.Lookup {
	case filter.LookupIsNull:
		isNull, err := cast.ToBoolE(l.Value)
		if err != nil {
			return "", false, dberr.ValueConversion(f.Name, "boolean", l.Value, err)
		}
		if isNull {
			return sb.IsNull(col), false, nil
		}
		return sb.IsNotNull(col), false, nil

	case filter.LookupIn:
		value := l.Value
		if _, ok := codec.Elems(value); !ok && value != nil {
			value = []any{value}
		}
		list, err := codec.Coerce(model.ListOf(f.Type.Kind), value)
		if err != nil {
			return "", false, withField(err, f.Name)
		}
		elems := list.([]any)
		if len(elems) == 0 {
			return "", true, nil
		}
		args := make([]any, len(elems))
		for i, v := range elems {
			args[i] = d.bindValue(f.Type.Kind, v)
		}
		return sb.In(col, args...), false, nil

	case filter.LookupLike, filter.LookupIContains, filter.LookupStartsWith, filter.LookupEndsWith:
		text, err := cast.ToStringE(l.Value)
		if err != nil {
			return "", false, dberr.ValueConversion(f.Name, "text", l.Value, err)
		}
		switch l.Lookup {
		case filter.LookupStartsWith:
			return sb.Like(col, text+"%"), false, nil
		case filter.LookupEndsWith:
			return sb.Like(col, "%"+text), false, nil
		case filter.LookupIContains:
			return sb.Like("LOWER("+col+")", "%"+strings.ToLower(text)+"%"), false, nil
		}
		return sb.Like(col, "%"+text+"%"), false, nil
	}

	v, err := codec.Coerce(f.Type, l.Value)
	if err != nil {
		return "", false, withField(err, f.Name)
	}
	if v == nil {
		return "", true, nil
	}
	if l.Lookup == filter.LookupExact {
		return sb.Equal(col, d.bindValue(f.Type.Kind, v)), false, nil
	}

	ordCol, arg := d.orderOperands(f.Type.Kind, col, v)
	switch l.Lookup {
	case filter.LookupGT:
		return sb.GreaterThan(ordCol, arg), false, nil
	case filter.LookupGTE:
		return sb.GreaterEqualThan(ordCol, arg), false, nil
	case filter.LookupLT:
		return sb.LessThan(ordCol, arg), false, nil
	case filter.LookupLTE:
		return sb.LessEqualThan(ordCol, arg), false, nil
	}
	return "", false, dberr.UnsupportedLookup(l.Lookup)
}

// condBuilder is the condition part of a select builder.
type condBuilder interface {
	Equal(field string, value any) string
	GreaterThan(field string, value any) string
	GreaterEqualThan(field string, value any) string
	LessThan(field string, value any) string
	LessEqualThan(field string, value any) string
	In(field string, values ...any) string
	IsNull(field string) string
	IsNotNull(field string) string
	Like(field string, value any) string
}

// decodeColumn converts a scanned column value into the native value of f.
func decodeColumn(f *model.Field, raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	v, err := codec.Coerce(f.Type, raw)
	if err != nil {
		return nil, withField(err, f.Name)
	}
	return v, nil
}

func withField(err error, field string) error {
	var e *dberr.Error
	if errors.As(err, &e) && e.Field == "" {
		e.Field = field
	}
	return err
}
