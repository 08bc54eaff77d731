// Package codec converts between native Go values and the FlexiBee wire
// representation, per logical field type.
//
// Native values are: decimal.Decimal (decimal), float64 (float), int64
// (integer, company), time.Time (date, midnight in its location), bool
// (boolean), string (text), int64 or string (foreign keys), []any (lists).
// Wire values are what the JSON API sends and expects, mostly strings.
package codec

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
)

const (
	filterDateLayout = "2006-01-02"
	writeDateLayout  = "2006-01-02-07:00"

	// refSuffixLen is the length of the ".json" suffix of "<field>@ref" URLs.
	refSuffixLen = 5
)

// Codec is the default value codec. It is stateless and safe for
// concurrent use.
type Codec struct{}

// New returns a Codec.
func New() *Codec {
	return &Codec{}
}

// ToFilter converts a native value into its form inside a filter
// expression. Slices render as a parenthesized, comma-separated group in
// element order; text is single-quoted.
func (c *Codec) ToFilter(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if elems, ok := sliceElems(v); ok {
		elemType := t
		if t.Kind == model.KindList {
			elemType = model.TypeOf(t.Elem)
		}
		parts := make([]string, 0, len(elems))
		for _, e := range elems {
			wire, err := c.ToFilter(elemType, e)
			if err != nil {
				return nil, err
			}
			parts = append(parts, cast.ToString(wire))
		}
		return "(" + strings.Join(parts, ", ") + ")", nil
	}

	native, err := Coerce(t, v)
	if err != nil {
		return nil, err
	}

	switch t.Kind {
	case model.KindDate:
		return native.(time.Time).Format(filterDateLayout), nil
	case model.KindBoolean:
		return formatBool(native.(bool)), nil
	case model.KindText:
		return quote(native.(string)), nil
	case model.KindDecimal:
		return native.(decimal.Decimal).String(), nil
	case model.KindFloat:
		return strconv.FormatFloat(native.(float64), 'f', -1, 64), nil
	case model.KindInteger, model.KindCompany:
		return strconv.FormatInt(native.(int64), 10), nil
	case model.KindForeignKey, model.KindStoreVia:
		switch id := native.(type) {
		case int64:
			return strconv.FormatInt(id, 10), nil
		case string:
			return quote(id), nil
		}
	}
	return native, nil
}

// ToWire converts a native value into its form inside a write payload.
func (c *Codec) ToWire(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	native, err := Coerce(t, v)
	if err != nil {
		return nil, err
	}

	switch t.Kind {
	case model.KindDate:
		return native.(time.Time).Format(writeDateLayout), nil
	case model.KindBoolean:
		return formatBool(native.(bool)), nil
	case model.KindDecimal:
		return native.(decimal.Decimal).String(), nil
	case model.KindList:
		elems := native.([]any)
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			w, err := c.ToWire(model.TypeOf(t.Elem), e)
			if err != nil {
				return nil, err
			}
			out = append(out, w)
		}
		return out, nil
	}
	return native, nil
}

// FromWire converts a raw wire value of column into its native value.
// Foreign keys are resolved from the sibling "<column>@ref" attribute of
// row rather than from raw.
func (c *Codec) FromWire(t model.FieldType, raw any, column string, row map[string]any) (any, error) {
	switch t.Kind {
	case model.KindForeignKey, model.KindStoreVia:
		ref, ok := row[column+"@ref"].(string)
		if !ok {
			return nil, nil
		}
		return refID(ref), nil
	case model.KindRemoteRef, model.KindCompany, model.KindRemoteFile, model.KindItems:
		return raw, nil
	}

	if raw == nil || raw == "" {
		switch t.Kind {
		case model.KindDecimal, model.KindFloat, model.KindInteger, model.KindDate, model.KindBoolean:
			return nil, nil
		}
	}

	switch t.Kind {
	case model.KindDecimal:
		d, err := decimal.NewFromString(cast.ToString(raw))
		if err != nil {
			return nil, dberr.ValueConversion(column, "decimal", raw, err)
		}
		return d, nil
	case model.KindFloat:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, dberr.ValueConversion(column, "float", raw, err)
		}
		return f, nil
	case model.KindInteger:
		n, err := toInt64(raw)
		if err != nil {
			return nil, dberr.ValueConversion(column, "integer", raw, err)
		}
		return n, nil
	case model.KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, dberr.ValueConversion(column, "date", raw, nil)
		}
		d, err := parseWireDate(s)
		if err != nil {
			return nil, dberr.ValueConversion(column, "date", raw, err)
		}
		return d, nil
	case model.KindBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			return b == "true", nil
		}
		return false, nil
	case model.KindList:
		elems, ok := raw.([]any)
		if !ok {
			return raw, nil
		}
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			n, err := c.FromWire(model.TypeOf(t.Elem), e, column, row)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}

	if s, ok := raw.(string); ok {
		return norm.NFC.String(s), nil
	}
	return raw, nil
}

// refID extracts the related id from an "@ref" URL such as
// "/c/demo/adresar/12.json".
func refID(ref string) any {
	seg := ref
	if i := strings.LastIndexByte(ref, '/'); i >= 0 {
		seg = ref[i+1:]
	}
	if len(seg) < refSuffixLen {
		return nil
	}
	id := seg[:len(seg)-refSuffixLen]
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// parseWireDate drops an offset or "Z" suffix and any time of day.
func parseWireDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "Z", "")
	// A negative offset after the date or after the time of day:
	// 2024-03-01-05:00, 2024-03-01T10:00:00-05:00.
	if len(s) > len(filterDateLayout) {
		if i := strings.IndexByte(s[len(filterDateLayout):], '-'); i >= 0 {
			s = s[:len(filterDateLayout)+i]
		}
	}

	var lastErr error
	for _, layout := range []string{
		filterDateLayout,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		ts, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := ts.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

// Elems returns the elements of a list value: any slice or array other
// than a string or byte slice.
func Elems(v any) ([]any, bool) {
	return sliceElems(v)
}

func sliceElems(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case string, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
