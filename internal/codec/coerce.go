package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/flexiql/internal/dberr"
	"github.com/roach88/flexiql/internal/model"
)

// Coerce converts caller input into the native type of t. Strings from
// query documents and command lines are accepted for every scalar kind.
// A nil value stays nil.
func Coerce(t model.FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case model.KindDecimal:
		d, err := toDecimal(v)
		if err != nil {
			return nil, dberr.ValueConversion("", "decimal", v, err)
		}
		return d, nil
	case model.KindFloat:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, dberr.ValueConversion("", "float", v, err)
		}
		return f, nil
	case model.KindInteger, model.KindCompany:
		n, err := toInt64(v)
		if err != nil {
			return nil, dberr.ValueConversion("", string(t.Kind), v, err)
		}
		return n, nil
	case model.KindDate:
		d, err := toDate(v)
		if err != nil {
			return nil, dberr.ValueConversion("", "date", v, err)
		}
		return d, nil
	case model.KindBoolean:
		b, err := cast.ToBoolE(v)
		if err != nil {
			return nil, dberr.ValueConversion("", "boolean", v, err)
		}
		return b, nil
	case model.KindText:
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, dberr.ValueConversion("", "text", v, err)
		}
		return norm.NFC.String(s), nil
	case model.KindForeignKey, model.KindStoreVia:
		return toID(v)
	case model.KindList:
		elems, ok := sliceElems(v)
		if !ok {
			return nil, dberr.ValueConversion("", t.String(), v, fmt.Errorf("not a list"))
		}
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			n, err := Coerce(model.TypeOf(t.Elem), e)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	}
	return v, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d, nil
	case *decimal.Decimal:
		if d == nil {
			return decimal.Zero, fmt.Errorf("nil decimal")
		}
		return *d, nil
	case string:
		return decimal.NewFromString(strings.TrimSpace(d))
	case json.Number:
		return decimal.NewFromString(d.String())
	case float32:
		return decimal.NewFromFloat32(d), nil
	case float64:
		return decimal.NewFromFloat(d), nil
	}
	n, err := cast.ToInt64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(n), nil
}

// toInt64 parses strings in base 10 only; cast would read "010" as octal.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	case json.Number:
		return n.Int64()
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	}
	return cast.ToInt64E(v)
}

func toDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case time.Time:
		y, m, day := d.Date()
		return time.Date(y, m, day, 0, 0, 0, 0, d.Location()), nil
	case string:
		s := strings.TrimSpace(d)
		if ts, err := time.Parse(filterDateLayout, s); err == nil {
			return ts, nil
		}
		ts, err := cast.ToTimeInDefaultLocationE(s, time.UTC)
		if err != nil {
			return time.Time{}, err
		}
		return toDate(ts)
	}
	return time.Time{}, fmt.Errorf("unsupported date value %T", v)
}

// toID keeps numeric ids as int64 and everything else (for example
// "code:ACME") as a string.
func toID(v any) (any, error) {
	switch id := v.(type) {
	case string:
		s := strings.TrimSpace(id)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		return s, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, dberr.ValueConversion("", "foreign key", v, err)
	}
	return n, nil
}
