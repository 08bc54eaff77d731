package filter

import (
	"github.com/spf13/cast"

	"github.com/roach88/flexiql/internal/dberr"
)

// Operator is a FlexiBee filter operator.
type Operator string

const (
	OpEqual        Operator = "="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpIn           Operator = "in"
	OpIs           Operator = "is"
	OpIsNot        Operator = "is not"
	OpLike         Operator = "like"
	OpBegins       Operator = "begins"
	OpEnds         Operator = "ends"
)

// Valid reports whether op is a supported operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpIn,
		OpIs, OpIsNot, OpLike, OpBegins, OpEnds:
		return true
	}
	return false
}

// Lookup names accepted in abstract queries.
const (
	LookupExact      = "exact"
	LookupGT         = "gt"
	LookupGTE        = "gte"
	LookupLT         = "lt"
	LookupLTE        = "lte"
	LookupIn         = "in"
	LookupIsNull     = "isnull"
	LookupLike       = "like"
	LookupIContains  = "icontains"
	LookupStartsWith = "startswith"
	LookupEndsWith   = "endswith"
)

var lookupOperators = map[string]Operator{
	LookupExact:      OpEqual,
	LookupGT:         OpGreater,
	LookupGTE:        OpGreaterEqual,
	LookupLT:         OpLess,
	LookupLTE:        OpLessEqual,
	LookupIn:         OpIn,
	LookupLike:       OpLike,
	LookupIContains:  OpLike,
	LookupStartsWith: OpBegins,
	LookupEndsWith:   OpEnds,
}

// NullLiteral is the wire value of null checks.
const NullLiteral = "null"

// ResolveLookup maps a lookup name to its operator. For "isnull" the
// operator is derived from the boolean value (true: is, false: is not)
// and the returned value is the null literal; the caller must not pass
// it through the codec. Unknown lookups fail with UnsupportedLookup.
func ResolveLookup(lookup string, value any) (op Operator, wireValue any, direct bool, err error) {
	if lookup == LookupIsNull {
		isNull, err := cast.ToBoolE(value)
		if err != nil {
			return "", nil, false, dberr.ValueConversion("isnull", "boolean", value, err)
		}
		if isNull {
			return OpIs, NullLiteral, true, nil
		}
		return OpIsNot, NullLiteral, true, nil
	}
	op, ok := lookupOperators[lookup]
	if !ok {
		return "", nil, false, dberr.UnsupportedLookup(lookup)
	}
	return op, value, false, nil
}

// IsLookup reports whether name is a known lookup.
func IsLookup(name string) bool {
	if name == LookupIsNull {
		return true
	}
	_, ok := lookupOperators[name]
	return ok
}
