package model

import (
	"fmt"
	"strings"
)

// Kind is the logical type tag of a field.
type Kind string

const (
	KindDecimal    Kind = "decimal"
	KindFloat      Kind = "float"
	KindInteger    Kind = "integer"
	KindDate       Kind = "date"
	KindBoolean    Kind = "boolean"
	KindText       Kind = "text"
	KindForeignKey Kind = "foreign_key"

	// KindStoreVia is a foreign key whose rows are written through a
	// relation of the related (parent) evidence instead of directly.
	KindStoreVia Kind = "store_via"

	// KindCompany is the owning-company foreign key. It is never sent to
	// the remote system; reads fill it from the operation scope.
	KindCompany Kind = "company"

	KindList Kind = "list"

	// KindRemoteRef is an opaque remote reference passed through unchanged.
	KindRemoteRef Kind = "remote_ref"

	// KindRemoteFile and KindItems are read-side projections computed by
	// the server (attachments, nested line items). Writes drop them.
	KindRemoteFile Kind = "remote_file"
	KindItems      Kind = "items"
)

var knownKinds = map[Kind]bool{
	KindDecimal: true, KindFloat: true, KindInteger: true, KindDate: true,
	KindBoolean: true, KindText: true, KindForeignKey: true, KindStoreVia: true,
	KindCompany: true, KindList: true, KindRemoteRef: true, KindRemoteFile: true,
	KindItems: true,
}

// IsScalar reports whether values of the kind are plain scalars that a
// local SQL column can hold.
func (k Kind) IsScalar() bool {
	switch k {
	case KindDecimal, KindFloat, KindInteger, KindDate, KindBoolean, KindText:
		return true
	}
	return false
}

// IsServerComputed reports whether the kind is a read-only projection.
func (k Kind) IsServerComputed() bool {
	return k == KindRemoteFile || k == KindItems
}

// FieldType is the full logical type of a field. Elem is set only for lists.
type FieldType struct {
	Kind Kind
	Elem Kind
}

// TypeOf returns a scalar FieldType.
func TypeOf(k Kind) FieldType {
	return FieldType{Kind: k}
}

// ListOf returns a list FieldType with the given element kind.
func ListOf(elem Kind) FieldType {
	return FieldType{Kind: KindList, Elem: elem}
}

// ParseFieldType parses "decimal", "date", "list:integer" and so on.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return FieldType{}, fmt.Errorf("empty field type")
	}
	if elem, ok := strings.CutPrefix(s, "list:"); ok {
		ek := Kind(elem)
		if !ek.IsScalar() {
			return FieldType{}, fmt.Errorf("list element type %q must be a scalar type", elem)
		}
		return ListOf(ek), nil
	}
	k := Kind(s)
	if !knownKinds[k] {
		return FieldType{}, fmt.Errorf("unknown field type %q", s)
	}
	if k == KindList {
		return FieldType{}, fmt.Errorf("list type needs an element type (list:<type>)")
	}
	return TypeOf(k), nil
}

// String returns the textual form accepted by ParseFieldType.
func (t FieldType) String() string {
	if t.Kind == KindList {
		return "list:" + string(t.Elem)
	}
	return string(t.Kind)
}
