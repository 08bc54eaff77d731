// Package dberr defines the error taxonomy shared by the query engine,
// the value codec, the shadow store and the remote transport.
//
// Every failure the engine surfaces to callers is an *Error carrying a
// Code. Callers branch on the category with the IsXxx helpers, which use
// errors.As and therefore see through fmt.Errorf("...: %w") wrapping.
package dberr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes engine errors.
type Code string

const (
	// CodeUnsupportedQueryShape indicates joins, DISTINCT, HAVING or extra
	// SQL fragments the remote API cannot express.
	CodeUnsupportedQueryShape Code = "UNSUPPORTED_QUERY_SHAPE"

	// CodeUnsupportedLookup indicates an unknown filter operator or lookup name.
	CodeUnsupportedLookup Code = "UNSUPPORTED_LOOKUP"

	// CodeNotImplemented indicates an aggregate other than a single COUNT.
	CodeNotImplemented Code = "NOT_IMPLEMENTED"

	// CodeIntegrity indicates a null written to a non-nullable, non-key field.
	CodeIntegrity Code = "INTEGRITY"

	// CodePersistence indicates the remote API rejected a write.
	CodePersistence Code = "PERSISTENCE"

	// CodeScopeNotFound indicates the owning company does not exist or is not accessible.
	CodeScopeNotFound Code = "SCOPE_NOT_FOUND"

	// CodeValueConversion indicates a malformed value in either direction.
	CodeValueConversion Code = "VALUE_CONVERSION"

	// CodeOperationNotAllowed indicates a write against a read-only or view entity.
	CodeOperationNotAllowed Code = "OPERATION_NOT_ALLOWED"

	// CodeTransport indicates a transport level failure (network, unexpected response).
	CodeTransport Code = "TRANSPORT"
)

// FieldError is a single field-level message reported by the remote system.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is the structured error type returned by the engine.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Entity is the entity (or remote table) involved, when known.
	Entity string

	// Field is the logical field involved, when known.
	Field string

	// FieldErrors carries remote validation messages for persistence errors.
	FieldErrors []FieldError

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	switch {
	case e.Entity != "" && e.Field != "":
		fmt.Fprintf(&b, " (entity=%s, field=%s)", e.Entity, e.Field)
	case e.Entity != "":
		fmt.Fprintf(&b, " (entity=%s)", e.Entity)
	case e.Field != "":
		fmt.Fprintf(&b, " (field=%s)", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// FieldMessages groups the remote field errors by field name.
// Messages without a field are grouped under the empty key.
func (e *Error) FieldMessages() map[string][]string {
	out := make(map[string][]string, len(e.FieldErrors))
	for _, fe := range e.FieldErrors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}

// SortedDetailKeys returns Details keys in deterministic order.
func (e *Error) SortedDetailKeys() []string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsUnsupportedQueryShape reports whether err is an unsupported query shape error.
func IsUnsupportedQueryShape(err error) bool { return is(err, CodeUnsupportedQueryShape) }

// IsUnsupportedLookup reports whether err is an unsupported lookup error.
func IsUnsupportedLookup(err error) bool { return is(err, CodeUnsupportedLookup) }

// IsNotImplemented reports whether err is a not-implemented aggregate error.
func IsNotImplemented(err error) bool { return is(err, CodeNotImplemented) }

// IsIntegrity reports whether err is an integrity error.
func IsIntegrity(err error) bool { return is(err, CodeIntegrity) }

// IsPersistence reports whether err is a remote persistence error.
func IsPersistence(err error) bool { return is(err, CodePersistence) }

// IsScopeNotFound reports whether err is a scope-not-found error.
func IsScopeNotFound(err error) bool { return is(err, CodeScopeNotFound) }

// IsValueConversion reports whether err is a value conversion error.
func IsValueConversion(err error) bool { return is(err, CodeValueConversion) }

// IsOperationNotAllowed reports whether err is a forbidden mutation error.
func IsOperationNotAllowed(err error) bool { return is(err, CodeOperationNotAllowed) }

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool { return is(err, CodeTransport) }

// UnsupportedQueryShape creates an error for a query the remote API cannot express.
func UnsupportedQueryShape(entity, format string, args ...any) *Error {
	return &Error{Code: CodeUnsupportedQueryShape, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedLookup creates an error for an unknown lookup or operator name.
func UnsupportedLookup(name string) *Error {
	return &Error{
		Code:    CodeUnsupportedLookup,
		Message: fmt.Sprintf("lookup type %q isn't supported", name),
		Details: map[string]string{"lookup": name},
	}
}

// NotImplemented creates an error for an unsupported aggregate request.
func NotImplemented(entity, format string, args ...any) *Error {
	return &Error{Code: CodeNotImplemented, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Integrity creates an error for a null written to a non-nullable field.
func Integrity(entity, field string) *Error {
	return &Error{
		Code:    CodeIntegrity,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf("you can't set %s (a non-nullable field) to null", field),
	}
}

// Persistence creates an error for a write the remote system rejected.
func Persistence(table, message string, fieldErrors []FieldError, details map[string]string) *Error {
	return &Error{
		Code:        CodePersistence,
		Entity:      table,
		Message:     message,
		FieldErrors: fieldErrors,
		Details:     details,
	}
}

// ScopeNotFound creates an error for an unknown or inaccessible company.
func ScopeNotFound(dbName string) *Error {
	return &Error{
		Code:    CodeScopeNotFound,
		Message: fmt.Sprintf("company %q does not exist or is not accessible", dbName),
		Details: map[string]string{"db_name": dbName},
	}
}

// ValueConversion creates an error for a value that failed conversion.
func ValueConversion(field, kind string, raw any, err error) *Error {
	return &Error{
		Code:    CodeValueConversion,
		Field:   field,
		Message: fmt.Sprintf("cannot convert %#v to %s", raw, kind),
		Err:     err,
	}
}

// OperationNotAllowed creates an error for a write against a read-only or view entity.
func OperationNotAllowed(entity, operation string) *Error {
	return &Error{
		Code:    CodeOperationNotAllowed,
		Entity:  entity,
		Message: fmt.Sprintf("%s is not allowed for view and read-only entities", operation),
	}
}

// Transport wraps a transport level failure.
func Transport(table, message string, err error) *Error {
	return &Error{Code: CodeTransport, Entity: table, Message: message, Err: err}
}
