// Package query compiles abstract query descriptions into FlexiBee remote
// queries and executes them against a remote.Transport and the shadow
// store.
//
// ARCHITECTURE:
//
//	[Query] → CheckQuery → [Builder] → [Plan] → [Executor]
//	                         ↑  ↑                  ↑   ↑
//	                     codec  shadow      transport  shadow store
//
// A Query describes one operation on one entity: a Where tree of lookups
// on logical field names, orderings, pagination and, for counts, a single
// aggregate. It is plain data and can be parsed from YAML or JSON
// documents (ParseDocument).
//
// SUPPORTED SHAPE:
//
// The FlexiBee filter language is flat: one evidence, boolean filters,
// sort keys. CheckQuery rejects joined tables, DISTINCT, HAVING and
// extra fragments other than the exists probe ({a: 1}) with an
// UnsupportedQueryShape error. The only aggregate is a single COUNT over
// "*" or the primary key; anything else fails with NotImplemented.
//
// BUILDER STATES:
//
//	Idle ──AddFilters──▶ Filtering ──AddOrdering──▶ Ordered ──Build──▶ Ready
//	  └──────────────AddOrdering───────────────────▲   └──Build──▶ Ready
//
// AddFilters runs at most once. Orderings may be added zero or more
// times, but never after Build. Leaves on shadow fields are resolved
// against the shadow store and rewritten to a primary key membership
// test, so every filter sent to the remote names only native columns.
//
// SCOPE:
//
// Every call takes the owning company as a scope.Scope value. It is
// copied into the remote query; nothing in this package keeps a current
// company between calls.
package query
