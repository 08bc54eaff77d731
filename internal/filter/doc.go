// Package filter is the boolean filter expression model of the FlexiBee
// query language.
//
// A filter is a tree of Node values:
//
//	Elementary     column operator value      e.g. nazev = 'Acme'
//	And            (a) and (b) ...
//	Or             (a) or (b) ...
//	Not            not (x)
//	Contradiction  matches nothing, or everything when negated
//
// Node is a sealed interface: only the types in this package implement it,
// so renderers can switch exhaustively.
//
// Values inside Elementary nodes are already in wire form (quoted text,
// "(1, 2)" membership groups, "null"); producing them is the job of the
// codec package. Render never rewrites the tree: negation is kept where it
// was written, so Not{Not{F}} renders as "not (not (F))".
package filter
