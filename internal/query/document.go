package query

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flexiql/internal/filter"
)

// Document is a query with optional write values, as read from a YAML or
// JSON file.
//
//	entity: invoice
//	fields: [code, total, customer]
//	where:
//	  code__startswith: FV
//	  or:
//	    - total__gt: 1000
//	    - not: {customer__isnull: true}
//	order: [-issued, code]
//	limit: 20
//	values:
//	  period: code:2024
//
// Mapping entries under where are ANDed in document order. A key is a
// field name with an optional "__lookup" suffix; and, or and not group
// their values. The explicit form {field: f, lookup: l, value: v} is also
// accepted. Order keys starting with "-" sort descending.
type Document struct {
	Query  Query
	Values map[string]any
}

type rawDocument struct {
	Entity     string         `yaml:"entity"`
	Fields     []string       `yaml:"fields"`
	Where      yaml.Node      `yaml:"where"`
	Order      []string       `yaml:"order"`
	Natural    string         `yaml:"natural"`
	Offset     int            `yaml:"offset"`
	Limit      int            `yaml:"limit"`
	Empty      bool           `yaml:"empty"`
	Count      bool           `yaml:"count"`
	Joins      []string       `yaml:"joins"`
	Distinct   bool           `yaml:"distinct"`
	Extra      map[string]any `yaml:"extra"`
	Having     yaml.Node      `yaml:"having"`
	Aggregates []Aggregate    `yaml:"aggregates"`
	Values     map[string]any `yaml:"values"`
}

// ParseDocument parses a query document.
func ParseDocument(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse query document: %w", err)
	}
	if raw.Entity == "" {
		return nil, fmt.Errorf("parse query document: entity is required")
	}

	q := Query{
		Entity:     raw.Entity,
		Fields:     raw.Fields,
		Offset:     raw.Offset,
		Limit:      raw.Limit,
		Empty:      raw.Empty,
		Joins:      raw.Joins,
		Distinct:   raw.Distinct,
		Extra:      raw.Extra,
		Aggregates: raw.Aggregates,
	}

	var err error
	if q.Where, err = parseWhere(&raw.Where); err != nil {
		return nil, fmt.Errorf("parse query document: where: %w", err)
	}
	if q.Having, err = parseWhere(&raw.Having); err != nil {
		return nil, fmt.Errorf("parse query document: having: %w", err)
	}

	for _, key := range raw.Order {
		key = strings.TrimSpace(key)
		if field, ok := strings.CutPrefix(key, "-"); ok {
			q.OrderBy = append(q.OrderBy, Order{Field: field, Descending: true})
			continue
		}
		q.OrderBy = append(q.OrderBy, Order{Field: strings.TrimPrefix(key, "+")})
	}

	switch strings.ToLower(raw.Natural) {
	case "", "false", "no":
	case "true", "yes", "asc":
		q.Natural = true
	case "desc":
		q.Natural, q.NaturalDescending = true, true
	default:
		return nil, fmt.Errorf("parse query document: natural must be true, asc or desc, got %q", raw.Natural)
	}

	if raw.Count {
		q.Aggregates = append(q.Aggregates, Aggregate{Func: AggregateCount, Field: "*"})
	}

	return &Document{Query: q, Values: raw.Values}, nil
}

// parseWhere converts a where node. A missing node is no filter.
func parseWhere(n *yaml.Node) (Where, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return parseWhere(n.Content[0])
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("line %d: expected a mapping or a list, got %q", n.Line, n.Value)
	case yaml.SequenceNode:
		children, err := parseChildren(n.Content)
		if err != nil {
			return nil, err
		}
		return collapse(And{Children: children}), nil
	case yaml.MappingNode:
		if hasKey(n, "field") {
			return parseExplicitLeaf(n)
		}
		var children []Where
		for i := 0; i+1 < len(n.Content); i += 2 {
			w, err := parseEntry(n.Content[i].Value, n.Content[i+1])
			if err != nil {
				return nil, err
			}
			children = append(children, w)
		}
		return collapse(And{Children: children}), nil
	}
	return nil, fmt.Errorf("line %d: unexpected node", n.Line)
}

func parseEntry(key string, value *yaml.Node) (Where, error) {
	switch key {
	case "and", "or":
		var children []Where
		var err error
		if value.Kind == yaml.SequenceNode {
			children, err = parseChildren(value.Content)
		} else {
			var w Where
			w, err = parseWhere(value)
			children = []Where{w}
		}
		if err != nil {
			return nil, err
		}
		if key == "or" {
			return collapse(Or{Children: children}), nil
		}
		return collapse(And{Children: children}), nil
	case "not":
		w, err := parseWhere(value)
		if err != nil {
			return nil, err
		}
		if w == nil {
			return nil, fmt.Errorf("line %d: not needs a condition", value.Line)
		}
		return Not(w), nil
	}

	field, lookup := splitLookup(key)
	var v any
	if err := value.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: value of %s: %w", value.Line, key, err)
	}
	return Leaf{Field: field, Lookup: lookup, Value: v}, nil
}

func parseChildren(nodes []*yaml.Node) ([]Where, error) {
	children := make([]Where, 0, len(nodes))
	for _, c := range nodes {
		w, err := parseWhere(c)
		if err != nil {
			return nil, err
		}
		if w != nil {
			children = append(children, w)
		}
	}
	return children, nil
}

func parseExplicitLeaf(n *yaml.Node) (Where, error) {
	var leaf struct {
		Field   string `yaml:"field"`
		Lookup  string `yaml:"lookup"`
		Value   any    `yaml:"value"`
		Negated bool   `yaml:"negated"`
	}
	if err := n.Decode(&leaf); err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return Leaf{Field: leaf.Field, Lookup: leaf.Lookup, Value: leaf.Value, Negated: leaf.Negated}, nil
}

// splitLookup splits "total__gt" into ("total", "gt"). A suffix that is
// not a known lookup stays part of the field name.
func splitLookup(key string) (field, lookup string) {
	i := strings.LastIndex(key, "__")
	if i <= 0 {
		return key, filter.LookupExact
	}
	if suffix := key[i+2:]; filter.IsLookup(suffix) {
		return key[:i], suffix
	}
	return key, filter.LookupExact
}

func hasKey(n *yaml.Node, key string) bool {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return true
		}
	}
	return false
}

// collapse unwraps single-child groups that are not negated.
func collapse(w Where) Where {
	switch n := w.(type) {
	case And:
		if len(n.Children) == 0 {
			return nil
		}
		if len(n.Children) == 1 && !n.Negated {
			return n.Children[0]
		}
	case Or:
		if len(n.Children) == 0 {
			return nil
		}
		if len(n.Children) == 1 && !n.Negated {
			return n.Children[0]
		}
	}
	return w
}
