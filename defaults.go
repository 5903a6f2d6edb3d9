package query

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Defaults is an immutable table of default parameter values. A parameter
// holding its default value is equivalent to the parameter being absent.
type Defaults struct {
	values Query
}

// NewDefaults builds a default table from params.
func NewDefaults(params ...Param) Defaults {
	return Defaults{values: NewQuery(params...)}
}

// PostDefaults returns the default posts query.
func PostDefaults() Defaults {
	return NewDefaults(
		Param{Key: "page", Value: 1},
		Param{Key: "number", Value: 20},
		Param{Key: "order", Value: "DESC"},
		Param{Key: "order_by", Value: "date"},
		Param{Key: "type", Value: "post"},
		Param{Key: "status", Value: "publish"},
	)
}

// ParseDefaultsYAML reads a default table from a YAML mapping. Entry order in
// the document is kept.
func ParseDefaultsYAML(data []byte) (Defaults, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Defaults{}, fmt.Errorf("query: parse defaults: %w", err)
	}
	if len(doc.Content) == 0 {
		return Defaults{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return Defaults{}, fmt.Errorf("query: parse defaults: expected mapping, got %s", describeNodeKind(root.Kind))
	}
	params := make([]Param, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return Defaults{}, fmt.Errorf("query: parse defaults %q: %w", keyNode.Value, err)
		}
		params = append(params, Param{Key: keyNode.Value, Value: value})
	}
	return NewDefaults(params...), nil
}

func describeNodeKind(kind yaml.Kind) string {
	switch kind {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

// Get returns the default registered for key.
func (d Defaults) Get(key string) (any, bool) {
	return d.values.Get(key)
}

// Keys returns the parameter names that carry a default.
func (d Defaults) Keys() []string {
	return d.values.Keys()
}

// Query returns the table as a query.
func (d Defaults) Query() Query {
	return d.values.clone()
}

// IsDefault reports whether value equals the default registered for key.
func (d Defaults) IsDefault(key string, value any) bool {
	def, ok := d.values.Get(key)
	return ok && strictEqual(def, value)
}

// Apply returns the effective query: q followed by every default q does not set.
func (d Defaults) Apply(q Query) Query {
	out := q.clone()
	for _, key := range d.values.keys {
		if !out.Has(key) {
			out.set(key, d.values.values[key])
		}
	}
	return out
}
