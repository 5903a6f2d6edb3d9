package query

import (
	"fmt"
	"reflect"
	"sort"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value any
}

// Query is an ordered set of filter, sort and pagination parameters. Keys keep
// the order in which they were first added, which is also the order used when
// encoding the query to JSON. The zero value is an empty query.
//
// Query values are never mutated after construction; With and Without return
// new values.
type Query struct {
	keys   []string
	values map[string]any
}

// NewQuery builds a query from params. A repeated key keeps its first position
// and takes the last value.
func NewQuery(params ...Param) Query {
	q := Query{}
	if len(params) == 0 {
		return q
	}
	q.keys = make([]string, 0, len(params))
	q.values = make(map[string]any, len(params))
	for _, p := range params {
		q.set(p.Key, p.Value)
	}
	return q
}

// FromMap builds a query from a plain map. Go maps carry no order, so keys are
// sorted to keep the result deterministic.
func FromMap(values map[string]any) Query {
	if len(values) == 0 {
		return Query{}
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	params := make([]Param, 0, len(keys))
	for _, key := range keys {
		params = append(params, Param{Key: key, Value: values[key]})
	}
	return NewQuery(params...)
}

func (q *Query) set(key string, value any) {
	if q.values == nil {
		q.values = map[string]any{}
	}
	if _, exists := q.values[key]; !exists {
		q.keys = append(q.keys, key)
	}
	q.values[key] = value
}

// Len returns the number of parameters.
func (q Query) Len() int {
	return len(q.keys)
}

// Get returns the value stored under key.
func (q Query) Get(key string) (any, bool) {
	value, ok := q.values[key]
	return value, ok
}

// Has reports whether key is present.
func (q Query) Has(key string) bool {
	_, ok := q.values[key]
	return ok
}

// Keys returns the parameter names in insertion order.
func (q Query) Keys() []string {
	if len(q.keys) == 0 {
		return nil
	}
	out := make([]string, len(q.keys))
	copy(out, q.keys)
	return out
}

// Params returns the parameters in insertion order.
func (q Query) Params() []Param {
	if len(q.keys) == 0 {
		return nil
	}
	out := make([]Param, 0, len(q.keys))
	for _, key := range q.keys {
		out = append(out, Param{Key: key, Value: q.values[key]})
	}
	return out
}

// Map returns a detached copy of the parameters as a plain map.
func (q Query) Map() map[string]any {
	out := make(map[string]any, len(q.keys))
	for _, key := range q.keys {
		out[key] = q.values[key]
	}
	return out
}

// With returns a copy of q with key set to value. Existing keys keep their
// position.
func (q Query) With(key string, value any) Query {
	out := q.clone()
	out.set(key, value)
	return out
}

// Without returns a copy of q with keys removed.
func (q Query) Without(keys ...string) Query {
	if len(keys) == 0 {
		return q.clone()
	}
	drop := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}
	return q.filter(func(key string, _ any) bool {
		_, skip := drop[key]
		return !skip
	})
}

// Equal reports whether q and other hold the same keys with equal values.
// Key order is ignored and numbers compare by value across Go numeric kinds,
// so a query decoded from JSON equals the query it was encoded from.
func (q Query) Equal(other Query) bool {
	if q.Len() != other.Len() {
		return false
	}
	for _, key := range q.keys {
		value, ok := other.values[key]
		if !ok {
			return false
		}
		if !deepEqual(q.values[key], value) {
			return false
		}
	}
	return true
}

// String returns the JSON form of q, or a placeholder when a value cannot be
// encoded.
func (q Query) String() string {
	data, err := q.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<query: %v>", err)
	}
	return string(data)
}

func (q Query) clone() Query {
	if len(q.keys) == 0 {
		return Query{}
	}
	out := Query{
		keys:   make([]string, len(q.keys)),
		values: make(map[string]any, len(q.values)),
	}
	copy(out.keys, q.keys)
	for key, value := range q.values {
		out.values[key] = value
	}
	return out
}

func (q Query) filter(keep func(key string, value any) bool) Query {
	out := Query{}
	for _, key := range q.keys {
		value := q.values[key]
		if keep(key, value) {
			out.set(key, value)
		}
	}
	return out
}

// strictEqual mirrors identity comparison of primitive values: strings, bools,
// nil and numbers (by value). Composite values are never strictly equal.
func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func deepEqual(a, b any) bool {
	if strictEqual(a, b) {
		return true
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, value := range av {
			other, ok := bv[key]
			if !ok || !deepEqual(value, other) {
				return false
			}
		}
		return true
	case Query:
		bv, ok := b.(Query)
		return ok && av.Equal(bv)
	}
	if _, ok := toFloat(a); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
