package match

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Function represents a callable exposed to rule expressions through `call`.
type Function func(args ...any) (any, error)

// FunctionRegistry stores functions keyed by lower-cased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Builtins returns a registry holding the functions generated rules rely on:
// in_list, contains_fold, before and after.
func Builtins() *FunctionRegistry {
	r := NewFunctionRegistry()
	_ = r.Register("in_list", inList)
	_ = r.Register("contains_fold", containsFold)
	_ = r.Register("before", compareDates(func(post, bound time.Time) bool { return post.Before(bound) }))
	_ = r.Register("after", compareDates(func(post, bound time.Time) bool { return post.After(bound) }))
	return r
}

// Register stores fn under name guarding against duplicates.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("match: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("match: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("match: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Merge copies functions from other that r does not already hold.
func (r *FunctionRegistry) Merge(other *FunctionRegistry) {
	if r == nil || other == nil {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function, len(other.functions))
	}
	for name, fn := range other.functions {
		if _, exists := r.functions[name]; !exists {
			r.functions[name] = fn
		}
	}
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("match: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("match: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered function names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func inList(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("in_list expects 2 arguments, got %d", len(args))
	}
	needle := fmt.Sprint(args[0])
	switch list := args[1].(type) {
	case []any:
		for _, item := range list {
			if fmt.Sprint(item) == needle {
				return true, nil
			}
		}
	case []string:
		for _, item := range list {
			if item == needle {
				return true, nil
			}
		}
	default:
		return fmt.Sprint(list) == needle, nil
	}
	return false, nil
}

func containsFold(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("contains_fold expects 2 arguments, got %d", len(args))
	}
	haystack, _ := args[0].(string)
	needle, _ := args[1].(string)
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle)), nil
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(value any) (time.Time, bool) {
	text, ok := value.(string)
	if !ok || text == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func compareDates(cmp func(post, bound time.Time) bool) Function {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("date comparison expects 2 arguments, got %d", len(args))
		}
		bound, ok := parseDate(args[1])
		if !ok {
			return nil, fmt.Errorf("invalid date bound %v", args[1])
		}
		post, ok := parseDate(args[0])
		if !ok {
			return false, nil
		}
		return cmp(post, bound), nil
	}
}
