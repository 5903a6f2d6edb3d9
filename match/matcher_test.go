package match

import (
	"errors"
	"testing"
	"time"

	query "github.com/goliatone/go-query"
)

var engines = []string{EngineExpr, EngineCEL, EngineJS}

func newTestMatcher(t *testing.T, engine string, opts ...MatcherOption) *Matcher {
	t.Helper()
	if engine == EngineJS && !JSEvaluatorAvailable() {
		t.Skip("js evaluator requires the js_eval build tag")
	}
	m, err := NewMatcher(append([]MatcherOption{WithEngine(engine)}, opts...)...)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m
}

func samplePosts() []Post {
	day := func(d int) time.Time { return time.Date(2016, time.March, d, 12, 0, 0, 0, time.UTC) }
	return []Post{
		{ID: 1, Type: "post", Status: "publish", Title: "Ribs & Chicken", Author: 7, Date: day(1)},
		{ID: 2, Type: "post", Status: "draft", Title: "Draft notes", Content: "chicken soup", Author: 8, Date: day(2)},
		{ID: 3, Type: "page", Status: "publish", Title: "About", Author: 7, Sticky: true, Date: day(3)},
		{ID: 4, Type: "post", Status: "publish", Title: "Hello World", Author: 8, Sticky: true, Date: day(4)},
	}
}

func ids(posts []Post) []int64 {
	out := make([]int64, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMatcherFilter(t *testing.T) {
	cases := []struct {
		name  string
		query query.Query
		want  []int64
	}{
		{
			name:  "defaults select published posts",
			query: query.Query{},
			want:  []int64{1, 4},
		},
		{
			name:  "type any and status list",
			query: query.NewQuery(query.Param{Key: "type", Value: "any"}, query.Param{Key: "status", Value: "draft, publish"}),
			want:  []int64{1, 2, 3, 4},
		},
		{
			name:  "search is case insensitive across title and content",
			query: query.NewQuery(query.Param{Key: "search", Value: "CHICKEN"}, query.Param{Key: "status", Value: "any"}),
			want:  []int64{1, 2},
		},
		{
			name:  "author decoded from json",
			query: query.Deserialize(`{"author":8,"status":"any"}`).Query,
			want:  []int64{2, 4},
		},
		{
			name:  "sticky required",
			query: query.NewQuery(query.Param{Key: "sticky", Value: "require"}, query.Param{Key: "type", Value: "any"}),
			want:  []int64{3, 4},
		},
		{
			name:  "sticky excluded",
			query: query.NewQuery(query.Param{Key: "sticky", Value: "exclude"}),
			want:  []int64{1},
		},
		{
			name: "date window",
			query: query.NewQuery(
				query.Param{Key: "after", Value: "2016-03-01T18:00:00Z"},
				query.Param{Key: "before", Value: "2016-03-04"},
				query.Param{Key: "status", Value: "any"},
				query.Param{Key: "type", Value: "any"},
			),
			want: []int64{2, 3},
		},
		{
			name:  "pagination keys are not filters",
			query: query.NewQuery(query.Param{Key: "page", Value: 3}, query.Param{Key: "number", Value: 1}, query.Param{Key: "order", Value: "ASC"}),
			want:  []int64{1, 4},
		},
	}

	for _, engine := range engines {
		for _, tc := range cases {
			t.Run(engine+"/"+tc.name, func(t *testing.T) {
				m := newTestMatcher(t, engine)
				got, err := m.Filter(tc.query, samplePosts())
				if err != nil {
					t.Fatalf("filter: %v", err)
				}
				if !sameIDs(ids(got), tc.want) {
					t.Fatalf("expected %v, got %v", tc.want, ids(got))
				}
			})
		}
	}
}

func TestMatcherSharesCachedPrograms(t *testing.T) {
	cache := NewMemoryProgramCache()
	m := newTestMatcher(t, EngineExpr, WithProgramCache(cache))

	if _, err := m.Compile(query.NewQuery(query.Param{Key: "search", Value: "a"})); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := m.Compile(query.NewQuery(query.Param{Key: "search", Value: "b"}, query.Param{Key: "page", Value: 2})); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached program, got %d", cache.Len())
	}
}

func TestMatcherRuleCarriesCanonicalKey(t *testing.T) {
	m := newTestMatcher(t, EngineExpr)

	rule, err := m.Compile(query.NewQuery(query.Param{Key: "search", Value: "x"}, query.Param{Key: "page", Value: 1}))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if rule.Key != `{"search":"x"}` {
		t.Fatalf("unexpected rule key %s", rule.Key)
	}
}

func TestMatcherRejectsInvalidFilterValues(t *testing.T) {
	m := newTestMatcher(t, EngineExpr)

	_, err := m.Compile(query.NewQuery(query.Param{Key: "author", Value: "someone"}))
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		t.Fatalf("expected EvaluationError, got %v", err)
	}
	if evalErr.Key != `{"author":"someone"}` {
		t.Fatalf("expected key metadata, got %q", evalErr.Key)
	}

	if _, err := m.Compile(query.NewQuery(query.Param{Key: "before", Value: "soon"})); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

func TestMatcherCustomFunctionsAndLogging(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("contains_fold", func(args ...any) (any, error) {
		return args[0] == args[1], nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	var events []EvaluatorLogEvent
	m := newTestMatcher(t, EngineExpr,
		WithFunctionRegistry(registry),
		WithEvaluatorLogger(EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
			events = append(events, event)
		})),
	)

	got, err := m.Filter(query.NewQuery(query.Param{Key: "search", Value: "Hello World"}), samplePosts())
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if !sameIDs(ids(got), []int64{4}) {
		t.Fatalf("expected exact title match, got %v", ids(got))
	}
	if len(events) != len(samplePosts()) {
		t.Fatalf("expected one log event per post, got %d", len(events))
	}
	if events[0].Engine != EngineExpr || events[0].PostID != 1 {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestNewMatcherUnknownEngine(t *testing.T) {
	if _, err := NewMatcher(WithEngine("lua")); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}

func TestNewMatcherJSWithoutBuildTag(t *testing.T) {
	if JSEvaluatorAvailable() {
		t.Skip("js evaluator compiled in")
	}
	_, err := NewMatcher(WithEngine(EngineJS))
	if !errors.Is(err, ErrNoEvaluator) {
		t.Fatalf("expected ErrNoEvaluator, got %v", err)
	}
}

func TestMatchersSharingCacheKeepTheirOwnFunctions(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine, func(t *testing.T) {
			cache := NewMemoryProgramCache()
			builtin := newTestMatcher(t, engine, WithProgramCache(cache))

			exact := NewFunctionRegistry()
			if err := exact.Register("contains_fold", func(args ...any) (any, error) {
				return args[0] == args[1], nil
			}); err != nil {
				t.Fatalf("register: %v", err)
			}
			custom := newTestMatcher(t, engine, WithProgramCache(cache), WithFunctionRegistry(exact))

			q := query.NewQuery(query.Param{Key: "search", Value: "hello world"})
			got, err := builtin.Filter(q, samplePosts())
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if !sameIDs(ids(got), []int64{4}) {
				t.Fatalf("builtin matcher expected [4], got %v", ids(got))
			}

			got, err = custom.Filter(q, samplePosts())
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("custom matcher ran another matcher's functions, got %v", ids(got))
			}
		})
	}
}
