package query

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeExcludesDefaultValues(t *testing.T) {
	q := NewQuery(Param{"page", 4}, Param{"number", 20})

	got := Normalize(q)

	want := NewQuery(Param{"page", 4})
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !q.Has("number") {
		t.Fatalf("normalize must not mutate its input")
	}
}

func TestNormalizeDropsEveryDefaultValuedKey(t *testing.T) {
	defaults := PostDefaults()
	q := defaults.Query().With("search", "hello")

	got := Normalize(q)

	for _, key := range defaults.Keys() {
		if got.Has(key) {
			t.Fatalf("expected default key %q to be removed, got %s", key, got)
		}
	}
	if diff := cmp.Diff([]string{"search"}, got.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestNormalizeKeepsUnknownAndNonDefaultValues(t *testing.T) {
	q := NewQuery(
		Param{"type", "page"},
		Param{"number", "20"},
		Param{"custom", 1},
		Param{"page", 1.0},
	)

	got := Normalize(q)

	if diff := cmp.Diff([]string{"type", "number", "custom"}, got.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	queries := []Query{
		{},
		NewQuery(Param{"page", 1}, Param{"number", 20}),
		NewQuery(Param{"search", "x"}, Param{"status", "draft,publish"}, Param{"page", 3}),
		NewQuery(Param{"exclude", []any{int64(1), int64(2)}}),
	}
	for _, q := range queries {
		once := Normalize(q)
		twice := Normalize(once)
		if !once.Equal(twice) {
			t.Fatalf("normalize not idempotent for %s: %s vs %s", q, once, twice)
		}
	}
}

func TestNormalizeCompositeValuesNeverMatchDefaults(t *testing.T) {
	c := NewCanonicalizer(WithDefaults(NewDefaults(Param{"exclude", []any{}})))

	got := c.Normalize(NewQuery(Param{"exclude", []any{}}))

	if !got.Has("exclude") {
		t.Fatalf("composite values should survive normalization")
	}
}

func TestSerialize(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		scope ScopeID
		want  string
	}{
		{
			name:  "normalized json",
			query: NewQuery(Param{"type", "page"}, Param{"page", 1}),
			want:  `{"type":"page"}`,
		},
		{
			name:  "default number removed",
			query: NewQuery(Param{"page", 4}, Param{"number", 20}),
			want:  `{"page":4}`,
		},
		{
			name:  "scope prefix",
			query: NewQuery(Param{"search", "Hello"}),
			scope: 2916284,
			want:  `2916284:{"search":"Hello"}`,
		},
		{
			name:  "zero scope is not prefixed",
			query: NewQuery(Param{"search", "Hello"}),
			scope: 0,
			want:  `{"search":"Hello"}`,
		},
		{
			name:  "empty query",
			query: Query{},
			want:  `{}`,
		},
		{
			name:  "insertion order kept",
			query: NewQuery(Param{"search", "a"}, Param{"author", 7}, Param{"after", "2016-01-01"}),
			want:  `{"search":"a","author":7,"after":"2016-01-01"}`,
		},
		{
			name:  "html is not escaped",
			query: NewQuery(Param{"search", "<b>&</b>"}),
			want:  `{"search":"<b>&</b>"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Serialize(tc.query, tc.scope)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	q := FromMap(map[string]any{"b": 1, "a": 2, "c": "x", "search": "s"})
	first, err := Serialize(q, 12)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	for i := 0; i < 50; i++ {
		next, err := Serialize(FromMap(map[string]any{"c": "x", "a": 2, "search": "s", "b": 1}), 12)
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		if next != first {
			t.Fatalf("expected stable key %s, got %s", first, next)
		}
	}
}

func TestSerializeWithoutPage(t *testing.T) {
	got, err := SerializeWithoutPage(NewQuery(Param{"type", "page"}, Param{"page", 2}), 0)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != `{"type":"page"}` {
		t.Fatalf("unexpected key %s", got)
	}

	got, err = SerializeWithoutPage(NewQuery(Param{"search", "Hello"}, Param{"page", 2}), 2916284)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != `2916284:{"search":"Hello"}` {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestSerializeWithExcludedKeys(t *testing.T) {
	c := NewCanonicalizer(WithExcludedKeys("context"))

	got, err := c.Serialize(NewQuery(Param{"context", "edit"}, Param{"search", "x"}), 3)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if got != `3:{"search":"x"}` {
		t.Fatalf("unexpected key %s", got)
	}
	if !c.Normalize(NewQuery(Param{"context", "edit"})).Has("context") {
		t.Fatalf("excluded keys only apply to serialized forms")
	}
}

func TestSerializePropagatesEncoderErrors(t *testing.T) {
	_, err := Serialize(NewQuery(Param{"bad", make(chan int)}), 0)
	if err == nil {
		t.Fatalf("expected encoder error")
	}
	var keyErr *KeyError
	if !errors.As(err, &keyErr) || keyErr.Op != "serialize" {
		t.Fatalf("expected serialize KeyError, got %v", err)
	}
}

func TestDeserialize(t *testing.T) {
	cases := []struct {
		name string
		key  string
		want Details
	}{
		{
			name: "not json",
			key:  "bad",
			want: Details{},
		},
		{
			name: "no scope",
			key:  `{"search":"hello"}`,
			want: Details{Query: NewQuery(Param{"search", "hello"}), Valid: true},
		},
		{
			name: "scope and json",
			key:  `2916284:{"search":"hello"}`,
			want: Details{ScopeID: 2916284, Query: NewQuery(Param{"search", "hello"}), Valid: true},
		},
		{
			name: "zero scope decodes as absent",
			key:  `0:{"page":2}`,
			want: Details{Query: NewQuery(Param{"page", 2}), Valid: true},
		},
		{
			name: "scope with malformed body",
			key:  `12:nope`,
			want: Details{ScopeID: 12},
		},
		{
			name: "json that is not an object",
			key:  `2916284`,
			want: Details{},
		},
		{
			name: "newline fails the pattern",
			key:  "1:{}\n",
			want: Details{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Deserialize(tc.key)
			if got.ScopeID != tc.want.ScopeID {
				t.Fatalf("expected scope %d, got %d", tc.want.ScopeID, got.ScopeID)
			}
			if got.Valid != tc.want.Valid {
				t.Fatalf("expected valid=%v, got %v", tc.want.Valid, got.Valid)
			}
			if !got.Query.Equal(tc.want.Query) {
				t.Fatalf("expected query %s, got %s", tc.want.Query, got.Query)
			}
		})
	}
}

func TestParseReportsMalformedBody(t *testing.T) {
	details, err := Parse("bad")
	if !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey, got %v", err)
	}
	if details.Valid {
		t.Fatalf("expected invalid details")
	}
	if !strings.Contains(err.Error(), `key="bad"`) {
		t.Fatalf("expected key in error message, got %q", err.Error())
	}

	_, err = Parse(`[1,2]`)
	if !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	queries := []Query{
		NewQuery(Param{"search", "hello"}),
		NewQuery(Param{"page", 3}, Param{"type", "page"}, Param{"author", 42}),
		NewQuery(Param{"sticky", "require"}, Param{"ratio", 0.5}, Param{"featured", true}),
		NewQuery(Param{"exclude", []any{int64(1), int64(2)}}),
	}
	for _, q := range queries {
		for _, scope := range []ScopeID{1, 2916284} {
			key, err := Serialize(q, scope)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			details := Deserialize(key)
			if !details.Valid || details.ScopeID != scope {
				t.Fatalf("round trip of %s lost scope or validity: %+v", key, details)
			}
			if !details.Query.Equal(q) {
				t.Fatalf("round trip mismatch: %s vs %s", q, details.Query)
			}
			if diff := cmp.Diff(q.Keys(), details.Query.Keys()); diff != "" {
				t.Fatalf("key order changed (-want +got):\n%s", diff)
			}
		}
	}
}

func TestCanonicalizerLogsOperations(t *testing.T) {
	var (
		mu     sync.Mutex
		events []KeyLogEvent
	)
	c := NewCanonicalizer(WithLogger(KeyLoggerFunc(func(event KeyLogEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	})))

	if _, err := c.Serialize(NewQuery(Param{"search", "x"}), 5); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	c.Deserialize("bad")

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Op != "serialize" || events[0].Key != `5:{"search":"x"}` || events[0].Scope != 5 {
		t.Fatalf("unexpected serialize event: %+v", events[0])
	}
	if events[1].Op != "deserialize" || !errors.Is(events[1].Err, ErrMalformedKey) {
		t.Fatalf("unexpected deserialize event: %+v", events[1])
	}
}

func TestCanonicalizerConcurrentUse(t *testing.T) {
	c := NewCanonicalizer()
	q := NewQuery(Param{"search", "x"}, Param{"page", 2})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := c.Serialize(q, 9)
			if err != nil || key != `9:{"search":"x","page":2}` {
				t.Errorf("unexpected key %q err %v", key, err)
			}
		}()
	}
	wg.Wait()
}
