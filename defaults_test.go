package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDefaultsYAML(t *testing.T) {
	defaults, err := ParseDefaultsYAML([]byte(`
number: 10
type: page
status: draft
page: 1
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"number", "type", "status", "page"}, defaults.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}

	c := NewCanonicalizer(WithDefaults(defaults))
	key, err := c.Serialize(NewQuery(Param{"type", "page"}, Param{"number", 20}, Param{"page", 1}), 0)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if key != `{"number":20}` {
		t.Fatalf("unexpected key %s", key)
	}
}

func TestParseDefaultsYAMLRejectsNonMapping(t *testing.T) {
	if _, err := ParseDefaultsYAML([]byte("- page\n- number\n")); err == nil {
		t.Fatalf("expected error for sequence document")
	}
}

func TestDefaultsApply(t *testing.T) {
	effective := PostDefaults().Apply(NewQuery(Param{"search", "x"}, Param{"type", "page"}))

	if diff := cmp.Diff([]string{"search", "type", "page", "number", "order", "order_by", "status"}, effective.Keys()); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
	if v, _ := effective.Get("type"); v != "page" {
		t.Fatalf("explicit values must win over defaults, got %v", v)
	}
}

func TestDefaultsAreDetached(t *testing.T) {
	defaults := PostDefaults()
	_ = defaults.Query().With("page", 99)

	if !defaults.IsDefault("page", 1) {
		t.Fatalf("defaults table changed through a returned query")
	}
}
