package state_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-query/pkg/state"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[state.Page]()
	key := `2916284:{"search":"hello"}`

	if _, _, ok, err := store.Load(ctx, key); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	extra := map[string]string{"source": "api"}
	if _, err := store.Save(ctx, key, state.Page{Items: []int64{1}, Found: 1}, state.Meta{SnapshotID: "snap-1", Extra: extra}); err != nil {
		t.Fatalf("save: %v", err)
	}
	extra["source"] = "changed"

	page, meta, ok, err := store.Load(ctx, key)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if page.Found != 1 || meta.SnapshotID != "snap-1" {
		t.Fatalf("unexpected record %+v %+v", page, meta)
	}
	if meta.Extra["source"] != "api" {
		t.Fatalf("expected meta detached from caller map, got %v", meta.Extra)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.Keys()) != 0 {
		t.Fatalf("expected no keys after delete, got %v", store.Keys())
	}
}
