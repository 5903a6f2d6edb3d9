package state

import (
	"context"
	"errors"
	"time"
)

// ErrStoreRequired reports a Manager used without one of its stores.
var ErrStoreRequired = errors.New("state: store is required")

// Meta is storage-owned metadata used for provenance.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Page is one page of results for a query. Items are post IDs in result order
// and Found is the total number of matches reported for the whole query.
type Page struct {
	Items []int64 `json:"items"`
	Found int     `json:"found"`
}

// Store loads and saves one record per key.
type Store[T any] interface {
	Load(ctx context.Context, key string) (record T, meta Meta, ok bool, err error)
	Save(ctx context.Context, key string, record T, meta Meta) (Meta, error)
	Delete(ctx context.Context, key string) error
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
