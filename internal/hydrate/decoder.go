// Package hydrate decodes posts API payloads into typed results.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/goliatone/go-query/match"
)

// Context identifies where a payload came from.
type Context struct {
	Source  string
	ScopeID uint64
}

func (c Context) label() string {
	if c.Source == "" {
		return "<inline>"
	}
	return c.Source
}

// PreHook lets callers reshape the raw payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the decoded value.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts posts payloads into T.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithDisallowUnknownFields invokes json.Decoder.DisallowUnknownFields.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// DecodeBytes decodes a JSON document. A top-level array is wrapped as
// {"posts": [...]} so bare post lists and API responses share one path.
func (d *Decoder[T]) DecodeBytes(ctx Context, data []byte) (T, error) {
	var zero T
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return zero, fmt.Errorf("hydrate: parse %s: %w", ctx.label(), err)
	}
	switch v := raw.(type) {
	case map[string]any:
		return d.Decode(ctx, v)
	case []any:
		return d.Decode(ctx, map[string]any{"posts": v})
	default:
		return zero, fmt.Errorf("hydrate: %s: expected object or array, got %T", ctx.label(), raw)
	}
}

// Decode converts payload into T applying configured hooks.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for %s", ctx.label())
	}

	current := payload
	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for %s failed: %w", ctx.label(), err)
		}
		if next != nil {
			current = next
		}
	}

	buffer, err := json.Marshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: marshal payload for %s: %w", ctx.label(), err)
	}
	decoder := json.NewDecoder(bytes.NewReader(buffer))
	for _, configure := range d.configureDec {
		if configure != nil {
			configure(decoder)
		}
	}
	var result T
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %s: %w", ctx.label(), err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %s failed: %w", ctx.label(), err)
		}
	}

	return result, nil
}

// PostsResponse is the shape of a posts API reply.
type PostsResponse struct {
	Found int          `json:"found"`
	Posts []match.Post `json:"posts"`
}

// DefaultFound fills a missing "found" with the number of posts in the
// payload. The caller's map is left untouched.
func DefaultFound(_ Context, payload map[string]any) (map[string]any, error) {
	if _, ok := payload["found"]; ok {
		return payload, nil
	}
	posts, _ := payload["posts"].([]any)
	out := maps.Clone(payload)
	out["found"] = len(posts)
	return out, nil
}

// StampSite sets site_ID on posts that lack one to the context scope.
func StampSite(ctx Context, resp *PostsResponse) error {
	if ctx.ScopeID == 0 {
		return nil
	}
	for i := range resp.Posts {
		if resp.Posts[i].SiteID == 0 {
			resp.Posts[i].SiteID = int64(ctx.ScopeID)
		}
	}
	return nil
}

// RequireIDs rejects posts without an ID.
func RequireIDs(ctx Context, resp *PostsResponse) error {
	for i, post := range resp.Posts {
		if post.ID == 0 {
			return fmt.Errorf("post %d in %s has no ID", i, ctx.label())
		}
	}
	return nil
}

// NewPostsDecoder returns the decoder used for posts API replies.
func NewPostsDecoder(opts ...DecoderOption[PostsResponse]) *Decoder[PostsResponse] {
	base := []DecoderOption[PostsResponse]{
		WithPreHook[PostsResponse](DefaultFound),
		WithPostHook[PostsResponse](RequireIDs),
		WithPostHook[PostsResponse](StampSite),
		WithPostHook[PostsResponse](NormalizePosts),
	}
	return NewDecoder(append(base, opts...)...)
}
