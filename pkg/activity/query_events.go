package activity

import (
	"strings"
	"time"
)

// ObjectTypePostsQuery is the object type of every posts query event.
const ObjectTypePostsQuery = "posts_query"

// Verbs emitted for posts query lifecycle events.
const (
	VerbQueryRequested = "posts_query.requested"
	VerbQueryReceived  = "posts_query.received"
	VerbQueryFailed    = "posts_query.failed"
)

// QueryEventInput describes the common fields for posts query events. Key is
// the canonical serialized query and becomes the event object id.
type QueryEventInput struct {
	ActorID    string
	UserID     string
	TenantID   string
	Channel    string
	Key        string
	ScopeID    uint64
	Page       int
	Found      int
	LastPage   int
	Items      int
	SnapshotID string
	Err        error
	Metadata   map[string]any
	OccurredAt time.Time
}

// BuildQueryRequestedEvent constructs an event for a query request.
func BuildQueryRequestedEvent(input QueryEventInput) Event {
	return buildQueryEvent(VerbQueryRequested, input)
}

// BuildQueryReceivedEvent constructs an event for a received result page.
func BuildQueryReceivedEvent(input QueryEventInput) Event {
	event := buildQueryEvent(VerbQueryReceived, input)
	event.Metadata = ensureMetadata(event.Metadata)
	event.Metadata["found"] = input.Found
	event.Metadata["items"] = input.Items
	if input.LastPage > 0 {
		event.Metadata["last_page"] = input.LastPage
	}
	return event
}

// BuildQueryFailedEvent constructs an event for a failed request.
func BuildQueryFailedEvent(input QueryEventInput) Event {
	event := buildQueryEvent(VerbQueryFailed, input)
	if input.Err != nil {
		event.Metadata = ensureMetadata(event.Metadata)
		event.Metadata["error"] = input.Err.Error()
	}
	return event
}

func buildQueryEvent(verb string, input QueryEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.ScopeID != 0 {
		metadata = ensureMetadata(metadata)
		metadata["scope_id"] = input.ScopeID
	}
	if input.Page > 0 {
		metadata = ensureMetadata(metadata)
		metadata["page"] = input.Page
	}
	if input.SnapshotID != "" {
		metadata = ensureMetadata(metadata)
		metadata["snapshot_id"] = input.SnapshotID
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypePostsQuery,
		ObjectID:   strings.TrimSpace(input.Key),
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
