package state

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	query "github.com/goliatone/go-query"
	"github.com/goliatone/go-query/pkg/activity"
)

// Manager tracks requests and results of posts queries. Stores left nil are
// reported as ErrStoreRequired by the operations that need them.
type Manager struct {
	Canonicalizer *query.Canonicalizer
	Pages         Store[Page]
	LastPages     Store[int]
	Requests      Store[bool]
	Emitter       *activity.Emitter
	Now           func() time.Time
}

// NewManager returns a Manager over in-memory stores and the default
// canonicalizer.
func NewManager() *Manager {
	return &Manager{
		Canonicalizer: query.NewCanonicalizer(),
		Pages:         NewMemoryStore[Page](),
		LastPages:     NewMemoryStore[int](),
		Requests:      NewMemoryStore[bool](),
	}
}

func (m *Manager) canonicalizer() *query.Canonicalizer {
	if m.Canonicalizer == nil {
		m.Canonicalizer = query.NewCanonicalizer()
	}
	return m.Canonicalizer
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Request marks q as in flight.
func (m *Manager) Request(ctx context.Context, scope query.ScopeID, q query.Query) error {
	if m.Requests == nil {
		return fmt.Errorf("%w: requests", ErrStoreRequired)
	}
	key, err := m.canonicalizer().Serialize(q, scope)
	if err != nil {
		return err
	}
	if _, err := m.Requests.Save(ctx, key, true, Meta{UpdatedAt: m.now()}); err != nil {
		return fmt.Errorf("state: mark request %q: %w", key, err)
	}
	return m.Emitter.Emit(ctx, activity.BuildQueryRequestedEvent(activity.QueryEventInput{
		Key:     key,
		ScopeID: uint64(scope),
		Page:    m.page(q),
	}))
}

// Receive stores one page of results for q, records the last page of the
// query and clears its request flag. found is the total number of matches for
// the query across all pages.
func (m *Manager) Receive(ctx context.Context, scope query.ScopeID, q query.Query, items []int64, found int) (Meta, error) {
	if m.Pages == nil || m.LastPages == nil {
		return Meta{}, fmt.Errorf("%w: pages and last pages", ErrStoreRequired)
	}
	c := m.canonicalizer()
	key, err := c.Serialize(q, scope)
	if err != nil {
		return Meta{}, err
	}
	allPagesKey, err := c.SerializeWithoutPage(q, scope)
	if err != nil {
		return Meta{}, err
	}

	meta := Meta{SnapshotID: uuid.NewString(), UpdatedAt: m.now()}
	page := Page{Items: append([]int64{}, items...), Found: found}
	saved, err := m.Pages.Save(ctx, key, page, meta)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save page %q: %w", key, err)
	}

	lastPage := m.lastPageFor(q, found)
	if _, err := m.LastPages.Save(ctx, allPagesKey, lastPage, meta); err != nil {
		return Meta{}, fmt.Errorf("state: save last page %q: %w", allPagesKey, err)
	}
	if err := m.clearRequest(ctx, key); err != nil {
		return Meta{}, err
	}

	return saved, m.Emitter.Emit(ctx, activity.BuildQueryReceivedEvent(activity.QueryEventInput{
		Key:        key,
		ScopeID:    uint64(scope),
		Page:       m.page(q),
		Found:      found,
		LastPage:   lastPage,
		Items:      len(items),
		SnapshotID: saved.SnapshotID,
	}))
}

// Fail clears the request flag of q after a failed request.
func (m *Manager) Fail(ctx context.Context, scope query.ScopeID, q query.Query, cause error) error {
	key, err := m.canonicalizer().Serialize(q, scope)
	if err != nil {
		return err
	}
	if err := m.clearRequest(ctx, key); err != nil {
		return err
	}
	return m.Emitter.Emit(ctx, activity.BuildQueryFailedEvent(activity.QueryEventInput{
		Key:     key,
		ScopeID: uint64(scope),
		Page:    m.page(q),
		Err:     cause,
	}))
}

func (m *Manager) clearRequest(ctx context.Context, key string) error {
	if m.Requests == nil {
		return nil
	}
	if err := m.Requests.Delete(ctx, key); err != nil {
		return fmt.Errorf("state: clear request %q: %w", key, err)
	}
	return nil
}

// IsRequesting reports whether q is in flight.
func (m *Manager) IsRequesting(ctx context.Context, scope query.ScopeID, q query.Query) (bool, error) {
	if m.Requests == nil {
		return false, fmt.Errorf("%w: requests", ErrStoreRequired)
	}
	key, err := m.canonicalizer().Serialize(q, scope)
	if err != nil {
		return false, err
	}
	requesting, _, _, err := m.Requests.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("state: load request %q: %w", key, err)
	}
	return requesting, nil
}

// Items returns the post IDs stored for q. ok is false when the page has not
// been received.
func (m *Manager) Items(ctx context.Context, scope query.ScopeID, q query.Query) ([]int64, bool, error) {
	if m.Pages == nil {
		return nil, false, fmt.Errorf("%w: pages", ErrStoreRequired)
	}
	key, err := m.canonicalizer().Serialize(q, scope)
	if err != nil {
		return nil, false, err
	}
	page, _, ok, err := m.Pages.Load(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("state: load page %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return append([]int64{}, page.Items...), true, nil
}

// LastPage returns the last page number known for q, whatever page q asks for.
func (m *Manager) LastPage(ctx context.Context, scope query.ScopeID, q query.Query) (int, bool, error) {
	if m.LastPages == nil {
		return 0, false, fmt.Errorf("%w: last pages", ErrStoreRequired)
	}
	key, err := m.canonicalizer().SerializeWithoutPage(q, scope)
	if err != nil {
		return 0, false, err
	}
	lastPage, _, ok, err := m.LastPages.Load(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("state: load last page %q: %w", key, err)
	}
	return lastPage, ok, nil
}

// IsLastPage reports whether q asks for the last known page. It is false
// while the last page is unknown.
func (m *Manager) IsLastPage(ctx context.Context, scope query.ScopeID, q query.Query) (bool, error) {
	lastPage, ok, err := m.LastPage(ctx, scope, q)
	if err != nil || !ok {
		return false, err
	}
	return m.page(q) == lastPage, nil
}

// ItemsIgnoringPage returns the post IDs of every page of q, in page order
// and without duplicates. ok is false until every page up to the last one has
// been received.
//
// Pages are looked up as q.With("page", n). Keys follow parameter order, so
// a q without page finds pages received with page as the last parameter; a q
// that carries page finds pages received with page in that same position.
func (m *Manager) ItemsIgnoringPage(ctx context.Context, scope query.ScopeID, q query.Query) ([]int64, bool, error) {
	lastPage, ok, err := m.LastPage(ctx, scope, q)
	if err != nil || !ok {
		return nil, false, err
	}
	seen := map[int64]struct{}{}
	var out []int64
	for page := 1; page <= lastPage; page++ {
		items, ok, err := m.Items(ctx, scope, q.With("page", page))
		if err != nil || !ok {
			return nil, false, err
		}
		for _, id := range items {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, true, nil
}

func (m *Manager) page(q query.Query) int {
	effective := m.canonicalizer().Defaults().Apply(q)
	value, _ := effective.Get("page")
	if page, ok := positiveInt(value); ok {
		return page
	}
	return 1
}

// lastPageFor divides found by the page size of q, falling back to the
// default page size when q carries none or an unusable one.
func (m *Manager) lastPageFor(q query.Query, found int) int {
	number, ok := 0, false
	if value, has := q.Get("number"); has {
		number, ok = positiveInt(value)
	}
	if !ok {
		value, _ := m.canonicalizer().Defaults().Get("number")
		number, ok = positiveInt(value)
	}
	if !ok || found <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(float64(found)/float64(number))))
}

func positiveInt(value any) (int, bool) {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	default:
		return 0, false
	}
	if n < 1 || n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}
