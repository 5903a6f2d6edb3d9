package querykey

import (
	"github.com/redis/go-redis/v9"

	query "github.com/goliatone/go-query"
	"github.com/goliatone/go-query/pkg/state"
)

// Key prefixes of the Redis stores backing a Manager.
const (
	PagesPrefix     = state.DefaultRedisPrefix
	LastPagesPrefix = "posts_query_last_page:"
	RequestsPrefix  = "posts_query_request:"
)

// NewRedisManager returns a state.Manager whose stores live in Redis.
func NewRedisManager(c *query.Canonicalizer, client redis.UniversalClient) *state.Manager {
	return &state.Manager{
		Canonicalizer: c,
		Pages:         state.NewRedisStore[state.Page](client, state.WithRedisPrefix(PagesPrefix)),
		LastPages:     state.NewRedisStore[int](client, state.WithRedisPrefix(LastPagesPrefix)),
		Requests:      state.NewRedisStore[bool](client, state.WithRedisPrefix(RequestsPrefix)),
	}
}
