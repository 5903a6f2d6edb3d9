package query

import "strconv"

// ScopeID identifies the collection (for example a site) that owns a query.
// The zero value means no scope: it is never written as a key prefix and a
// "0:" prefix decodes back to no scope.
type ScopeID uint64

func (s ScopeID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// Details is the decoded form of a serialized key. Query is only meaningful
// when Valid is true; an invalid body is not an error for Deserialize callers.
type Details struct {
	ScopeID ScopeID
	Query   Query
	Valid   bool
}

// HasScope reports whether the key carried a scope prefix.
func (d Details) HasScope() bool {
	return d.ScopeID != 0
}

// Option configures a Canonicalizer.
type Option func(*config)

type config struct {
	defaults Defaults
	excluded []string
	logger   KeyLogger
}

func applyOptions(opts []Option) config {
	cfg := config{
		defaults: PostDefaults(),
		logger:   noopKeyLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithDefaults replaces the default table used for normalization.
func WithDefaults(defaults Defaults) Option {
	return func(cfg *config) {
		cfg.defaults = defaults
	}
}

// WithExcludedKeys drops keys from every serialized form regardless of their
// value. Normalize is unaffected.
func WithExcludedKeys(keys ...string) Option {
	return func(cfg *config) {
		cfg.excluded = append(append([]string{}, cfg.excluded...), keys...)
	}
}
