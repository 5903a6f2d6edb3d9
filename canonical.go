package query

import (
	"regexp"
	"strconv"
	"time"
)

var serializedKeyPattern = regexp.MustCompile(`^((\d+):)?(.*)$`)

// Canonicalizer turns queries into canonical cache keys and back. It holds no
// mutable state and is safe for concurrent use.
type Canonicalizer struct {
	cfg config
}

// NewCanonicalizer constructs a Canonicalizer. Without options it normalizes
// against PostDefaults.
func NewCanonicalizer(opts ...Option) *Canonicalizer {
	return &Canonicalizer{cfg: applyOptions(opts)}
}

// Defaults returns the default table in use.
func (c *Canonicalizer) Defaults() Defaults {
	return c.cfg.defaults
}

// Normalize returns a copy of q without the parameters that hold their
// default value. Parameters with no registered default are kept.
func (c *Canonicalizer) Normalize(q Query) Query {
	defaults := c.cfg.defaults
	return q.filter(func(key string, value any) bool {
		return !defaults.IsDefault(key, value)
	})
}

// Serialize returns the canonical key for q, prefixed with "<scope>:" when
// scope is non-zero.
func (c *Canonicalizer) Serialize(q Query, scope ScopeID) (string, error) {
	return c.serialize("serialize", q.Without(c.cfg.excluded...), scope)
}

// SerializeWithoutPage is Serialize with the page parameter removed whatever
// its value. Every page of one query shares this key.
func (c *Canonicalizer) SerializeWithoutPage(q Query, scope ScopeID) (string, error) {
	return c.SerializeWithout(q, scope, "page")
}

// SerializeWithout is Serialize with keys removed whatever their value.
func (c *Canonicalizer) SerializeWithout(q Query, scope ScopeID, keys ...string) (string, error) {
	drop := append(append([]string{}, c.cfg.excluded...), keys...)
	return c.serialize("serialize", q.Without(drop...), scope)
}

func (c *Canonicalizer) serialize(op string, q Query, scope ScopeID) (string, error) {
	start := time.Now()
	data, err := c.Normalize(q).MarshalJSON()
	var key string
	if err == nil {
		key = string(data)
		if scope != 0 {
			key = scope.String() + ":" + key
		}
	}
	err = wrapKeyError(op, key, err)
	c.cfg.logger.LogKey(KeyLogEvent{
		Op:       op,
		Key:      key,
		Scope:    scope,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Deserialize decodes a serialized key. A body that is not a JSON object is
// reported through Details.Valid, never as an error.
func (c *Canonicalizer) Deserialize(key string) Details {
	details, _ := c.Parse(key)
	return details
}

// Parse decodes a serialized key like Deserialize and also returns the reason
// the body could not be decoded. The returned Details are the same in both
// cases.
func (c *Canonicalizer) Parse(key string) (Details, error) {
	start := time.Now()
	details, err := parseKey(key)
	err = wrapKeyError("deserialize", key, err)
	c.cfg.logger.LogKey(KeyLogEvent{
		Op:       "deserialize",
		Key:      key,
		Scope:    details.ScopeID,
		Duration: time.Since(start),
		Err:      err,
	})
	return details, err
}

func parseKey(key string) (Details, error) {
	matches := serializedKeyPattern.FindStringSubmatch(key)
	if matches == nil {
		return Details{}, ErrMalformedKey
	}

	var details Details
	if matches[2] != "" {
		// Prefixes that overflow uint64 decode as no scope.
		if id, err := strconv.ParseUint(matches[2], 10, 64); err == nil {
			details.ScopeID = ScopeID(id)
		}
	}

	var q Query
	if err := q.UnmarshalJSON([]byte(matches[3])); err != nil {
		return details, err
	}
	details.Query = q
	details.Valid = true
	return details, nil
}

var defaultCanonicalizer = NewCanonicalizer()

// Normalize removes parameters holding their PostDefaults value.
func Normalize(q Query) Query {
	return defaultCanonicalizer.Normalize(q)
}

// Serialize returns the canonical key for q against PostDefaults.
func Serialize(q Query, scope ScopeID) (string, error) {
	return defaultCanonicalizer.Serialize(q, scope)
}

// SerializeWithoutPage returns the canonical key for q without its page.
func SerializeWithoutPage(q Query, scope ScopeID) (string, error) {
	return defaultCanonicalizer.SerializeWithoutPage(q, scope)
}

// Deserialize decodes key using the default canonicalizer.
func Deserialize(key string) Details {
	return defaultCanonicalizer.Deserialize(key)
}

// Parse decodes key using the default canonicalizer and reports decode errors.
func Parse(key string) (Details, error) {
	return defaultCanonicalizer.Parse(key)
}
