package query

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedKey reports a key whose body is not valid JSON or that does
	// not match the serialized key layout at all.
	ErrMalformedKey = errors.New("query: malformed key")
	// ErrNotObject reports a key whose JSON body is not an object.
	ErrNotObject = errors.New("query: key body is not a JSON object")
)

// KeyError captures the operation and key alongside the originating error.
type KeyError struct {
	Op  string
	Key string
	Err error
}

func (e *KeyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("query: %s %s: %v", e.Op, describeKey(e.Key), e.Err)
}

func (e *KeyError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeKey(key string) string {
	if key == "" {
		return "key=<empty>"
	}
	return fmt.Sprintf("key=%q", key)
}

func wrapKeyError(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var keyErr *KeyError
	if errors.As(err, &keyErr) {
		if keyErr.Op == "" {
			keyErr.Op = op
		}
		if keyErr.Key == "" {
			keyErr.Key = key
		}
		return keyErr
	}

	return &KeyError{
		Op:  op,
		Key: key,
		Err: err,
	}
}
