package query

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// MarshalJSON encodes q as a compact JSON object with keys in insertion order.
// HTML characters are left unescaped.
func (q Query) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range q.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := encodeJSON(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		encodedValue, err := encodeJSON(q.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into q, keeping members in document
// order. Integral numbers decode to int64, other numbers to float64.
func (q *Query) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrMalformedKey
	}
	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return ErrNotObject
	}
	decoded := Query{}
	result.ForEach(func(key, value gjson.Result) bool {
		decoded.set(key.String(), decodeValue(value))
		return true
	})
	*q = decoded
	return nil
}

func encodeJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators writes U+2028 and U+2029 as raw runes, which
// encoding/json always escapes and JSON.stringify does not.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape is copied whole so an escaped backslash is never
		// read as the start of a new escape.
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

func decodeValue(value gjson.Result) any {
	switch value.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return value.String()
	case gjson.Number:
		if !strings.ContainsAny(value.Raw, ".eE") {
			if n, err := strconv.ParseInt(value.Raw, 10, 64); err == nil {
				return n
			}
		}
		return value.Float()
	default:
		return value.Value()
	}
}
