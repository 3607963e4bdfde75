package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Key derives a cache key from a logical resource name and its parameters.
// The result does not depend on map iteration order; nil and empty-string
// parameter values are dropped so that an unset filter and an omitted one
// address the same entry. Names and values are query-escaped and values
// are JSON-encoded, so distinct parameter sets never share a key and the
// string "1" is kept apart from the number 1.
func Key(resource string, params map[string]any) string {
	q := make(url.Values, len(params))
	for name, value := range params {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		q.Set(name, canonicalValue(value))
	}
	if len(q) == 0 {
		return resource
	}
	// Encode sorts by name.
	return resource + "?" + q.Encode()
}

func canonicalValue(v any) string {
	// encoding/json sorts map keys, which keeps nested values canonical.
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(encoded)
}
