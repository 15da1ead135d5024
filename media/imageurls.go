package media

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ParseImageURLs recovers the ordered list of absolute http(s) URLs from an
// image field of unknown shape: nil, a plain URL, a list of strings, a JSON
// array string, a double-encoded JSON array, or a percent-encoded JSON array.
// Anything that cannot be recovered is dropped; it never fails.
func ParseImageURLs(raw any) []string {
	var candidates []any

	switch v := raw.(type) {
	case nil:
	case string:
		candidates = candidatesFromString(v)
	case []byte:
		candidates = candidatesFromString(string(v))
	case json.RawMessage:
		candidates = candidatesFromJSON(v)
	case []string:
		for _, item := range v {
			candidates = append(candidates, candidatesFromItem(item)...)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				candidates = append(candidates, candidatesFromItem(s)...)
			}
		}
	case ImageURLs:
		return ParseImageURLs([]string(v))
	}

	return validURLs(candidates)
}

// FirstImageURL returns the first recoverable URL, or "" when there is none.
func FirstImageURL(raw any) string {
	urls := ParseImageURLs(raw)
	if len(urls) == 0 {
		return ""
	}

	return urls[0]
}

// HasMultipleImages reports whether raw holds more than one usable URL.
func HasMultipleImages(raw any) bool {
	return len(ParseImageURLs(raw)) > 1
}

func candidatesFromItem(item string) []any {
	if strings.HasPrefix(item, "[") {
		return decodeJSONArray(item)
	}

	return []any{item}
}

func candidatesFromString(s string) []any {
	s = strings.TrimSpace(s)

	switch {
	case s == "":
		return nil
	case isPercentEncodedArray(s):
		decoded, err := url.PathUnescape(s)
		if err != nil {
			return nil
		}

		return decodeJSONArray(decoded)
	case strings.HasPrefix(s, "["):
		if json.Valid([]byte(s)) {
			return decodeJSONArray(s)
		}

		// Partially encoded, e.g. ["a"%2C"b"].
		decoded, err := url.PathUnescape(s)
		if err != nil {
			return nil
		}

		return decodeJSONArray(decoded)
	case strings.HasPrefix(s, `"`):
		// A JSON string wrapping one of the other shapes.
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil
		}

		if strings.HasPrefix(inner, "[") {
			return decodeJSONArray(inner)
		}

		return []any{inner}
	default:
		return []any{s}
	}
}

func candidatesFromJSON(data json.RawMessage) []any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}

	switch v := v.(type) {
	case string:
		return candidatesFromString(v)
	case []any:
		return flatten(v)
	default:
		return nil
	}
}

func isPercentEncodedArray(s string) bool {
	upper := strings.ToUpper(s)

	return strings.HasPrefix(upper, "[%22") || strings.HasPrefix(upper, "%5B")
}

// decodeJSONArray parses s as JSON, allowing one extra level when the result
// is itself a JSON-encoded string.
func decodeJSONArray(s string) []any {
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil
	}

	if str, ok := parsed.(string); ok {
		if !strings.HasPrefix(str, "[") {
			return []any{str}
		}

		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			return nil
		}
	}

	switch v := parsed.(type) {
	case []any:
		return flatten(v)
	case string:
		return []any{v}
	default:
		return nil
	}
}

func flatten(items []any) []any {
	out := make([]any, 0, len(items))

	for _, item := range items {
		if nested, ok := item.([]any); ok {
			out = append(out, nested...)

			continue
		}

		out = append(out, item)
	}

	return out
}

func validURLs(candidates []any) []string {
	urls := make([]string, 0, len(candidates))

	for _, c := range candidates {
		s, ok := c.(string)
		if !ok || !IsValidURL(s) {
			continue
		}

		urls = append(urls, s)
	}

	return urls
}

// IsValidURL reports whether s is an absolute http or https URL with a host.
func IsValidURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}

	u, err := url.Parse(s)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ImageURLs is the canonical form of an image field: an ordered list of valid
// URLs stored as a single-level JSON array. Scanning accepts every legacy shape.
type ImageURLs []string

// NewImageURLs normalizes raw into canonical form.
func NewImageURLs(raw any) ImageURLs {
	return ImageURLs(ParseImageURLs(raw))
}

func (urls *ImageURLs) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*urls = ImageURLs{}
	case string, []byte:
		*urls = ImageURLs(ParseImageURLs(v))
	default:
		return fmt.Errorf("unsupported image urls column type %T", src)
	}

	return nil
}

func (urls ImageURLs) Value() (driver.Value, error) {
	return urls.Canonical(), nil
}

// Canonical encodes the list as a JSON array string.
func (urls ImageURLs) Canonical() string {
	if urls == nil {
		return "[]"
	}

	data, err := json.Marshal([]string(urls))
	if err != nil {
		return "[]"
	}

	return string(data)
}

func (urls ImageURLs) MarshalJSON() ([]byte, error) {
	return []byte(urls.Canonical()), nil
}

// UnmarshalJSON accepts any legacy shape, including a bare string.
func (urls *ImageURLs) UnmarshalJSON(data []byte) error {
	*urls = ImageURLs(ParseImageURLs(json.RawMessage(data)))

	return nil
}
