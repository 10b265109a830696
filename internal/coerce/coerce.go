// Package coerce turns the loosely typed values found in Lighthouse reports
// into the scalar types stored in BigQuery.
//
// Lighthouse changed several fields between releases from display strings
// ("6,497ms", "300.30 KB", "2,000") to bare numbers, so every numeric reader
// here accepts both.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"
	"unicode"
)

// ParseThousands converts a number or a numeric display string into a float64.
// Thousands separators and a trailing unit suffix are stripped. A nil value
// yields 0.
func ParseThousands(v any) (float64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("ParseThousands: %q: %w", val, err)
		}
		return f, nil
	case string:
		return parseNumericString(val)
	default:
		return 0, fmt.Errorf("ParseThousands: value has type %T, want number or string", v)
	}
}

// ParseInt is ParseThousands truncated toward zero.
func ParseInt(v any) (int64, error) {
	f, err := ParseThousands(v)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(f)), nil
}

func parseNumericString(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	cleaned = strings.TrimRightFunc(cleaned, func(r rune) bool {
		return unicode.IsLetter(r) || r == '%'
	})
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("ParseThousands: %q has no numeric part", s)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("ParseThousands: %q: %w", s, err)
	}
	return f, nil
}

// ExtensionOf returns the file extension of the URL's path without the
// leading dot, e.g. "css" for "https://a.b/c/site.css?v=1". It returns an
// empty string when the last path segment has no extension.
func ExtensionOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ExtensionOf: parsing %q: %w", rawURL, err)
	}
	ext := path.Ext(u.Path)
	return strings.TrimPrefix(ext, "."), nil
}
