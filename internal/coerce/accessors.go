package coerce

import (
	"fmt"
	"strings"
)

// The accessors below read one key out of a decoded JSON object. An absent
// key or a JSON null returns the zero value; a value of the wrong type is an
// error naming the key.

// String returns m[key] as a string.
func String(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	return s, nil
}

// Float returns m[key] as a float64, accepting numeric display strings.
func Float(m map[string]any, key string) (float64, error) {
	f, err := ParseThousands(m[key])
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return f, nil
}

// Int returns m[key] as an int64, accepting numeric display strings.
func Int(m map[string]any, key string) (int64, error) {
	n, err := ParseInt(m[key])
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

// Bool returns m[key] as a bool. The strings "true" and "false" are accepted.
func Bool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true":
			return true, nil
		case "false", "":
			return false, nil
		}
	}
	return false, fmt.Errorf("field %q has type %T, want bool", key, v)
}

// Map returns m[key] as a nested object. The result may be nil and is safe
// to pass to the other accessors.
func Map(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want object", key, v)
	}
	return obj, nil
}
