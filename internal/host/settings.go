package host

import "strconv"

// Values is a free-form configuration mapping for a host or for the whole
// harness run.
type Values map[string]any

// copyValues returns a copy of v that shares no mutable state with it.
// Slice values are copied element-wise so callers cannot mutate settings
// after construction.
func copyValues(v Values) Values {
	out := make(Values, len(v))
	for k, val := range v {
		switch t := val.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			out[k] = append([]any(nil), t...)
		case Values:
			out[k] = copyValues(t)
		case map[string]any:
			out[k] = copyValues(Values(t))
		default:
			out[k] = val
		}
	}
	return out
}

// Settings is a two-level configuration view: host-specific values shadow
// global values key by key. Both levels are copied on construction.
type Settings struct {
	host   Values
	global Values
}

// NewSettings builds a Settings view from host-specific and global mappings.
func NewSettings(hostVals, globalVals Values) *Settings {
	return &Settings{
		host:   copyValues(hostVals),
		global: copyValues(globalVals),
	}
}

// Lookup returns the value for key, preferring the host level.
func (s *Settings) Lookup(key string) (any, bool) {
	if v, ok := s.host[key]; ok {
		return v, true
	}
	v, ok := s.global[key]
	return v, ok
}

// Set stores a host-level value, shadowing any global value for key.
func (s *Settings) Set(key string, val any) {
	s.host[key] = val
}

// String returns the value for key as a string, or "" when unset or not
// string-typed.
func (s *Settings) String(key string) string {
	v, ok := s.Lookup(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// StringSlice returns the value for key as a string slice. Scalar strings
// are returned as a one-element slice; []any values from YAML decoding are
// converted element-wise.
func (s *Settings) StringSlice(key string) []string {
	v, ok := s.Lookup(key)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// Bool returns the value for key as a bool, or def when unset.
// String values "true"/"false" are accepted since they are common in
// hand-written inventories.
func (s *Settings) Bool(key string, def bool) bool {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Int returns the value for key as an int, or def when unset or untyped.
func (s *Settings) Int(key string, def int) int {
	v, ok := s.Lookup(key)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}
