// Package wire defines the message boundary between the Go client and the
// native YOLO inference engine: the loosely typed maps exchanged over named
// channels, the coded error shape, and the frame codec used by stream based
// transports.
package wire

// Map is the loosely typed key/value structure exchanged with the engine.
// Values arrive as whatever the transport codec produced (msgpack or JSON),
// so numeric types vary and callers should read fields through the tolerant
// accessors below.
type Map = map[string]any

// AsFloat converts any numeric wire value to a float64
func AsFloat(v any) (float64, bool) {

	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return 0, false
}

// AsInt converts any numeric wire value to an int64.  Float values are
// truncated towards zero
func AsInt(v any) (int64, bool) {

	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	}

	return 0, false
}

// AsMap converts a wire value to a Map.  Transports that decode into
// map[any]any keyed maps are converted, dropping non string keys
func AsMap(v any) (Map, bool) {

	switch m := v.(type) {
	case map[string]any:
		return m, true

	case map[any]any:
		out := make(Map, len(m))

		for key, val := range m {
			if s, ok := key.(string); ok {
				out[s] = val
			}
		}

		return out, true
	}

	return nil, false
}

// AsSlice converts a wire value to a []any
func AsSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// AsBytes converts a wire value to a byte slice.  []byte is the msgpack bin
// type, while JSON transports deliver binary fields base64 decoded by the
// bridge so both arrive here as []byte
func AsBytes(v any) ([]byte, bool) {

	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		// some codecs deliver bin payloads as raw strings
		return []byte(b), true
	}

	return nil, false
}

// Float reads a numeric field from m, returning def when the key is absent
// or not numeric
func Float(m Map, key string, def float64) float64 {

	v, ok := m[key]

	if !ok {
		return def
	}

	f, ok := AsFloat(v)

	if !ok {
		return def
	}

	return f
}

// Int reads an integer field from m, returning def when the key is absent
// or not numeric
func Int(m Map, key string, def int64) int64 {

	v, ok := m[key]

	if !ok {
		return def
	}

	n, ok := AsInt(v)

	if !ok {
		return def
	}

	return n
}

// String reads a string field from m, returning def when the key is absent
// or not a string
func String(m Map, key string, def string) string {

	if s, ok := m[key].(string); ok {
		return s
	}

	return def
}

// Bool reads a boolean field from m, returning def when the key is absent
// or not a bool
func Bool(m Map, key string, def bool) bool {

	if b, ok := m[key].(bool); ok {
		return b
	}

	return def
}

// Bytes reads a binary field from m, returning nil when the key is absent
// or not binary
func Bytes(m Map, key string) []byte {

	v, ok := m[key]

	if !ok {
		return nil
	}

	b, ok := AsBytes(v)

	if !ok {
		return nil
	}

	return b
}

// Slice reads a list field from m, returning nil when the key is absent or
// not a list
func Slice(m Map, key string) []any {

	v, ok := m[key]

	if !ok {
		return nil
	}

	s, ok := AsSlice(v)

	if !ok {
		return nil
	}

	return s
}

// Child reads a nested map field from m, returning nil when the key is
// absent or not a map
func Child(m Map, key string) Map {

	v, ok := m[key]

	if !ok {
		return nil
	}

	c, ok := AsMap(v)

	if !ok {
		return nil
	}

	return c
}
