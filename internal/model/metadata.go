package model

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"time"

	"github.com/minio/highwayhash"
	"github.com/rotisserie/eris"
)

// Metadata maps canonical field names to attribute values. Values are scalars
// (string, integer, float, bool, time.Time) or nil. A Metadata shared between
// pieces or polygons is treated as immutable: derive new values with Clone.
type Metadata map[string]any

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the field names of m in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether m and other hold the same fields with equal values.
func (m Metadata) Equal(other Metadata) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		ov, ok := other[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

var fingerprintKey = []byte("areamatch-metadata-fingerprint!!")

// Fingerprint hashes a canonical encoding of m. Equal metadata always yields the
// same fingerprint; callers still confirm with Equal on a match.
func (m Metadata) Fingerprint() (uint64, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, eris.Wrap(err, "model: init fingerprint hash")
	}
	for _, k := range m.Keys() {
		v := m[k]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		if _, err := fmt.Fprintf(h, "%s\x00%T\x00%v\x00", k, v, v); err != nil {
			return 0, eris.Wrap(err, "model: write fingerprint")
		}
	}
	return h.Sum64(), nil
}

// Truthy reports whether v counts as a present value: nil, empty strings, zero
// numbers, false and zero times do not.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case int:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case float32:
		return x != 0
	case float64:
		return x != 0
	case time.Time:
		return !x.IsZero()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Filter is an attribute membership test: a polygon matches when the value of
// Field, formatted as text, is one of Values. An unset filter matches nothing.
type Filter struct {
	Field  string
	Values []string
}

// Match reports whether m satisfies the filter.
func (f Filter) Match(m Metadata) bool {
	if f.Field == "" || len(f.Values) == 0 {
		return false
	}
	v, ok := m[f.Field]
	if !ok || v == nil {
		return false
	}
	return slices.Contains(f.Values, fmt.Sprint(v))
}
