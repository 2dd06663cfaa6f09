package sip

import (
	"io"
	"slices"
	"strings"
)

// abnf is the set of characters that force a param value to be quoted on render.
const abnf = " \t;,=\""

// HeaderKV is a single key-value pair inside a HeaderParams list.
type HeaderKV struct {
	K string
	V string
}

// HeaderParams is an ordered list of key-value parameters, used both for
// URI params/headers and for header field params (Via branch, To/From tag,
// Contact expires, and so on). It preserves insertion order and allows
// duplicate-free overwrite semantics via Add.
type HeaderParams []HeaderKV

// NewParams creates an empty parameter set with a small pre-allocated capacity;
// most SIP params lists hold 1-4 entries.
func NewParams() HeaderParams {
	return make(HeaderParams, 0, 4)
}

func (hp HeaderParams) index(key string) int {
	for i, kv := range hp {
		if kv.K == key {
			return i
		}
	}
	return -1
}

// Get returns a param value and whether it was present.
func (hp HeaderParams) Get(key string) (string, bool) {
	if i := hp.index(key); i >= 0 {
		return hp[i].V, true
	}
	return "", false
}

// GetOr returns a param value or a default if absent.
func (hp HeaderParams) GetOr(key, def string) string {
	if v, ok := hp.Get(key); ok {
		return v
	}
	return def
}

// Has reports whether a param key is present.
func (hp HeaderParams) Has(key string) bool {
	return hp.index(key) >= 0
}

// Add sets a param, overwriting an existing value for the same key.
func (hp *HeaderParams) Add(key, val string) HeaderParams {
	if i := hp.index(key); i >= 0 {
		(*hp)[i].V = val
	} else {
		*hp = append(*hp, HeaderKV{K: key, V: val})
	}
	return *hp
}

// Remove deletes a param by key if present.
func (hp *HeaderParams) Remove(key string) HeaderParams {
	if i := hp.index(key); i >= 0 {
		*hp = slices.Delete(*hp, i, i+1)
	}
	return *hp
}

// Keys returns param keys in insertion order.
func (hp HeaderParams) Keys() []string {
	keys := make([]string, 0, len(hp))
	for _, kv := range hp {
		keys = append(keys, kv.K)
	}
	return keys
}

// Length returns the number of params.
func (hp HeaderParams) Length() int {
	return len(hp)
}

// Clone returns a deep-enough copy (value semantics, safe to mutate independently).
func (hp HeaderParams) Clone() HeaderParams {
	return slices.Clone(hp)
}

// ToString renders params separated by sep, quoting any value containing
// characters from abnf. Does not emit a leading separator.
func (hp HeaderParams) ToString(sep byte) string {
	var b strings.Builder
	hp.ToStringWrite(sep, &b)
	return b.String()
}

// ToStringWrite is ToString but writing into a caller-supplied buffer.
func (hp HeaderParams) ToStringWrite(sep byte, buffer io.StringWriter) {
	for i, kv := range hp {
		if i > 0 {
			buffer.WriteString(string(sep))
		}
		buffer.WriteString(kv.K)
		if kv.V == "" {
			continue
		}
		buffer.WriteString("=")
		if strings.ContainsAny(kv.V, abnf) {
			buffer.WriteString("\"")
			buffer.WriteString(kv.V)
			buffer.WriteString("\"")
		} else {
			buffer.WriteString(kv.V)
		}
	}
}

func (hp HeaderParams) String() string {
	return hp.ToString(';')
}

// Equals reports whether two param sets contain the same key/value pairs,
// irrespective of order.
func (hp HeaderParams) Equals(other HeaderParams) bool {
	if len(hp) != len(other) {
		return false
	}
	for _, kv := range hp {
		v, ok := other.Get(kv.K)
		if !ok || v != kv.V {
			return false
		}
	}
	return true
}
