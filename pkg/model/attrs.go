package model

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"
)

// Attrs is an insertion-order-irrelevant string->JSON-value mapping,
// persistent across updates (Merge returns a new Attrs sharing nothing
// mutable with the original, per spec.md §3).
type Attrs map[string]any

// Clone returns a shallow copy; values are JSON-shaped (map/slice/scalar)
// and treated as immutable once stored, so a shallow copy is sufficient
// for structural sharing between Attrs snapshots.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge returns a new Attrs with values overlaid onto a's existing keys.
func (a Attrs) Merge(values Attrs) Attrs {
	out := a.Clone()
	if out == nil {
		out = make(Attrs, len(values))
	}
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Pick returns a new Attrs containing only the given keys.
func (a Attrs) Pick(keys []string) Attrs {
	out := make(Attrs, len(keys))
	for _, k := range keys {
		if v, ok := a[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Equal reports deep, order-independent equality via canonical JSON
// comparison (RFC 8785), so two maps built in different insertion order
// always compare equal — required for spec.md §8 invariant 3 (apply
// determinism) to be checkable byte-for-byte across runs/processes.
func (a Attrs) Equal(o Attrs) bool {
	ca, err1 := a.Canonical()
	cb, err2 := o.Canonical()
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

// Canonical returns the RFC 8785 JSON Canonicalization of a, used as the
// basis for content hashing (consistency tokens, checksums).
func (a Attrs) Canonical() ([]byte, error) {
	if a == nil {
		a = Attrs{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// SortedKeys returns a's keys in deterministic order, for stable iteration
// where determinism matters (hashing, diffing, logging).
func (a Attrs) SortedKeys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
