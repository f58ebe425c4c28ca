package autotune

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// LabelSet is an unordered set of key/value pairs identifying the entity a
// series belongs to, e.g. {"host": "A"}.
type LabelSet map[string]string

// LabeledSeries is one batch input item.
type LabeledSeries struct {
	Labels LabelSet
	Values []float64
}

// keys returns the label names in sorted order.
func (ls LabelSet) keys() []string {
	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// String returns the canonical form of the label set: keys sorted, values
// quoted, e.g. {host="A",region="eu"}. Equal label sets always render to the
// same string regardless of insertion order.
func (ls LabelSet) String() string {
	buf := new(bytes.Buffer)
	buf.WriteByte('{')

	for i, k := range ls.keys() {
		if i > 0 {
			buf.WriteByte(',')
		}

		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(strconv.Quote(ls[k]))
	}

	buf.WriteByte('}')

	return buf.String()
}

// Equal reports whether both label sets hold the same pairs.
func (ls LabelSet) Equal(other LabelSet) bool {
	if len(ls) != len(other) {
		return false
	}

	for k, v := range ls {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}

	return true
}

// Clone returns an independent copy of the label set.
func (ls LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(ls))
	for k, v := range ls {
		out[k] = v
	}

	return out
}

// Fingerprint returns a stable 64-bit hash of the label set. The hash is
// computed over the sorted pairs with NUL separators, so it is identical
// across runs and processes.
func (ls LabelSet) Fingerprint() uint64 {
	buf := new(bytes.Buffer)

	for _, k := range ls.keys() {
		buf.WriteString(k)
		buf.WriteByte(0)
		buf.WriteString(ls[k])
		buf.WriteByte(0)
	}

	return xxhash.Sum64(buf.Bytes())
}

//////
// Model table keys and storage locations.
//////

// defaultLocation is the storage location of the "no label set" entry.
const defaultLocation = "default"

// sentinelKey is the model table key of the "no label set" entry. It never
// collides with a canonical label set string, which always starts with "{".
const sentinelKey = ""

// tableKey returns the model table key of labels. A nil label set denotes the
// single-series mode.
func tableKey(labels LabelSet, labeled bool) string {
	if !labeled {
		return sentinelKey
	}

	return labels.String()
}

// locationFor returns the storage location name of a model table entry.
func locationFor(labels LabelSet, labeled bool) string {
	if !labeled {
		return defaultLocation
	}

	return fmt.Sprintf("ls-%016x", labels.Fingerprint())
}
