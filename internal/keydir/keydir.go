// Package keydir implements the in-memory index mapping a key to the
// physical location of its most recent value: a concurrent map with a
// strict monotonic-timestamp update rule, so that the index can be
// fed from scans run in any order (initial open, merge) without ever
// losing the correct winner for a key.
package keydir

import "sync"

// Entry is a keydir entry: where the most recent value for a key
// lives, and the timestamp it was written with.
type Entry struct {
	FileID      int64
	ValueOffset int64
	ValueSize   uint32
	TotalSize   uint32
	Tstamp      uint32
}

// Newer reports whether a should replace b as the indexed entry for a
// key, per the invariant that ties are broken by larger file ID, then
// by larger value offset.
func Newer(a, b Entry) bool {
	if a.Tstamp != b.Tstamp {
		return a.Tstamp > b.Tstamp
	}
	if a.FileID != b.FileID {
		return a.FileID > b.FileID
	}
	return a.ValueOffset > b.ValueOffset
}

// KeyDir is a concurrent key -> Entry map. All operations are
// individually atomic; no ordering is guaranteed across distinct
// keys.
type KeyDir struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// New returns an empty keydir.
func New() *KeyDir {
	return &KeyDir{m: make(map[string]Entry)}
}

// Put installs entry for key if there is no existing entry, or if
// entry is strictly newer than the existing one (see Newer). A stale
// put (older-or-equal) is a no-op. Returns whether the entry was
// installed.
func (k *KeyDir) Put(key []byte, entry Entry) bool {
	ks := string(key)

	k.mu.Lock()
	defer k.mu.Unlock()

	if old, ok := k.m[ks]; ok && !Newer(entry, old) {
		return false
	}
	k.m[ks] = entry
	return true
}

// Get returns the entry for key, if present.
func (k *KeyDir) Get(key []byte) (Entry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	e, ok := k.m[string(key)]
	return e, ok
}

// Remove deletes key's entry unconditionally.
func (k *KeyDir) Remove(key []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()

	delete(k.m, string(key))
}

// Len returns the number of keys currently indexed.
func (k *KeyDir) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return len(k.m)
}

// Keys returns a snapshot of all indexed keys. The snapshot does not
// reflect puts/removes that happen after Keys returns.
func (k *KeyDir) Keys() [][]byte {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([][]byte, 0, len(k.m))
	for ks := range k.m {
		keys = append(keys, []byte(ks))
	}
	return keys
}

// Each calls fn once per key/entry currently indexed, over a snapshot
// taken under the read lock. fn must not call back into the keydir.
func (k *KeyDir) Each(fn func(key []byte, entry Entry)) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for ks, e := range k.m {
		fn([]byte(ks), e)
	}
}

// Snapshot copies the entire keydir into a plain map, keyed by the
// string form of each key. Intended for tests that need to diff the
// whole index across an open/close or merge cycle rather than probe
// it key by key.
func (k *KeyDir) Snapshot() map[string]Entry {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(map[string]Entry, len(k.m))
	for ks, e := range k.m {
		out[ks] = e
	}
	return out
}
