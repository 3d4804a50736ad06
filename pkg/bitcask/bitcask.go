// Package bitcask provides an embeddable, log-structured key/value
// store: point reads cost at most one disk seek, writes strictly
// append to one active file, and compaction ("merge") reclaims space
// reclaimed by superseded and deleted keys.
package bitcask

import (
	"github.com/sirupsen/logrus"

	"github.com/nikolov-k/bitkeep/internal/lockfile"
	"github.com/nikolov-k/bitkeep/internal/merge"
	"github.com/nikolov-k/bitkeep/internal/store"
)

// Re-exported sentinel errors, so callers never need to import the
// internal packages to branch with errors.Is.
var (
	ErrKeyNotFound     = store.ErrKeyNotFound
	ErrReadOnly        = store.ErrReadOnly
	ErrInvalidArgument = store.ErrInvalidArgument
	ErrCorruptRecord   = store.ErrCorruptRecord
	ErrWriteLocked     = lockfile.ErrWriteLocked
	ErrMergeLocked     = lockfile.ErrMergeLocked
)

// Option configures Open. Options compose; later options override
// earlier ones for scalar fields.
type Option func(*store.Options)

// ReadWrite opens the store for writing. Without it, Open is
// read-only and Put/Delete/Sync fail with ErrReadOnly.
func ReadWrite() Option {
	return func(o *store.Options) { o.ReadWrite = true }
}

// WithMaxFileSize overrides the 2 GiB default at which the active file
// is rotated.
func WithMaxFileSize(n int64) Option {
	return func(o *store.Options) { o.MaxFileSize = n }
}

// SyncOnPut fsyncs the active file after every Put/Delete, trading
// write throughput for durability.
func SyncOnPut() Option {
	return func(o *store.Options) { o.SyncOnPut = true }
}

// WithLogger attaches a structured logger; a discard logger is used if
// this option is omitted.
func WithLogger(l *logrus.Logger) Option {
	return func(o *store.Options) { o.Logger = l }
}

// WithOwner overrides the identity recorded in the write lock's body.
// Defaults to "<hostname>:<pid>".
func WithOwner(owner string) Option {
	return func(o *store.Options) { o.Owner = owner }
}

// Bitcask is a handle to an open store directory.
type Bitcask struct {
	s *store.Store
}

// Open opens dir, creating it if it does not yet exist, whether or not
// ReadWrite was given. Only one ReadWrite holder is allowed per
// directory at a time; a conflicting attempt fails with ErrWriteLocked.
func Open(dir string, opts ...Option) (*Bitcask, error) {
	var o store.Options
	for _, apply := range opts {
		apply(&o)
	}

	s, err := store.Open(dir, o)
	if err != nil {
		return nil, err
	}
	return &Bitcask{s: s}, nil
}

// Get retrieves the value stored under key. Returns ErrKeyNotFound if
// the key is absent or was deleted.
func (b *Bitcask) Get(key []byte) ([]byte, error) {
	return b.s.Get(key)
}

// Put stores value under key.
func (b *Bitcask) Put(key, value []byte) error {
	return b.s.Put(key, value)
}

// Delete marks key as deleted.
func (b *Bitcask) Delete(key []byte) error {
	return b.s.Delete(key)
}

// Sync flushes the active file to disk.
func (b *Bitcask) Sync() error {
	return b.s.Sync()
}

// Close closes every open file handle and releases the write lock, if
// held. The Bitcask must not be used afterwards.
func (b *Bitcask) Close() error {
	return b.s.Close()
}

// ListKeys returns a snapshot of every key currently indexed. Order is
// unspecified: ordered iteration is out of scope. A key deleted since
// the last merge still appears here (its index entry shadows older
// live records until compaction drops it); Get on it reports
// ErrKeyNotFound, and Fold skips it.
func (b *Bitcask) ListKeys() [][]byte {
	return b.s.KeyDir().Keys()
}

// Fold calls fn once per live key/value pair, threading an
// accumulator through the calls in unspecified order.
func (b *Bitcask) Fold(fn func(key, value []byte, acc any) any, acc any) any {
	for _, key := range b.ListKeys() {
		value, err := b.Get(key)
		if err != nil {
			continue
		}
		acc = fn(key, value, acc)
	}
	return acc
}

// Merge compacts dir: it rewrites every live, non-tombstoned entry
// from the store's immutable data files into fresh files, emits a
// hint-file sidecar per output, and retires the superseded files. It
// fails with ErrMergeLocked if another live process already holds the
// merge lock.
//
// Merge takes a directory path rather than a *Bitcask handle, per the
// store's directory-level locking model: a merge can run from a
// separate process against the same directory a writer is using,
// coordinating purely through the write/merge lock files and the
// immutable-once-rotated data files, never through in-process shared
// state.
func Merge(dir string, opts ...Option) error {
	var o store.Options
	for _, apply := range opts {
		apply(&o)
	}

	_, err := merge.Merge(dir, o)
	return err
}
