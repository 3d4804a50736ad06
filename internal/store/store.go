// Package store binds an open directory, its keydir, its set of
// immutable read files and (in read-write mode) its single active
// write file, and serves Get/Put/Delete, orchestrating file rotation
// ("wrap") on overflow.
package store

import (
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikolov-k/bitkeep/internal/datafile"
	"github.com/nikolov-k/bitkeep/internal/keydir"
	"github.com/nikolov-k/bitkeep/internal/lockfile"
)

// DefaultMaxFileSize is the size, in bytes, past which a write file is
// rotated if no smaller limit is configured: 2 GiB.
const DefaultMaxFileSize = 2 * 1024 * 1024 * 1024

// Options configures Open.
type Options struct {
	// ReadWrite opens the store for writing. Only one ReadWrite holder
	// is allowed per directory at a time.
	ReadWrite bool
	// MaxFileSize caps how large the active write file is allowed to
	// grow before a wrap. Zero means DefaultMaxFileSize.
	MaxFileSize int64
	// SyncOnPut fsyncs the active file after every Put.
	SyncOnPut bool
	// Logger receives structured diagnostics. Nil uses a discard
	// logger.
	Logger *logrus.Logger
	// Owner identifies this process in the write lock's body. Empty
	// uses lockfile.DefaultOwner().
	Owner string
}

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize > 0 {
		return o.MaxFileSize
	}
	return DefaultMaxFileSize
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return discard
}

func (o Options) owner() string {
	if o.Owner != "" {
		return o.Owner
	}
	return lockfile.DefaultOwner()
}

// Store is an open bitcask-style datastore directory.
type Store struct {
	mu sync.Mutex // guards writeFile, readFiles, and keydir structural edits

	dir    string
	opts   Options
	log    *logrus.Entry
	keyDir *keydir.KeyDir

	readFiles map[int64]*datafile.File
	writeFile *datafile.File
	lock      *lockfile.Lock
}

// Open opens dir as a bitcask store. In ReadWrite mode it acquires the
// write lock and creates a fresh active file; in read-only mode it
// consults the write lock (if any) to learn which file is currently
// active so it can be excluded from the read set, per the invariant
// that the active write file is never in the read set during open.
func Open(dir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "ensure store directory %s", dir)
	}

	s := &Store{
		dir:       dir,
		opts:      opts,
		keyDir:    keydir.New(),
		readFiles: make(map[int64]*datafile.File),
	}
	s.log = opts.logger().WithField("dir", dir)

	var excludeID int64 = -1
	excluded := false

	if opts.ReadWrite {
		lock, err := lockfile.Acquire(lockfile.Write, dir, opts.owner(), "")
		if err != nil {
			return nil, err
		}

		wf, err := datafile.CreateFile(dir)
		if err != nil {
			lock.Release()
			return nil, err
		}
		if err := lock.Update(wf.Name()); err != nil {
			wf.Delete()
			lock.Release()
			return nil, err
		}

		s.writeFile = wf
		s.lock = lock
		excludeID, excluded = wf.ID(), true
		s.log.WithField("active_file", wf.Name()).Info("opened store for writing")
	} else {
		owner, activeFilename, err := lockfile.Check(lockfile.Write, dir)
		if err != nil {
			return nil, err
		}
		if activeFilename != "" {
			if id, err := datafile.FileTstamp(activeFilename); err == nil {
				excludeID, excluded = id, true
				s.log.WithFields(logrus.Fields{"writer": owner, "active_file": activeFilename}).Debug("excluding live writer's active file from read set")
			}
		}
	}

	ids, err := dataFileIDs(dir)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Newest first: an optimisation only, since the keydir's
	// monotonic-timestamp rule makes scan order correctness-neutral.
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	for _, id := range ids {
		if excluded && id == excludeID {
			continue
		}
		if err := s.loadDataFile(id); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

func dataFileIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}

	var ids []int64
	for _, e := range entries {
		if e.IsDir() || !datafile.DataFileNamePattern.MatchString(e.Name()) {
			continue
		}
		id, err := datafile.FileTstamp(e.Name())
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadDataFile opens data file id read-only, prefers its hint file if
// one parses cleanly, else falls back to a full fold, and keeps the
// handle open in the read set for subsequent Gets.
func (s *Store) loadDataFile(id int64) error {
	f, err := datafile.OpenFile(datafile.MkFilename(s.dir, id))
	if err != nil {
		return err
	}

	if s.loadFromHint(id) {
		s.readFiles[id] = f
		return nil
	}

	_, err = f.Fold(func(key, value []byte, tstamp uint32, loc datafile.RecordLocation, acc any) any {
		s.keyDir.Put(key, keydir.Entry{
			FileID:      id,
			ValueOffset: loc.ValueOffset,
			ValueSize:   uint32(len(value)),
			TotalSize:   loc.TotalSize,
			Tstamp:      tstamp,
		})
		return acc
	}, nil)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "fold data file %d", id)
	}

	s.readFiles[id] = f
	return nil
}

// loadFromHint tries to populate the keydir from file id's hint
// sidecar. It returns false (and leaves the keydir untouched for this
// file) if no hint file exists or it fails to parse cleanly; absence
// or corruption of a hint file only costs a rescan, never an error.
func (s *Store) loadFromHint(id int64) bool {
	hf, err := os.Open(datafile.MkHintFilename(s.dir, id))
	if err != nil {
		return false
	}
	defer hf.Close()

	data, err := io.ReadAll(hf)
	if err != nil {
		return false
	}

	entries := make(map[string]keydir.Entry)
	i := 0
	for i < len(data) {
		key, hint, n, ok := datafile.DecodeHintRecord(data[i:])
		if !ok {
			return false
		}
		entries[string(key)] = keydir.Entry{
			FileID:      id,
			ValueOffset: hint.ValueOffset,
			ValueSize:   hint.ValueSize,
			TotalSize:   uint32(datafile.HeaderSize) + uint32(len(key)) + hint.ValueSize,
			Tstamp:      hint.Tstamp,
		}
		i += n
	}

	for k, e := range entries {
		s.keyDir.Put([]byte(k), e)
	}
	return true
}

// Get retrieves the value stored under key.
func (s *Store) Get(key []byte) ([]byte, error) {
	entry, ok := s.keyDir.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}

	f := s.fileForRead(entry.FileID)
	if f == nil {
		return nil, errors.Errorf("bitcask: keydir points at unknown file id %d", entry.FileID)
	}

	value, _, err := f.Read(key, entry.ValueOffset, entry.TotalSize)
	if err != nil {
		return nil, err
	}
	if datafile.IsTombstone(value) {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (s *Store) fileForRead(id int64) *datafile.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeFile != nil && s.writeFile.ID() == id {
		return s.writeFile
	}
	return s.readFiles[id]
}

// Put stores value under key, stamping a fresh timestamp, then rotates
// the active file if that write pushed it past MaxFileSize. Rotation
// happens after the write, not before: the record that fills a file
// stays in that file, and the active file left behind for the next
// Put is always a fresh, empty one.
func (s *Store) Put(key, value []byte) error {
	if !s.opts.ReadWrite {
		return ErrReadOnly
	}
	if len(key) == 0 {
		return ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tstamp := nowTstamp()
	valueOffset, totalSize, err := s.writeFile.Write(key, value, tstamp)
	if err != nil {
		return err
	}

	s.keyDir.Put(key, keydir.Entry{
		FileID:      s.writeFile.ID(),
		ValueOffset: valueOffset,
		ValueSize:   uint32(len(value)),
		TotalSize:   totalSize,
		Tstamp:      tstamp,
	})

	if s.opts.SyncOnPut {
		if err := s.writeFile.Sync(); err != nil {
			return err
		}
	}

	if s.writeFile.CheckWrite(0, s.opts.maxFileSize()) == datafile.Wrap {
		return s.wrapLocked()
	}
	return nil
}

// wrapLocked syncs the current write file, moves it into the read set
// (keeping it open, not closing and reopening, so the OS page cache
// for it is not dropped), and opens a fresh active file. Caller must
// hold s.mu.
func (s *Store) wrapLocked() error {
	if err := s.writeFile.Sync(); err != nil {
		return err
	}
	s.readFiles[s.writeFile.ID()] = s.writeFile

	fresh, err := datafile.CreateFile(s.dir)
	if err != nil {
		return err
	}

	if s.lock != nil {
		if err := s.lock.Update(fresh.Name()); err != nil {
			return err
		}
	}

	s.log.WithField("new_file", fresh.Name()).Debug("wrapped to a new active file")
	s.writeFile = fresh
	return nil
}

// Delete marks key as deleted by writing the tombstone sentinel.
func (s *Store) Delete(key []byte) error {
	return s.Put(key, datafile.Tombstone)
}

// Sync flushes the active file to disk.
func (s *Store) Sync() error {
	if !s.opts.ReadWrite {
		return ErrReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeFile.Sync()
}

// Close closes every open file handle and, if this store owns the
// write lock, releases it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.writeFile != nil {
		note(s.writeFile.Sync())
		note(s.writeFile.Close())
	}
	for _, f := range s.readFiles {
		note(f.Close())
	}
	if s.lock != nil {
		note(s.lock.Release())
	}
	return firstErr
}

// KeyDir exposes the store's keydir, e.g. for the merge engine to use
// as its authoritative "live keydir".
func (s *Store) KeyDir() *keydir.KeyDir { return s.keyDir }

// Dir returns the store's directory path.
func (s *Store) Dir() string { return s.dir }

// MaxFileSize returns the configured (or default) max file size.
func (s *Store) MaxFileSize() int64 { return s.opts.maxFileSize() }

// SourceFiles returns every immutable read file currently open,
// sorted by file ID ascending. The active write file, if any, is
// never included.
func (s *Store) SourceFiles() []*datafile.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make([]*datafile.File, 0, len(s.readFiles))
	for _, f := range s.readFiles {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID() < files[j].ID() })
	return files
}

// DropSourceFile removes a file from the read set's bookkeeping after
// the merge engine has deleted it from disk.
func (s *Store) DropSourceFile(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readFiles, id)
}

// Logger returns the store's structured logger, for collaborators like
// the merge engine that operate on an already-open store.
func (s *Store) Logger() *logrus.Entry { return s.log }
