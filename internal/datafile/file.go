package datafile

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// WrapDecision is the result of CheckWrite: whether the next write
// fits in the current file or requires a fresh one.
type WrapDecision int

const (
	// Ok means the record fits within max_file_size.
	Ok WrapDecision = iota
	// Wrap means the writer must rotate to a new file first.
	Wrap
)

// File wraps an open data file (or, transiently, a hint file) and
// tracks the append offset so writers never need to stat the file to
// learn their own position.
type File struct {
	f    *os.File
	id   int64
	path string
	size int64
}

// CreateFile creates a brand-new, empty data file inside dir. The
// candidate file ID is the current wall-clock second, or one past the
// highest data file ID already in dir if that is larger; if the
// candidate is taken, CreateFile busy-bumps it until it finds one that
// does not yet exist. A new file's ID therefore exceeds the ID of every
// data file present in dir when it is created.
func CreateFile(dir string) (*File, error) {
	id := time.Now().Unix()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	for _, e := range entries {
		if !DataFileNamePattern.MatchString(e.Name()) {
			continue
		}
		if existing, err := FileTstamp(e.Name()); err == nil && existing >= id {
			id = existing + 1
		}
	}
	for {
		path := MkFilename(dir, id)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
		if err == nil {
			return &File{f: f, id: id, path: path}, nil
		}
		if os.IsExist(err) {
			id++
			continue
		}
		return nil, errors.Wrapf(err, "create data file in %s", dir)
	}
}

// OpenFile opens an existing data file for read access. The file's ID
// is parsed from its own name.
func OpenFile(path string) (*File, error) {
	id, err := FileTstamp(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse file id from %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open data file %s", path)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat data file %s", path)
	}

	return &File{f: f, id: id, path: path, size: fi.Size()}, nil
}

// ID returns the file's integer file ID.
func (file *File) ID() int64 { return file.id }

// Name returns the file's base name, e.g. "1690000000.bitcask.data".
func (file *File) Name() string {
	return filepath.Base(file.path)
}

// Path returns the file's absolute path.
func (file *File) Path() string { return file.path }

// Size returns the number of bytes appended to the file so far.
func (file *File) Size() int64 { return file.size }

// CheckWrite reports whether appending a record of recordLen bytes
// would push the file past maxSize. An empty file never wraps on its
// first write, even if the record alone exceeds maxSize, so that an
// oversize value is never permanently unwritable. Passing recordLen 0
// checks the file's current size alone, for a caller (like the store
// engine's write path) that rotates after a write lands rather than
// before it.
func (file *File) CheckWrite(recordLen int, maxSize int64) WrapDecision {
	if file.size == 0 {
		return Ok
	}
	if file.size+int64(recordLen) > maxSize {
		return Wrap
	}
	return Ok
}

// Write appends one record to the file and returns the absolute
// offset of the value bytes (not the record start) together with the
// record's total on-disk length.
func (file *File) Write(key, value []byte, tstamp uint32) (valueOffset int64, totalSize uint32, err error) {
	rec := EncodeRecord(key, value, tstamp)

	n, err := file.f.Write(rec)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "write record to %s", file.path)
	}
	if n != len(rec) {
		return 0, 0, errors.Errorf("short write to %s: wrote %d of %d bytes", file.path, n, len(rec))
	}

	recordStart := file.size
	valueOffset = recordStart + int64(HeaderSize+len(key))
	totalSize = uint32(len(rec))
	file.size += int64(len(rec))

	return valueOffset, totalSize, nil
}

// Read reads back the totalSize-byte record whose value starts at
// valueOffset and validates its key and CRC. key is the lookup key (its
// length is needed to locate the record start from the value offset).
func (file *File) Read(key []byte, valueOffset int64, totalSize uint32) (value []byte, tstamp uint32, err error) {
	recordStart := valueOffset - int64(HeaderSize+len(key))
	if recordStart < 0 {
		return nil, 0, ErrCorruptRecord
	}

	buf := make([]byte, totalSize)
	if _, err := file.f.ReadAt(buf, recordStart); err != nil && err != io.EOF {
		return nil, 0, errors.Wrapf(err, "read record from %s at %d", file.path, recordStart)
	}

	gotKey, gotValue, gotTstamp, _, err := DecodeRecord(buf)
	if err != nil {
		return nil, 0, err
	}
	if string(gotKey) != string(key) {
		return nil, 0, ErrCorruptRecord
	}

	return gotValue, gotTstamp, nil
}

// Sync flushes the file's writes to stable storage.
func (file *File) Sync() error {
	if err := file.f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", file.path)
	}
	return nil
}

// Close closes the underlying file handle.
func (file *File) Close() error {
	if err := file.f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", file.path)
	}
	return nil
}

// Delete closes (if necessary) and removes the file from disk.
func (file *File) Delete() error {
	file.f.Close()
	if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", file.path)
	}
	return nil
}
