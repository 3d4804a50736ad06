package store

import (
	"github.com/pkg/errors"

	"github.com/nikolov-k/bitkeep/internal/datafile"
)

// ErrKeyNotFound is returned by Get when the key is absent, or is
// present but its most recent value is a tombstone.
var ErrKeyNotFound = errors.New("bitcask: key not found")

// ErrReadOnly is returned by Put/Delete when the store was opened
// without ReadWrite.
var ErrReadOnly = errors.New("bitcask: store is read-only")

// ErrInvalidArgument is returned for a zero-length key.
var ErrInvalidArgument = errors.New("bitcask: invalid argument")

// ErrCorruptRecord is returned by Get when the record a keydir entry
// points at fails its CRC check.
var ErrCorruptRecord = datafile.ErrCorruptRecord
