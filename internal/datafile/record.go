// Package datafile implements the on-disk record framing and the
// append-only data file primitives that sit under the keydir and the
// store engine: encode/decode a record, create/open/rotate a file,
// compute its CRC, and walk its contents from the beginning.
package datafile

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// HeaderSize is the fixed length, in bytes, of a data file record's
// header: CRC32(4) | tstamp(4) | ksz(4) | vsz(4).
const HeaderSize = 16

// Tombstone is the reserved value that marks a key as deleted. Users
// must never store this exact byte string as a legitimate value.
var Tombstone = []byte("bitcask_tombstone")

// ErrCorruptRecord is returned when a record's CRC does not match its
// header and body, or when decoding would read past the supplied
// buffer.
var ErrCorruptRecord = errors.New("bitcask: corrupt record")

// IsTombstone reports whether value is the reserved deletion sentinel.
func IsTombstone(value []byte) bool {
	return string(value) == string(Tombstone)
}

// EncodeRecord frames key/value/tstamp into a single record buffer
// ready to be appended to a data file.
func EncodeRecord(key, value []byte, tstamp uint32) []byte {
	total := HeaderSize + len(key) + len(value)
	buf := make([]byte, total)

	binary.BigEndian.PutUint32(buf[4:8], tstamp)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(value)))
	copy(buf[HeaderSize:], key)
	copy(buf[HeaderSize+len(key):], value)

	crc := crc32.ChecksumIEEE(buf[4:])
	binary.BigEndian.PutUint32(buf[0:4], crc)

	return buf
}

// DecodeRecord parses a single record out of buf, which must contain
// at least the full record (header + key + value). It returns the
// key, the value, the timestamp, and the total record length.
// Returns ErrCorruptRecord if the CRC does not validate.
func DecodeRecord(buf []byte) (key, value []byte, tstamp uint32, total int, err error) {
	if len(buf) < HeaderSize {
		return nil, nil, 0, 0, ErrCorruptRecord
	}

	wantCRC := binary.BigEndian.Uint32(buf[0:4])
	tstamp = binary.BigEndian.Uint32(buf[4:8])
	ksz := binary.BigEndian.Uint32(buf[8:12])
	vsz := binary.BigEndian.Uint32(buf[12:16])

	total = HeaderSize + int(ksz) + int(vsz)
	if len(buf) < total {
		return nil, nil, 0, 0, ErrCorruptRecord
	}

	gotCRC := crc32.ChecksumIEEE(buf[4:total])
	if gotCRC != wantCRC {
		return nil, nil, 0, 0, ErrCorruptRecord
	}

	key = buf[HeaderSize : HeaderSize+int(ksz)]
	value = buf[HeaderSize+int(ksz) : total]

	return key, value, tstamp, total, nil
}

// RecordLen returns the on-disk length of a record holding key/value,
// without encoding it.
func RecordLen(key, value []byte) int {
	return HeaderSize + len(key) + len(value)
}

// decodeRecordFields parses key/value/tstamp out of buf, which must
// already be known to hold one complete record (HeaderSize + ksz +
// vsz bytes), without validating its CRC. Fold uses this: it has
// already confirmed a full, untruncated record is present straight
// from the physical byte count it read, so a CRC mismatch here means
// the record itself is corrupt, not that the file ends mid-record.
// That distinction is left to the caller: Fold still indexes the
// record so a later random-access Read (which does check the CRC) is
// what reports ErrCorruptRecord.
func decodeRecordFields(buf []byte) (key, value []byte, tstamp uint32, total int) {
	tstamp = binary.BigEndian.Uint32(buf[4:8])
	ksz := binary.BigEndian.Uint32(buf[8:12])
	vsz := binary.BigEndian.Uint32(buf[12:16])
	total = HeaderSize + int(ksz) + int(vsz)
	key = buf[HeaderSize : HeaderSize+int(ksz)]
	value = buf[HeaderSize+int(ksz) : total]
	return key, value, tstamp, total
}
