package datafile

import "encoding/binary"

// HintHeaderSize is the fixed length, in bytes, of a hint file record's
// header: tstamp(4) | ksz(4) | vsz(4) | value_offset(8).
const HintHeaderSize = 20

// HintEntry is the payload of a single hint file record: everything
// needed to reconstruct a keydir entry without re-reading the data
// file's record body.
type HintEntry struct {
	Tstamp      uint32
	ValueSize   uint32
	ValueOffset int64
}

// EncodeHintRecord frames a hint record for key/entry.
func EncodeHintRecord(key []byte, entry HintEntry) []byte {
	buf := make([]byte, HintHeaderSize+len(key))

	binary.BigEndian.PutUint32(buf[0:4], entry.Tstamp)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[8:12], entry.ValueSize)
	binary.BigEndian.PutUint64(buf[12:20], uint64(entry.ValueOffset))
	copy(buf[HintHeaderSize:], key)

	return buf
}

// DecodeHintRecord parses a single hint record out of buf, returning
// the key, the entry, and the total record length.
func DecodeHintRecord(buf []byte) (key []byte, entry HintEntry, total int, ok bool) {
	if len(buf) < HintHeaderSize {
		return nil, HintEntry{}, 0, false
	}

	tstamp := binary.BigEndian.Uint32(buf[0:4])
	ksz := binary.BigEndian.Uint32(buf[4:8])
	vsz := binary.BigEndian.Uint32(buf[8:12])
	voff := binary.BigEndian.Uint64(buf[12:20])

	total = HintHeaderSize + int(ksz)
	if len(buf) < total {
		return nil, HintEntry{}, 0, false
	}

	key = buf[HintHeaderSize:total]
	entry = HintEntry{Tstamp: tstamp, ValueSize: vsz, ValueOffset: int64(voff)}

	return key, entry, total, true
}
