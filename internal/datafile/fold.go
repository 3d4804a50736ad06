package datafile

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// RecordLocation pins down where a record's value lives: the absolute
// offset of the value bytes and the total on-disk length of the
// record (header + key + value), enough to re-read the whole record.
type RecordLocation struct {
	ValueOffset int64
	TotalSize   uint32
}

// Folder is called once per record found during a Fold, in file
// order, and returns the next accumulator value.
type Folder func(key, value []byte, tstamp uint32, loc RecordLocation, acc any) any

// Fold performs a sequential scan of the file from offset 0, calling
// fn once per complete record. It stops cleanly at EOF.
//
// A truncated tail record (the header or body runs past EOF, so the
// bytes it would need were never fully written) stops the scan at
// that point and returns the accumulator built so far, without an
// error: this is the expected footprint of a writer killed
// mid-append, and the file is considered valid up to that boundary.
//
// A record whose bytes are all physically present but whose CRC does
// not validate is NOT treated as a truncated tail: it is a corrupt
// interior record, not evidence of a crash, so Fold still calls fn for
// it (with whatever key/value/tstamp its bytes decode to) and keeps
// scanning past it. CRC validation itself is the random-access read
// path's job (File.Read), which runs when a keydir entry built from
// this scan is actually looked up and reports ErrCorruptRecord then.
// Any other I/O failure is returned as an error.
func (file *File) Fold(fn Folder, acc any) (any, error) {
	var offset int64

	header := make([]byte, HeaderSize)
	for {
		n, err := file.f.ReadAt(header, offset)
		if n < HeaderSize {
			if err == nil || err == io.EOF {
				return acc, nil
			}
			return acc, errors.Wrapf(err, "read header at %d in %s", offset, file.path)
		}

		ksz := binary.BigEndian.Uint32(header[8:12])
		vsz := binary.BigEndian.Uint32(header[12:16])
		total := HeaderSize + int(ksz) + int(vsz)

		body := make([]byte, total)
		copy(body, header)
		bn, err := file.f.ReadAt(body[HeaderSize:], offset+int64(HeaderSize))
		if bn < total-HeaderSize {
			if err == nil || err == io.EOF {
				return acc, nil
			}
			return acc, errors.Wrapf(err, "read body at %d in %s", offset, file.path)
		}

		key, value, tstamp, recLen := decodeRecordFields(body)

		loc := RecordLocation{
			ValueOffset: offset + int64(HeaderSize+len(key)),
			TotalSize:   uint32(recLen),
		}
		acc = fn(key, value, tstamp, loc, acc)
		offset += int64(recLen)
	}
}
