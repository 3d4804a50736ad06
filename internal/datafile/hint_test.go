package datafile

import "testing"

func TestEncodeDecodeHintRecordRoundTrip(t *testing.T) {
	key := []byte("some-key")
	entry := HintEntry{Tstamp: 99, ValueSize: 42, ValueOffset: 1000}

	buf := EncodeHintRecord(key, entry)

	gotKey, gotEntry, total, ok := DecodeHintRecord(buf)
	if !ok {
		t.Fatal("DecodeHintRecord returned ok = false")
	}
	if string(gotKey) != string(key) {
		t.Errorf("key = %q, want %q", gotKey, key)
	}
	if gotEntry != entry {
		t.Errorf("entry = %+v, want %+v", gotEntry, entry)
	}
	if total != len(buf) {
		t.Errorf("total = %d, want %d", total, len(buf))
	}
}

func TestDecodeHintRecordTruncated(t *testing.T) {
	buf := EncodeHintRecord([]byte("key"), HintEntry{Tstamp: 1, ValueSize: 2, ValueOffset: 3})

	_, _, _, ok := DecodeHintRecord(buf[:HintHeaderSize-1])
	if ok {
		t.Fatal("expected ok = false for a truncated header")
	}
}
