package datafile

import "testing"

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	key := []byte("hello")
	value := []byte("world")

	buf := EncodeRecord(key, value, 1234)

	gotKey, gotValue, gotTstamp, total, err := DecodeRecord(buf)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if string(gotKey) != "hello" {
		t.Errorf("key = %q, want %q", gotKey, "hello")
	}
	if string(gotValue) != "world" {
		t.Errorf("value = %q, want %q", gotValue, "world")
	}
	if gotTstamp != 1234 {
		t.Errorf("tstamp = %d, want 1234", gotTstamp)
	}
	if total != len(buf) {
		t.Errorf("total = %d, want %d", total, len(buf))
	}
}

func TestDecodeRecordDetectsCorruption(t *testing.T) {
	buf := EncodeRecord([]byte("k"), []byte("v"), 1)
	buf[len(buf)-1] ^= 0xFF // flip a bit inside the value

	_, _, _, _, err := DecodeRecord(buf)
	if err != ErrCorruptRecord {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestDecodeRecordTruncatedBuffer(t *testing.T) {
	buf := EncodeRecord([]byte("k"), []byte("value"), 1)

	_, _, _, _, err := DecodeRecord(buf[:len(buf)-2])
	if err != ErrCorruptRecord {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestIsTombstone(t *testing.T) {
	if !IsTombstone(Tombstone) {
		t.Fatal("Tombstone should be recognised as a tombstone")
	}
	if IsTombstone([]byte("bitcask_tombstone_not_quite")) {
		t.Fatal("a different byte string must not be treated as the tombstone")
	}
}

func TestEmptyFileNeverWraps(t *testing.T) {
	f := &File{size: 0}
	if got := f.CheckWrite(1<<20, 1); got != Ok {
		t.Fatalf("empty file must never wrap on its first write, got %v", got)
	}
}

func TestCheckWriteWraps(t *testing.T) {
	f := &File{size: 90}
	if got := f.CheckWrite(20, 100); got != Wrap {
		t.Fatalf("CheckWrite = %v, want Wrap", got)
	}
	if got := f.CheckWrite(5, 100); got != Ok {
		t.Fatalf("CheckWrite = %v, want Ok", got)
	}
}
