package datafile

import "testing"

func TestMkFilenameAndFileTstamp(t *testing.T) {
	path := MkFilename("/tmp/store", 1690000000)
	if path != "/tmp/store/1690000000.bitcask.data" {
		t.Fatalf("MkFilename = %q", path)
	}

	id, err := FileTstamp(path)
	if err != nil {
		t.Fatalf("FileTstamp: %v", err)
	}
	if id != 1690000000 {
		t.Fatalf("FileTstamp = %d, want 1690000000", id)
	}
}

func TestDataFileNamePattern(t *testing.T) {
	cases := map[string]bool{
		"123.bitcask.data":         true,
		"0.bitcask.data":           true,
		"123.bitcask.hint":         false,
		"bitcask.write.lock":       false,
		"123.bitcask.data.merging": false,
	}
	for name, want := range cases {
		if got := DataFileNamePattern.MatchString(name); got != want {
			t.Errorf("DataFileNamePattern.MatchString(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMkMergingHintFilename(t *testing.T) {
	got := MkMergingHintFilename("/tmp/store", 42)
	want := "/tmp/store/42.bitcask.hint.merging"
	if got != want {
		t.Fatalf("MkMergingHintFilename = %q, want %q", got, want)
	}
}
