package merge

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/nikolov-k/bitkeep/internal/lockfile"
	"github.com/nikolov-k/bitkeep/internal/store"
)

func countFiles(t *testing.T, dir, pattern string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	require.NoError(t, err)
	return len(matches)
}

// visibleState opens dir read-only and snapshots every live key's
// value into a plain map, for diffing across a merge with go-cmp: a
// merge rewrites file IDs and offsets, so comparing keydir.Entry
// values directly would fail even when nothing visible changed.
func visibleState(t *testing.T, dir string) map[string]string {
	t.Helper()

	s, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	defer s.Close()

	out := make(map[string]string)
	for _, key := range s.KeyDir().Keys() {
		value, err := s.Get(key)
		if err != nil {
			continue
		}
		out[string(key)] = string(value)
	}
	return out
}

func TestMergeWithNoLiveRecordsProducesNoOutput(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, store.Options{ReadWrite: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// The closed store left exactly one data file behind: its empty
	// active file. Merging consumes it and, having nothing live to
	// rewrite, emits nothing at all.
	result, err := Merge(dir, store.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.SourceFiles)
	require.Equal(t, 0, result.OutputFiles)
	require.Equal(t, 0, countFiles(t, dir, "*.bitcask.data"))
}

func TestMergeReducesFileCountAndPreservesValues(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, store.Options{ReadWrite: true, MaxFileSize: 1})
	require.NoError(t, err)

	// Every key written twice, across many forced wraps, so multiple
	// source files each hold a mix of live and superseded records.
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key%d", i)
		require.NoError(t, s.Put([]byte(k), []byte("stale")))
	}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("key%d", i)
		require.NoError(t, s.Put([]byte(k), []byte(fmt.Sprintf("fresh%d", i))))
	}
	require.NoError(t, s.Close())

	beforeFiles := countFiles(t, dir, "*.bitcask.data")
	require.Greater(t, beforeFiles, 2, "test setup should have produced several source files")
	beforeState := visibleState(t, dir)

	result, err := Merge(dir, store.Options{})
	require.NoError(t, err)
	require.Equal(t, beforeFiles, result.SourceFiles)
	require.Greater(t, result.OutputFiles, 0)

	afterFiles := countFiles(t, dir, "*.bitcask.data")
	require.Less(t, afterFiles, beforeFiles, "merge must reduce the number of data files")

	// A merge must rewrite file IDs and offsets but never change what
	// a caller actually sees at each key.
	afterState := visibleState(t, dir)
	if diff := cmp.Diff(beforeState, afterState); diff != "" {
		t.Fatalf("visible state changed across merge (-before +after):\n%s", diff)
	}
}

func TestMergeDropsTombstonedKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, store.Options{ReadWrite: true, MaxFileSize: 1})
	require.NoError(t, err)

	require.NoError(t, s.Put([]byte("keep"), []byte("v")))
	require.NoError(t, s.Put([]byte("gone"), []byte("v")))
	require.NoError(t, s.Delete([]byte("gone")))
	require.NoError(t, s.Close())

	_, err = Merge(dir, store.Options{MaxFileSize: 1})
	require.NoError(t, err)

	s2, err := store.Open(dir, store.Options{})
	require.NoError(t, err)
	defer s2.Close()

	value, err := s2.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, "v", string(value))

	_, err = s2.Get([]byte("gone"))
	require.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestMergeEmitsHintFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, store.Options{ReadWrite: true})
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	result, err := Merge(dir, store.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, result.OutputFiles)

	hints := countFiles(t, dir, "*.bitcask.hint")
	require.Equal(t, result.OutputFiles, hints)
}

func TestMergeRespectsMergeLock(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir, store.Options{ReadWrite: true})
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	lock, err := lockfile.Acquire(lockfile.Merge, dir, "other-merger", "")
	require.NoError(t, err)
	defer lock.Release()

	_, err = Merge(dir, store.Options{})
	require.ErrorIs(t, err, lockfile.ErrMergeLocked)
}
