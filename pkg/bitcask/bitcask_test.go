package bitcask

import (
	"errors"
	"fmt"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("open new bitcask with read and write permission", func(t *testing.T) {
		dir := t.TempDir()
		b, err := Open(dir, ReadWrite())
		assertNoError(t, err)
		b.Close()
	})

	t.Run("open a directory that does not exist yields an empty store", func(t *testing.T) {
		dir := t.TempDir() + "/missing"
		b, err := Open(dir)
		assertNoError(t, err)
		defer b.Close()

		_, err = b.Get([]byte("anything"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("open existing bitcask with write permission reopens its data", func(t *testing.T) {
		dir := t.TempDir()

		b1, _ := Open(dir, ReadWrite())
		b1.Put([]byte("key12"), []byte("value12345"))
		b1.Close()

		b2, err := Open(dir, ReadWrite())
		assertNoError(t, err)
		defer b2.Close()

		got, err := b2.Get([]byte("key12"))
		assertNoError(t, err)
		assertString(t, string(got), "value12345")
	})

	t.Run("two readers in the same bitcask at the same time", func(t *testing.T) {
		dir := t.TempDir()

		b1, _ := Open(dir, ReadWrite())
		b1.Put([]byte("key2"), []byte("value2"))
		b1.Put([]byte("key3"), []byte("value3"))
		b1.Close()

		b2, err := Open(dir)
		assertNoError(t, err)
		b3, err := Open(dir)
		assertNoError(t, err)

		got, _ := b2.Get([]byte("key2"))
		assertString(t, string(got), "value2")
		b2.Close()

		got, _ = b3.Get([]byte("key2"))
		assertString(t, string(got), "value2")
		b3.Close()
	})

	t.Run("open existing bitcask with hint files in it", func(t *testing.T) {
		dir := t.TempDir()

		// A small file-size cap forces wraps, so by merge time plenty of
		// immutable files exist for it to compact into hinted outputs.
		b1, _ := Open(dir, ReadWrite(), WithMaxFileSize(1024))
		for i := 0; i < 1000; i++ {
			key := fmt.Sprintf("key%d", i+1)
			value := fmt.Sprintf("value%d", i+1)
			b1.Put([]byte(key), []byte(value))
		}
		assertNoError(t, Merge(dir))
		b1.Close()

		b2, err := Open(dir)
		assertNoError(t, err)
		defer b2.Close()

		got, err := b2.Get([]byte("key50"))
		assertNoError(t, err)
		assertString(t, string(got), "value50")
	})

	t.Run("open bitcask with writer already holding the lock", func(t *testing.T) {
		dir := t.TempDir()

		b1, _ := Open(dir, ReadWrite())
		defer b1.Close()

		_, err := Open(dir, ReadWrite())
		if !errors.Is(err, ErrWriteLocked) {
			t.Fatalf("err = %v, want ErrWriteLocked", err)
		}
	})
}

func TestGet(t *testing.T) {
	t.Run("get existing value", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite(), SyncOnPut())
		defer b.Close()

		b.Put([]byte("key12"), []byte("value12345"))

		got, err := b.Get([]byte("key12"))
		assertNoError(t, err)
		assertString(t, string(got), "value12345")
	})

	t.Run("get not existing value", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite())
		defer b.Close()

		_, err := b.Get([]byte("unknown key"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})
}

func TestPut(t *testing.T) {
	t.Run("put values with writer permission", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite())
		defer b.Close()

		b.Put([]byte("key12"), []byte("value12345"))

		got, err := b.Get([]byte("key12"))
		assertNoError(t, err)
		assertString(t, string(got), "value12345")
	})

	t.Run("put with no write permission", func(t *testing.T) {
		dir := t.TempDir()
		b1, _ := Open(dir, ReadWrite())
		b1.Close()

		b2, _ := Open(dir)
		defer b2.Close()

		err := b2.Put([]byte("key12"), []byte("value12345"))
		if !errors.Is(err, ErrReadOnly) {
			t.Fatalf("err = %v, want ErrReadOnly", err)
		}
	})
}

func TestDelete(t *testing.T) {
	t.Run("delete existing key", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite(), SyncOnPut())
		defer b.Close()

		b.Put([]byte("key12"), []byte("value12345"))
		b.Delete([]byte("key12"))

		_, err := b.Get([]byte("key12"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})

	t.Run("delete with no write permission", func(t *testing.T) {
		dir := t.TempDir()
		b1, _ := Open(dir, ReadWrite())
		b1.Close()

		b2, _ := Open(dir)
		defer b2.Close()

		err := b2.Delete([]byte("key12"))
		if !errors.Is(err, ErrReadOnly) {
			t.Fatalf("err = %v, want ErrReadOnly", err)
		}
	})

	t.Run("check if loaded delete is detected", func(t *testing.T) {
		dir := t.TempDir()
		b1, _ := Open(dir, ReadWrite(), SyncOnPut())
		b1.Put([]byte("key12"), []byte("value12345"))
		b1.Delete([]byte("key12"))
		b1.Close()

		b2, _ := Open(dir, ReadWrite(), SyncOnPut())
		defer b2.Close()

		_, err := b2.Get([]byte("key12"))
		if !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("err = %v, want ErrKeyNotFound", err)
		}
	})
}

func TestListKeys(t *testing.T) {
	dir := t.TempDir()
	b, _ := Open(dir, ReadWrite())
	defer b.Close()

	b.Put([]byte("key12"), []byte("value12345"))

	keys := b.ListKeys()
	if len(keys) != 1 || string(keys[0]) != "key12" {
		t.Fatalf("ListKeys = %v, want [key12]", keys)
	}
}

func TestFold(t *testing.T) {
	dir := t.TempDir()
	b, _ := Open(dir, ReadWrite())
	defer b.Close()

	for i := 1; i <= 10; i++ {
		b.Put([]byte(fmt.Sprint(i)), []byte(fmt.Sprint(i)))
	}

	got := b.Fold(func(key, value []byte, acc any) any {
		sum, _ := acc.(int)
		return sum + len(key) + len(value)
	}, 0)

	// Keys "1" through "9" each contribute 1+1 bytes; "10" contributes
	// 2+2.
	want := 22
	if got != want {
		t.Fatalf("Fold = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	t.Run("merge with write permission", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite(), WithMaxFileSize(1024))
		defer b.Close()

		for i := 0; i < 2000; i++ {
			key := fmt.Sprintf("key%d", i+1)
			value := fmt.Sprintf("value%d", i+1)
			b.Put([]byte(key), []byte(value))
		}

		assertNoError(t, Merge(dir, WithMaxFileSize(1024)))

		got, err := b.Get([]byte("key100"))
		assertNoError(t, err)
		assertString(t, string(got), "value100")
	})

	t.Run("concurrent merges either succeed or fail with ErrMergeLocked", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite())
		b.Put([]byte("key12"), []byte("value12345"))
		b.Close()

		mergeDone := make(chan error, 1)
		go func() { mergeDone <- Merge(dir) }()
		secondErr := Merge(dir)

		<-mergeDone
		if secondErr != nil && !errors.Is(secondErr, ErrMergeLocked) {
			t.Fatalf("second concurrent Merge err = %v, want nil or ErrMergeLocked", secondErr)
		}
	})
}

func TestSync(t *testing.T) {
	t.Run("put then sync", func(t *testing.T) {
		dir := t.TempDir()
		b, _ := Open(dir, ReadWrite())
		defer b.Close()

		b.Put([]byte("key12"), []byte("value12345"))
		assertNoError(t, b.Sync())

		got, err := b.Get([]byte("key12"))
		assertNoError(t, err)
		assertString(t, string(got), "value12345")
	})

	t.Run("sync with no write permission", func(t *testing.T) {
		dir := t.TempDir()
		b1, _ := Open(dir, ReadWrite())
		b1.Close()

		b2, _ := Open(dir)
		defer b2.Close()

		err := b2.Sync()
		if !errors.Is(err, ErrReadOnly) {
			t.Fatalf("err = %v, want ErrReadOnly", err)
		}
	})
}

func assertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertString(t testing.TB, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("got:\n%q\nwant:\n%q", got, want)
	}
}
