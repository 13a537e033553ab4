package storage

import (
	"bytes"
	"io"
	"testing"
)

func writeAll(t *testing.T, db StorageBackend, name string, data []byte) {
	w, err := db.Writer(name)
	if err != nil {
		t.Fatalf("Should have opened %s: %+v", name, err)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		t.Fatalf("Should have written %d bytes: %+v", len(data), err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Should have closed %s: %+v", name, err)
	}
}

func storeAndLoad(t *testing.T, db StorageBackend, name string, data []byte) {
	writeAll(t, db, name, data)

	t.Logf("Now loading %s", name)

	loaded, err := db.Load(name)
	if err != nil {
		t.Fatalf("Should have loaded: %+v", err)
	}

	if !bytes.Equal(data, loaded) {
		t.Fatalf("Data should match exactly")
	}
}

func BackendTestStoreLoad(t *testing.T, db StorageBackend) {
	storeAndLoad(t, db, "empty.appx", []byte{})
	storeAndLoad(t, db, "small.appx", []byte{0x00, 0x01, 0x02})
	storeAndLoad(t, db, "large.msixbundle", make([]byte, 1*1024*1024))

	// Overwrite
	storeAndLoad(t, db, "small.appx", []byte{0x03})

	if err := db.Remove("small.appx"); err != nil {
		t.Fatalf("Should have removed: %+v", err)
	}
	if _, err := db.Load("small.appx"); err != ErrNotExist {
		t.Fatalf("Should not have loaded a missing file: %v", err)
	}
	if err := db.Remove("small.appx"); err != ErrNotExist {
		t.Fatalf("Removing twice should be ErrNotExist: %v", err)
	}
}

func BackendTestRename(t *testing.T, db StorageBackend) {
	writeAll(t, db, "app.appx", []byte("old"))
	writeAll(t, db, "app.appx.tmp", []byte("new"))

	if err := db.Rename("app.appx.tmp", "app.appx"); err != nil {
		t.Fatalf("Should have renamed: %+v", err)
	}
	if db.Exists("app.appx.tmp") {
		t.Error("Source should be gone after rename")
	}

	data, err := db.Load("app.appx")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("Rename should replace the target, got %q", data)
	}
}

func BackendTestList(t *testing.T, db StorageBackend) {
	writeAll(t, db, "b.appx", []byte{0x01})
	writeAll(t, db, "a.appx", []byte{0x02})

	names, err := db.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "a.appx" || names[1] != "b.appx" {
		t.Errorf("Unexpected listing: %v", names)
	}
}

func BackendTestRejectsPaths(t *testing.T, db StorageBackend) {
	for _, name := range []string{"", ".", "..", "../escape.appx", "sub/dir.appx", "/abs.appx"} {
		if _, err := db.Writer(name); err == nil {
			t.Errorf("Writer should have rejected %q", name)
		}
		if db.Exists(name) {
			t.Errorf("%q should not exist", name)
		}
	}
}
