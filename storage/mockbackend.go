/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package storage

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MockBackend keeps files in memory. A file appears once its writer is
// closed. It is safe for concurrent use.
type MockBackend struct {
	mutex sync.Mutex
	store map[string][]byte
	// FailWrites makes every writer fail on Write.
	FailWrites bool
}

func NewMockBackend() *MockBackend {
	return &MockBackend{store: make(map[string][]byte)}
}

type mockWriter struct {
	db   *MockBackend
	name string
	buf  bytes.Buffer
}

func (w *mockWriter) Write(p []byte) (int, error) {
	if w.db.FailWrites {
		return 0, errors.New("mock write failure")
	}
	return w.buf.Write(p)
}

func (w *mockWriter) Close() error {
	w.db.mutex.Lock()
	defer w.db.mutex.Unlock()
	w.db.store[w.name] = w.buf.Bytes()
	return nil
}

func (db *MockBackend) Writer(name string) (io.WriteCloser, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	return &mockWriter{db: db, name: name}, nil
}

func (db *MockBackend) Rename(from string, to string) error {
	if err := CheckName(to); err != nil {
		return err
	}
	db.mutex.Lock()
	defer db.mutex.Unlock()
	data, ok := db.store[from]
	if !ok {
		return ErrNotExist
	}
	delete(db.store, from)
	db.store[to] = data
	return nil
}

func (db *MockBackend) Remove(name string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.store[name]; !ok {
		return ErrNotExist
	}
	delete(db.store, name)
	return nil
}

func (db *MockBackend) Load(name string) ([]byte, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	data, ok := db.store[name]
	if !ok {
		return nil, ErrNotExist
	}
	return data, nil
}

func (db *MockBackend) Exists(name string) bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	_, ok := db.store[name]
	return ok
}

func (db *MockBackend) List() ([]string, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	names := make([]string, 0, len(db.store))
	for name := range db.store {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (db *MockBackend) Path(name string) string {
	return "mock://" + name
}
