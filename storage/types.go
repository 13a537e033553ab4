/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package storage

import (
	"io"
	"path/filepath"

	"github.com/pkg/errors"
)

// StorageBackend is a flat directory of named package files. Names are plain
// file names; they may not contain a path separator.
type StorageBackend interface {
	Writer(name string) (io.WriteCloser, error)
	Rename(from string, to string) error
	Remove(name string) error
	Load(name string) ([]byte, error)
	List() ([]string, error)
	Exists(name string) bool
	// Path names where the file lives, for reporting.
	Path(name string) string
}

// ErrNotExist is returned by Load and Remove for an unknown name.
var ErrNotExist = errors.New("no such file")

// CheckName rejects names that would escape the output directory.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.Errorf("invalid file name %q", name)
	}
	if filepath.Base(name) != name || filepath.IsAbs(name) {
		return errors.Errorf("file name %q must not contain a path", name)
	}
	return nil
}
