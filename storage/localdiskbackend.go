/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package storage

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

type LocalDiskBackend struct {
	perms os.FileMode
	root  string
}

// NewLocalDiskBackend creates root, and any missing parents, when needed.
func NewLocalDiskBackend(perms os.FileMode, root string) (*LocalDiskBackend, error) {
	if !isDirectory(root) {
		glog.V(1).Infof("Creating output directory %s", root)
		if err := os.MkdirAll(root, os.ModeDir|0777); err != nil {
			return nil, errors.Wrapf(err, "creating output directory %s", root)
		}
	}
	return &LocalDiskBackend{perms: perms, root: root}, nil
}

func isDirectory(aPath string) bool {
	fileStat, err := os.Stat(aPath)
	if err != nil {
		return false
	}

	return fileStat.IsDir()
}

func (db *LocalDiskBackend) Path(name string) string {
	return filepath.Join(db.root, name)
}

func (db *LocalDiskBackend) resolve(name string) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	return db.Path(name), nil
}

func (db *LocalDiskBackend) Writer(name string) (io.WriteCloser, error) {
	path, err := db.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, db.perms)
}

func (db *LocalDiskBackend) Rename(from string, to string) error {
	fromPath, err := db.resolve(from)
	if err != nil {
		return err
	}
	toPath, err := db.resolve(to)
	if err != nil {
		return err
	}
	return os.Rename(fromPath, toPath)
}

func (db *LocalDiskBackend) Remove(name string) error {
	path, err := db.resolve(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrNotExist
	}
	return err
}

func (db *LocalDiskBackend) Load(name string) ([]byte, error) {
	path, err := db.resolve(name)
	if err != nil {
		return nil, err
	}

	fd, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}

	data, err := ioutil.ReadAll(fd)
	if err != nil {
		fd.Close() // ignore error
		return data, err
	}

	err = fd.Close()
	return data, err
}

func (db *LocalDiskBackend) Exists(name string) bool {
	path, err := db.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (db *LocalDiskBackend) List() ([]string, error) {
	entries, err := ioutil.ReadDir(db.root)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
