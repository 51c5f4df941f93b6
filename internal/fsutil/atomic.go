// Package fsutil holds small filesystem helpers shared by the reconciliation
// engine and the conflict resolver, grounded on the teacher's
// pkg/filesystem/atomic.go.
package fsutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const temporaryNamePrefix = ".tra-tmp-"

// WriteFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename, so that readers (and the watcher) never
// observe a partially-written file.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	temporary, err := os.CreateTemp(dir, temporaryNamePrefix)
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}
	name := temporary.Name()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(name)
		return errors.Wrap(err, "unable to write temporary file")
	}
	if err := temporary.Close(); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "unable to close temporary file")
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "unable to set file permissions")
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return errors.Wrap(err, "unable to rename temporary file into place")
	}
	return nil
}

// ReadFileOrEmpty reads path's contents, returning an empty slice rather
// than an error if the file does not exist (spec.md §4.5's delta protocol:
// "L reads current file bytes (empty if absent)").
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %q", path)
	}
	return data, nil
}
