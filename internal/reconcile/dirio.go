package reconcile

import (
	"os"

	"github.com/pkg/errors"
)

// ensureDirectory creates path and any missing parents, tolerating an
// already-existing directory.
func ensureDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create directory %q", path)
	}
	return nil
}

// removeEmptyDirectory removes path, which the caller has already verified
// has no Exist children in the tree. A genuinely non-empty directory here
// indicates an invariant violation (spec.md §7): an on-disk entry the tree
// never learned about.
func removeEmptyDirectory(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "unable to remove directory %q", path)
	}
	return nil
}
