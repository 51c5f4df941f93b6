package tree

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/ignore"
	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
)

// Scanner performs the recursive filesystem walk backing Node.Scan. It needs
// access to the watch registry (to register watches on every directory it
// discovers) and the owning replica's id (to stamp singleton timestamps).
type Scanner struct {
	Replica  int32
	Registry *watch.Registry
	// Base is the replica's home directory, used only to compute the
	// replica-relative path Ignore matches against. A zero value disables
	// ignore-relative-path computation (Ignore is then never consulted).
	Base string
	// Ignore, if non-nil, excludes matching entries from the tree entirely:
	// they are never scanned, never watched, and never appear as children.
	Ignore *ignore.Matcher
}

// Scan recursively walks the actual directory at n.path, marking n and every
// entry beneath it Exist with mod_time and sync_time set to the singleton
// (replica, time). Every entry beneath n also gets that singleton as its
// create_time; n keeps its own create_time, so the base node's stays zero.
// Child nodes already in the tree are reused (and restamped) rather than
// replaced, and children no longer on disk are tombstoned. It registers a watch
// on every directory it encounters, including n itself if n is a directory
// that isn't already watched. Scan is used for the replica's startup walk
// and whenever the event pipeline discovers a new directory via Create or
// MovedTo (spec.md §4.2, §4.4).
//
// Symlinks are skipped: spec.md's boundary behaviors restrict operation to
// regular files and directories.
func (s *Scanner) Scan(n *Node, time uint64) error {
	n.Lock()
	defer n.Unlock()
	return s.scanLocked(n, time)
}

// scanLocked performs the walk assuming the caller already holds n's write
// lock. It recurses into each child while holding that child's own lock.
func (s *Scanner) scanLocked(n *Node, time uint64) error {
	info, err := os.Lstat(n.path)
	if err != nil {
		return errors.Wrapf(err, "unable to stat %q", n.path)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return errors.Errorf("refusing to scan symbolic link %q", n.path)
	}

	singleton := vclock.Singleton{Replica: s.Replica, Time: time}
	stamp := vclock.Lift(s.Replica, time)

	n.status = StatusExist
	n.modTime = stamp.Clone()
	n.syncTime = stamp.Clone()

	if !info.IsDir() {
		n.isDir = false
		n.children = nil
		return nil
	}

	n.isDir = true
	if n.children == nil {
		n.children = make(map[string]*Node)
	}

	if n.watchHandle == watch.None {
		handle, err := s.Registry.Add(n.path, true)
		if err != nil {
			return errors.Wrapf(err, "unable to watch %q", n.path)
		}
		n.watchHandle = handle
	}

	entries, err := os.ReadDir(n.path)
	if err != nil {
		return errors.Wrapf(err, "unable to list directory %q", n.path)
	}

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		seen[name] = true

		childInfo, err := entry.Info()
		if err != nil {
			return errors.Wrapf(err, "unable to stat %q", filepath.Join(n.path, name))
		}
		if childInfo.Mode()&os.ModeSymlink != 0 {
			continue
		}
		if s.Ignored(n.path, name, childInfo.IsDir()) {
			continue
		}

		child, exists := n.children[name]
		if !exists {
			child = &Node{path: filepath.Join(n.path, name), name: name}
			n.children[name] = child
		}
		child.Lock()
		child.createTime = singleton
		err = s.scanLocked(child, time)
		child.Unlock()
		if err != nil {
			return err
		}
	}

	// Anything previously present but no longer on disk was removed between
	// scans; tombstone it so sync_time/mod_time history is retained.
	for name, child := range n.children {
		if seen[name] {
			continue
		}
		child.Lock()
		if child.status == StatusExist {
			if child.watchHandle != watch.None {
				s.Registry.Remove(child.watchHandle)
				child.watchHandle = watch.None
			}
			child.status = StatusDeleted
			child.BumpSyncTimeLocked(s.Replica, time)
			child.modTime = vclock.New()
		}
		child.Unlock()
	}

	return nil
}

// Ignored reports whether the entry named name inside parentPath should be
// excluded from the tree, per s.Ignore evaluated against its path relative
// to s.Base. Exported so the event pipeline can apply the same exclusion to
// entries it discovers via filesystem events rather than a scan.
func (s *Scanner) Ignored(parentPath, name string, isDir bool) bool {
	if s.Ignore == nil || s.Base == "" {
		return false
	}
	rel, err := filepath.Rel(s.Base, filepath.Join(parentPath, name))
	if err != nil {
		return false
	}
	return s.Ignore.Ignored(filepath.ToSlash(rel), isDir)
}
