package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

func newTestRegistry(t *testing.T) *watch.Registry {
	t.Helper()
	r, err := watch.New(logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to create watch registry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestScanPopulatesChildren(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := newTestRegistry(t)
	scanner := &Scanner{Replica: 1, Registry: registry}

	base := NewBase(root)
	if err := scanner.Scan(base, 1); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	base.RLock()
	defer base.RUnlock()

	a, ok := base.ChildLocked("a.txt")
	if !ok {
		t.Fatal("expected a.txt to be scanned")
	}
	a.RLock()
	if a.IsDirLocked() {
		t.Fatal("a.txt should not be a directory")
	}
	if a.CreateTimeLocked() != (vclock.Singleton{Replica: 1, Time: 1}) {
		t.Fatalf("unexpected create_time: %v", a.CreateTimeLocked())
	}
	a.RUnlock()

	sub, ok := base.ChildLocked("sub")
	if !ok {
		t.Fatal("expected sub to be scanned")
	}
	sub.RLock()
	if !sub.IsDirLocked() {
		t.Fatal("sub should be a directory")
	}
	if sub.WatchLocked() == watch.None {
		t.Fatal("expected sub to have a registered watch")
	}
	_, ok = sub.ChildLocked("b.txt")
	sub.RUnlock()
	if !ok {
		t.Fatal("expected sub/b.txt to be scanned")
	}

	if err := base.CheckInvariants(); err != nil {
		t.Fatalf("invariant violation after scan: %v", err)
	}
}

func TestScanTombstonesRemovedEntries(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "gone.txt")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := newTestRegistry(t)
	scanner := &Scanner{Replica: 1, Registry: registry}
	base := NewBase(root)
	if err := scanner.Scan(base, 1); err != nil {
		t.Fatal(err)
	}

	if err := os.Remove(filePath); err != nil {
		t.Fatal(err)
	}
	if err := scanner.Scan(base, 2); err != nil {
		t.Fatal(err)
	}

	base.RLock()
	gone, ok := base.ChildLocked("gone.txt")
	base.RUnlock()
	if !ok {
		t.Fatal("tombstone should be retained")
	}
	gone.RLock()
	defer gone.RUnlock()
	if gone.StatusLocked() != StatusDeleted {
		t.Fatal("expected gone.txt to be tombstoned")
	}
	if gone.WatchLocked() != watch.None {
		t.Fatal("tombstone must not retain a watch")
	}
}

func TestLookupDescendsByName(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "a"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a", "b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := newTestRegistry(t)
	scanner := &Scanner{Replica: 1, Registry: registry}
	base := NewBase(root)
	if err := scanner.Scan(base, 1); err != nil {
		t.Fatal(err)
	}

	found, ok := base.Lookup([]string{"a", "b.txt"})
	if !ok {
		t.Fatal("expected to find a/b.txt")
	}
	if found.Name() != "b.txt" {
		t.Fatalf("unexpected node: %s", found.Name())
	}

	if _, ok := base.Lookup([]string{"missing"}); ok {
		t.Fatal("expected lookup miss for nonexistent name")
	}
}

func TestRollupJoinsChildren(t *testing.T) {
	root := t.TempDir()
	parent := NewExist(root, "root", true, vclock.Zero, vclock.New())
	parent.children = make(map[string]*Node)

	childA := NewExist(filepath.Join(root, "a"), "a", false, vclock.Singleton{Replica: 1, Time: 1}, vclock.Lift(1, 3))
	childB := NewExist(filepath.Join(root, "b"), "b", false, vclock.Singleton{Replica: 2, Time: 1}, vclock.Lift(2, 5))
	parent.PutChildLocked("a", childA)
	parent.PutChildLocked("b", childB)

	parent.RollupLocked()

	mt := parent.ModTimeLocked()
	if mt.Get(1) != 3 || mt.Get(2) != 5 {
		t.Fatalf("unexpected rolled-up mod_time: %v", mt)
	}
}
