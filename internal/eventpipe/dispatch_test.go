package eventpipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

func newDispatcher(t *testing.T, replica int32) (*Dispatcher, *tree.Node) {
	t.Helper()
	root := t.TempDir()
	registry, err := watch.New(logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to create registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	base := tree.NewBase(root)
	scanner := &tree.Scanner{Replica: replica, Registry: registry}
	if err := scanner.Scan(base, 1); err != nil {
		t.Fatalf("initial scan failed: %v", err)
	}

	return &Dispatcher{Replica: replica, Scanner: scanner, Registry: registry}, base
}

func TestApplyCreateAddsChild(t *testing.T) {
	d, base := newDispatcher(t, 1)

	op := ModOp{Kind: OpCreate, Time: 2, Name: "a.txt", IsDir: false}
	if err := d.HandleModify(base, nil, op); err != nil {
		t.Fatalf("HandleModify failed: %v", err)
	}

	base.RLock()
	child, ok := base.ChildLocked("a.txt")
	modTime := base.ModTimeLocked()
	base.RUnlock()
	if !ok {
		t.Fatal("expected a.txt to be created")
	}
	if modTime.Get(1) != 2 {
		t.Fatalf("expected parent mod_time bumped to 2, got %v", modTime)
	}
	child.RLock()
	defer child.RUnlock()
	if child.StatusLocked() != tree.StatusExist {
		t.Fatal("expected created child to be Exist")
	}
}

func TestApplyDeleteTombstones(t *testing.T) {
	d, base := newDispatcher(t, 1)
	if err := d.HandleModify(base, nil, ModOp{Kind: OpCreate, Time: 2, Name: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleModify(base, nil, ModOp{Kind: OpDelete, Time: 3, Name: "a.txt"}); err != nil {
		t.Fatal(err)
	}

	base.RLock()
	child, _ := base.ChildLocked("a.txt")
	base.RUnlock()
	child.RLock()
	defer child.RUnlock()
	if child.StatusLocked() != tree.StatusDeleted {
		t.Fatal("expected a.txt to be tombstoned")
	}
	if child.WatchLocked() != watch.None {
		t.Fatal("tombstone must not retain a watch")
	}
}

func TestApplyMovedFromTombstonesSubtree(t *testing.T) {
	d, base := newDispatcher(t, 1)
	// A directory Create scans the new directory, so it must exist on disk.
	if err := os.Mkdir(filepath.Join(base.Path(), "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleModify(base, nil, ModOp{Kind: OpCreate, Time: 2, Name: "dir", IsDir: true}); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleModify(base, []string{"dir"}, ModOp{Kind: OpCreate, Time: 3, Name: "inner.txt"}); err != nil {
		t.Fatal(err)
	}

	if err := d.HandleModify(base, nil, ModOp{Kind: OpMovedFrom, Time: 4, Name: "dir", IsDir: true}); err != nil {
		t.Fatal(err)
	}

	base.RLock()
	dir, _ := base.ChildLocked("dir")
	base.RUnlock()

	dir.RLock()
	status := dir.StatusLocked()
	inner, ok := dir.ChildLocked("inner.txt")
	dir.RUnlock()
	if status != tree.StatusDeleted {
		t.Fatal("expected dir to be tombstoned")
	}
	if !ok {
		t.Fatal("expected inner.txt to still be present as a tombstone")
	}
	inner.RLock()
	defer inner.RUnlock()
	if inner.StatusLocked() != tree.StatusDeleted {
		t.Fatal("expected descendant to be tombstoned on move-from")
	}
	if inner.WatchLocked() != watch.None {
		t.Fatal("descendant watch must be detached")
	}
}

func TestApplyModifyBumpsBothClocks(t *testing.T) {
	d, base := newDispatcher(t, 1)
	if err := d.HandleModify(base, nil, ModOp{Kind: OpCreate, Time: 2, Name: "a.txt"}); err != nil {
		t.Fatal(err)
	}
	if err := d.HandleModify(base, nil, ModOp{Kind: OpModify, Time: 3, Name: "a.txt"}); err != nil {
		t.Fatal(err)
	}

	base.RLock()
	child, _ := base.ChildLocked("a.txt")
	base.RUnlock()
	child.RLock()
	defer child.RUnlock()
	if child.ModTimeLocked().Get(1) != 3 || child.SyncTimeLocked().Get(1) != 3 {
		t.Fatal("expected both mod_time and sync_time bumped on modify")
	}
}
