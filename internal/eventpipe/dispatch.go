package eventpipe

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
)

// Dispatcher applies ModOps to the replicated tree. It owns the pieces C4
// needs direct access to: the owning replica's id (for stamping timestamps)
// and a Scanner for picking up newly-created directories.
type Dispatcher struct {
	Replica  int32
	Scanner  *tree.Scanner
	Registry *watch.Registry
}

// HandleModify recurses from node down walk, mutating the leaf parent
// according to op (spec.md §4.4). walk names ancestor directories strictly
// between node and the parent that directly holds the affected entry; op.Name
// is that entry's own name.
func (d *Dispatcher) HandleModify(node *tree.Node, walk []string, op ModOp) error {
	if len(walk) > 0 {
		name := walk[0]

		node.Lock()
		child, ok := node.ChildLocked(name)
		if !ok {
			child = tree.NewTombstone(filepath.Join(node.Path(), name), name, node.SyncTimeLocked())
			node.PutChildLocked(name, child)
		}
		node.Unlock()

		if err := d.HandleModify(child, walk[1:], op); err != nil {
			return err
		}

		node.Lock()
		node.RollupLocked()
		node.Unlock()
		return nil
	}

	node.Lock()
	defer node.Unlock()

	switch op.Kind {
	case OpCreate:
		return d.applyCreateLocked(node, op)
	case OpModify:
		return d.applyModifyLocked(node, op)
	case OpDelete:
		return d.applyDeleteLocked(node, op)
	case OpMovedFrom:
		return d.applyMovedFromLocked(node, op)
	default:
		return nil
	}
}

// applyCreateLocked handles both Create and MovedTo. Caller must hold
// node.Lock (node is the parent directory). An entry matching the scanner's
// ignore patterns is never materialized into the tree at all.
func (d *Dispatcher) applyCreateLocked(node *tree.Node, op ModOp) error {
	if d.Scanner.Ignored(node.Path(), op.Name, op.IsDir) {
		return nil
	}

	createTime := vclock.Singleton{Replica: d.Replica, Time: op.Time}
	stamp := vclock.Lift(d.Replica, op.Time)

	childPath := filepath.Join(node.Path(), op.Name)
	child := tree.NewExist(childPath, op.Name, op.IsDir, createTime, stamp)
	node.PutChildLocked(op.Name, child)

	if op.IsDir {
		if err := d.Scanner.Scan(child, op.Time); err != nil {
			return err
		}
	}

	node.BumpModTimeLocked(d.Replica, op.Time)
	return nil
}

// applyModifyLocked bumps both mod_time and sync_time on the named child.
// Caller must hold node.Lock.
func (d *Dispatcher) applyModifyLocked(node *tree.Node, op ModOp) error {
	child, ok := node.ChildLocked(op.Name)
	if !ok {
		// A Write event without a prior Create (e.g. an editor's
		// write-then-rename save pattern racing the initial scan).
		// Treat it the same as a fresh creation.
		return d.applyCreateLocked(node, op)
	}

	child.Lock()
	child.BumpModTimeLocked(d.Replica, op.Time)
	child.BumpSyncTimeLocked(d.Replica, op.Time)
	child.Unlock()

	node.BumpModTimeLocked(d.Replica, op.Time)
	return nil
}

// applyDeleteLocked tombstones the named child. Caller must hold node.Lock.
//
// The filesystem itself refuses to rmdir a non-empty directory, so a Delete
// event for a child the tree still has Exist grandchildren under means the
// tree's view of that subtree is out of sync with what the OS actually did
// (spec.md §7's invariant violation, resolved per the original source's
// delete_rm: fail loudly rather than silently tombstone live descendants).
func (d *Dispatcher) applyDeleteLocked(node *tree.Node, op ModOp) error {
	child, ok := node.ChildLocked(op.Name)
	if !ok {
		child = tree.NewTombstone(filepath.Join(node.Path(), op.Name), op.Name, node.SyncTimeLocked())
		node.PutChildLocked(op.Name, child)
	} else if hasExistChild(child) {
		return errors.Errorf("delete of non-empty directory %q", child.Path())
	}

	d.tombstoneOneLocked(child, op.Time)

	node.BumpModTimeLocked(d.Replica, op.Time)
	node.BumpSyncTimeLocked(d.Replica, op.Time)
	return nil
}

// tombstoneOneLocked marks child itself Deleted and detaches its watch,
// without inspecting its children — the non-empty-directory guard belongs to
// callers for whom a live descendant is unexpected (applyDeleteLocked), not
// to callers for whom it's routine (a rename of a non-empty directory).
func (d *Dispatcher) tombstoneOneLocked(child *tree.Node, opTime uint64) {
	child.Lock()
	if handle := child.WatchLocked(); handle != watch.None {
		d.Registry.Remove(handle)
		child.ClearWatchLocked()
	}
	child.SetStatusLocked(tree.StatusDeleted)
	child.BumpModTimeLocked(d.Replica, opTime)
	child.BumpSyncTimeLocked(d.Replica, opTime)
	child.Unlock()
}

// hasExistChild reports whether n has any direct child still in StatusExist.
func hasExistChild(n *tree.Node) bool {
	n.RLock()
	defer n.RUnlock()
	for _, name := range n.ChildNamesLocked() {
		if c, ok := n.ChildLocked(name); ok {
			c.RLock()
			exist := c.StatusLocked() == tree.StatusExist
			c.RUnlock()
			if exist {
				return true
			}
		}
	}
	return false
}

// applyMovedFromLocked behaves like applyDeleteLocked for the named child
// but also recursively tombstones every descendant and detaches every
// descendant watch, since fsnotify/inotify does not reap watches on rename.
// Unlike applyDeleteLocked it does not reject a non-empty directory: renaming
// a non-empty directory is ordinary OS behavior, not a tree/filesystem
// divergence. Caller must hold node.Lock.
func (d *Dispatcher) applyMovedFromLocked(node *tree.Node, op ModOp) error {
	child, ok := node.ChildLocked(op.Name)
	if !ok {
		child = tree.NewTombstone(filepath.Join(node.Path(), op.Name), op.Name, node.SyncTimeLocked())
		node.PutChildLocked(op.Name, child)
	}

	d.tombstoneOneLocked(child, op.Time)
	d.tombstoneSubtree(child)

	node.BumpModTimeLocked(d.Replica, op.Time)
	node.BumpSyncTimeLocked(d.Replica, op.Time)
	return nil
}

// tombstoneSubtree recursively marks every still-Exist descendant of n as
// Deleted and detaches its watch, without otherwise disturbing its
// timestamps (the invariant mod_time.leq(sync_time) already held before the
// move, and deletion never needs to raise mod_time on its own).
func (d *Dispatcher) tombstoneSubtree(n *tree.Node) {
	n.Lock()
	names := n.ChildNamesLocked()
	var children []*tree.Node
	for _, name := range names {
		if c, ok := n.ChildLocked(name); ok {
			children = append(children, c)
		}
	}
	if n.StatusLocked() == tree.StatusExist {
		if handle := n.WatchLocked(); handle != watch.None {
			d.Registry.Remove(handle)
			n.ClearWatchLocked()
		}
		n.SetStatusLocked(tree.StatusDeleted)
	}
	n.Unlock()

	for _, c := range children {
		d.tombstoneSubtree(c)
	}
}
