// Package tree implements the replicated tree (spec.md C2): the in-memory
// shadow of a replica's on-disk subtree, annotated with per-node vector-clock
// timestamps and a tombstone-retaining deletion model.
//
// Each Node carries its own reader-writer lock (spec.md §5, "per-node
// locking"). Callers that need several consistent reads or a read-then-write
// sequence must hold the lock explicitly via Lock/RLock and use the
// "...Locked" accessors; callers performing a single read may use the
// unlocked convenience accessors, which take the lock internally. Locks are
// acquired strictly top-down along a single walk from the base node and are
// never held across I/O or RPC calls — that discipline lives in the
// eventpipe and reconcile packages, which own the recursive algorithms that
// walk the tree.
package tree

import (
	"path/filepath"
	"sync"

	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
)

// Node is the in-memory shadow of one filesystem entry, present or
// tombstoned. See spec.md §3 for the full invariant list.
type Node struct {
	mu sync.RWMutex

	// path is the absolute local path. Immutable after construction.
	path string
	// name is the final path component. Immutable after construction.
	name string

	status     Status
	isDir      bool
	createTime vclock.Singleton
	modTime    vclock.Clock
	syncTime   vclock.Clock
	children   map[string]*Node
	watchHandle watch.Handle
}

// NewBase creates a replica's base node: an existing directory rooted at
// homePrefix, with the zero create_time (spec.md §3, "base node"). Its
// mod_time and sync_time start empty; startup scanning lifts them to
// (self_id, 1) once the initial scan completes (spec.md §6).
func NewBase(homePrefix string) *Node {
	return &Node{
		path:       homePrefix,
		name:       filepath.Base(homePrefix),
		status:     StatusExist,
		isDir:      true,
		createTime: vclock.Zero,
		modTime:    vclock.New(),
		syncTime:   vclock.New(),
		children:   make(map[string]*Node),
	}
}

// NewExist constructs a freshly-created, present node: the result of a local
// scan, a local Create/MovedTo event, or a sync that materializes a remote
// entry.
func NewExist(path, name string, isDir bool, createTime vclock.Singleton, modSyncTime vclock.Clock) *Node {
	n := &Node{
		path:       path,
		name:       name,
		status:     StatusExist,
		isDir:      isDir,
		createTime: createTime,
		modTime:    modSyncTime.Clone(),
		syncTime:   modSyncTime.Clone(),
	}
	if isDir {
		n.children = make(map[string]*Node)
	}
	return n
}

// NewTombstone constructs a transient ("tmp") Deleted node for a name that
// has no local child yet, inheriting the parent's sync_time (spec.md §3,
// "Transient (tmp) nodes"). The caller installs it into the parent's
// children map only if the node is subsequently promoted to Exist.
func NewTombstone(path, name string, inheritedSyncTime vclock.Clock) *Node {
	return &Node{
		path:     path,
		name:     name,
		status:   StatusDeleted,
		syncTime: inheritedSyncTime.Clone(),
		modTime:  vclock.New(),
	}
}

// Path returns the node's absolute path.
func (n *Node) Path() string { return n.path }

// Name returns the node's final path component.
func (n *Node) Name() string { return n.name }

// Lock acquires the node's write lock.
func (n *Node) Lock() { n.mu.Lock() }

// Unlock releases the node's write lock.
func (n *Node) Unlock() { n.mu.Unlock() }

// RLock acquires the node's read lock.
func (n *Node) RLock() { n.mu.RLock() }

// RUnlock releases the node's read lock.
func (n *Node) RUnlock() { n.mu.RUnlock() }

// StatusLocked returns the node's status. Caller must hold at least RLock.
func (n *Node) StatusLocked() Status { return n.status }

// IsDirLocked returns the node's directory hint. Caller must hold at least
// RLock.
func (n *Node) IsDirLocked() bool { return n.isDir }

// CreateTimeLocked returns the node's creation timestamp. Caller must hold
// at least RLock.
func (n *Node) CreateTimeLocked() vclock.Singleton { return n.createTime }

// ModTimeLocked returns a copy of the node's mod_time. Caller must hold at
// least RLock.
func (n *Node) ModTimeLocked() vclock.Clock { return n.modTime.Clone() }

// SyncTimeLocked returns a copy of the node's sync_time. Caller must hold at
// least RLock.
func (n *Node) SyncTimeLocked() vclock.Clock { return n.syncTime.Clone() }

// WatchLocked returns the node's watch handle, or watch.None. Caller must
// hold at least RLock.
func (n *Node) WatchLocked() watch.Handle { return n.watchHandle }

// ChildLocked returns the named child, if any. Caller must hold at least
// RLock.
func (n *Node) ChildLocked(name string) (*Node, bool) {
	child, ok := n.children[name]
	return child, ok
}

// ChildNamesLocked returns a snapshot of the directory's child names. Caller
// must hold at least RLock. The snapshot lets callers fan out over children
// without holding the parent's lock during recursion (spec.md §5).
func (n *Node) ChildNamesLocked() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	return names
}

// SetStatusLocked sets the node's status. Caller must hold Lock.
func (n *Node) SetStatusLocked(status Status) { n.status = status }

// SetIsDirLocked sets the node's directory hint. Caller must hold Lock.
func (n *Node) SetIsDirLocked(isDir bool) { n.isDir = isDir }

// SetCreateTimeLocked sets the node's creation timestamp. It is used only
// when promoting a tombstone into a fresh copy during sync, never to
// overwrite the create_time of an already-existing node. Caller must hold
// Lock.
func (n *Node) SetCreateTimeLocked(t vclock.Singleton) { n.createTime = t }

// BumpModTimeLocked advances the replica component of mod_time to t and
// mirrors spec.md's V.bump. Caller must hold Lock.
func (n *Node) BumpModTimeLocked(replica int32, t uint64) {
	if n.modTime == nil {
		n.modTime = vclock.New()
	}
	n.modTime.Bump(replica, t)
}

// BumpSyncTimeLocked advances the replica component of sync_time to t.
// Caller must hold Lock.
func (n *Node) BumpSyncTimeLocked(replica int32, t uint64) {
	if n.syncTime == nil {
		n.syncTime = vclock.New()
	}
	n.syncTime.Bump(replica, t)
}

// JoinSyncTimeLocked merges other into sync_time. Caller must hold Lock.
func (n *Node) JoinSyncTimeLocked(other vclock.Clock) {
	if n.syncTime == nil {
		n.syncTime = vclock.New()
	}
	n.syncTime.JoinInPlace(other)
}

// JoinModTimeLocked merges other into mod_time. Caller must hold Lock.
func (n *Node) JoinModTimeLocked(other vclock.Clock) {
	if n.modTime == nil {
		n.modTime = vclock.New()
	}
	n.modTime.JoinInPlace(other)
}

// ClearModTimeLocked drops mod_time entirely, used when a deletion has been
// fully replicated (spec.md §9, open question on sync_time/mod_time on
// deletion). Caller must hold Lock.
func (n *Node) ClearModTimeLocked() { n.modTime = vclock.New() }

// SetWatchLocked installs handle as the node's watch. It panics if the node
// already has a live watch, per spec.md §4.5's assertion that a previously
// Deleted node being materialized must not already carry a watch. Caller
// must hold Lock.
func (n *Node) SetWatchLocked(handle watch.Handle) {
	if n.watchHandle != watch.None && handle != watch.None {
		panic("attempted to install a watch on a node that already has one")
	}
	n.watchHandle = handle
}

// ClearWatchLocked removes the node's watch handle without deregistering it
// from the registry (callers are responsible for calling Registry.Remove).
// Caller must hold Lock.
func (n *Node) ClearWatchLocked() { n.watchHandle = watch.None }

// PutChildLocked installs child into the directory's children map under the
// given name, allocating the map if necessary. Caller must hold Lock.
func (n *Node) PutChildLocked(name string, child *Node) {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	n.children[name] = child
}

// EnsureChildrenLocked allocates the children map if it is nil, used when a
// tombstoned directory is materialized back to Exist. Caller must hold Lock.
func (n *Node) EnsureChildrenLocked() {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
}

// RollupLocked recomputes mod_time as the join of the node's own recorded
// mod_time (its direct contributions) and its children's mod_time, per
// spec.md's rollup rule. It is a no-op for non-directories. Caller must hold
// Lock, and should have already released any child locks.
func (n *Node) RollupLocked() {
	if !n.isDir {
		return
	}
	for _, child := range n.children {
		child.RLock()
		childModTime := child.modTime
		child.RUnlock()
		n.JoinModTimeLocked(childModTime)
	}
}
