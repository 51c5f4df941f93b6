// Package reconcile implements the Reconciliation Engine (spec.md C5): the
// recursive remote-to-local synchronization algorithm, including the sync
// decision table, tmp-node synthesis, and the watch-freeze discipline
// around every filesystem write a sync performs.
package reconcile

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/banner"
	"github.com/tra-project/tra/internal/conflict"
	"github.com/tra-project/tra/internal/counter"
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/grpcutil"
	"github.com/tra-project/tra/pkg/logging"
)

// Engine drives handle_sync for one replica. It is invoked by the Peer
// service's RequestSync handler (spec.md §4.6) with the nominated source
// replica's address.
type Engine struct {
	Replica  int32
	Base     *tree.Node
	Registry *watch.Registry
	Counter  *counter.Counter
	Conflict *conflict.Resolver
	Logger   *logging.Logger
	// Banner is optional; when set, every leaf sync decision is reported
	// through it (spec.md §7). A nil Banner is a silent no-op.
	Banner *banner.Printer
}

// HandleSync executes handle_sync(root_op, walk) against client for the
// given home-prefix-relative path (spec.md §4.5). It is the engine's single
// external entry point.
func (e *Engine) HandleSync(ctx context.Context, client *peerrpc.PeerClient, relPath string) (tree.Status, error) {
	opTime := e.Counter.Next()
	walk := splitRelPath(relPath)
	return e.descendToTarget(ctx, e.Base, watch.None, client, relPath, walk, opTime)
}

// splitRelPath turns a "/"-separated relative path into its name
// components, treating "" and "." as the base node itself.
func splitRelPath(relPath string) []string {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" || relPath == "." {
		return nil
	}
	return strings.Split(relPath, "/")
}

// descendToTarget walks from node toward the sync target named by the
// remaining walk components, synthesizing a tmp node for any name missing
// locally (spec.md §3, "Transient (tmp) nodes"). Once walk is empty, node is
// the target itself and the decision table (syncNode) applies.
//
// parentWatch is node's own parent's watch handle, used only if this call
// ends up materializing node itself.
func (e *Engine) descendToTarget(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, walk []string, opTime uint64) (tree.Status, error) {
	if len(walk) == 0 {
		return e.syncNode(ctx, node, parentWatch, client, relPath, opTime)
	}

	name := walk[0]
	node.Lock()
	child, existed := node.ChildLocked(name)
	if !existed {
		child = tree.NewTombstone(filepath.Join(node.Path(), name), name, node.SyncTimeLocked())
	}
	nodeWatch := node.WatchLocked()
	node.Unlock()

	childStatus, err := e.descendToTarget(ctx, child, nodeWatch, client, relPath, walk[1:], opTime)
	if err != nil {
		return "", err
	}

	node.Lock()
	if childStatus == tree.StatusExist {
		node.PutChildLocked(name, child)
	}
	node.RollupLocked()
	if node.StatusLocked() == tree.StatusDeleted && childStatus == tree.StatusExist {
		if err := e.Registry.WithFreeze(parentWatch, func() error {
			return ensureDirectory(node.Path())
		}); err != nil {
			node.Unlock()
			return "", errors.Wrapf(err, "unable to materialize directory %q", node.Path())
		}
		node.EnsureChildrenLocked()
		node.SetIsDirLocked(true)
		if node.WatchLocked() == watch.None {
			handle, err := e.Registry.Add(node.Path(), true)
			if err != nil {
				node.Unlock()
				return "", errors.Wrapf(err, "unable to watch %q", node.Path())
			}
			node.SetWatchLocked(handle)
		}
		node.SetStatusLocked(tree.StatusExist)
	}
	finalStatus := node.StatusLocked()
	node.Unlock()
	return finalStatus, nil
}

// syncNode applies the sync decision table (spec.md §4.5) to node, which is
// positioned exactly at relPath. parentWatch is node's own parent's watch,
// threaded through for any materialize/delete bookkeeping this call
// performs on node itself.
func (e *Engine) syncNode(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, opTime uint64) (tree.Status, error) {
	node.RLock()
	local := snapshotLocked(node)
	node.RUnlock()

	remote, err := client.Query(ctx, &peerrpc.QueryReq{PathRel: relPath})
	if err != nil {
		return "", errors.Wrapf(grpcutil.PeelAwayRPCErrorLayer(err), "unable to query remote for %q", relPath)
	}

	// Rule 1: both sides deleted.
	if local.deleted() && remote.Deleted {
		return tree.StatusDeleted, nil
	}

	// Rule 2: remote has nothing local doesn't already know.
	if !remote.Deleted && remoteModTime(remote).Leq(local.syncTime) {
		return local.status, nil
	}

	// Rule 3: type mismatch between two existing entries.
	if !local.deleted() && !remote.Deleted && local.isDir != remote.IsDir {
		return local.status, nil
	}

	isDir := remote.IsDir
	if !local.deleted() {
		isDir = local.isDir
	}

	if isDir {
		return e.syncDirectory(ctx, node, parentWatch, client, relPath, remote, opTime)
	}
	return e.syncFile(ctx, node, parentWatch, client, relPath, remote, local, opTime)
}

// syncDirectory implements rule 5: recurse into the union of child names,
// then roll up and apply materialize/delete-empty bookkeeping once every
// child has completed.
func (e *Engine) syncDirectory(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, remote *peerrpc.QueryRes, opTime uint64) (tree.Status, error) {
	node.RLock()
	names := node.ChildNamesLocked()
	nodeWatch := node.WatchLocked()
	node.RUnlock()

	union := make(map[string]struct{}, len(names)+len(remote.Children))
	for _, n := range names {
		union[n] = struct{}{}
	}
	for _, n := range remote.Children {
		union[n] = struct{}{}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for name := range union {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			childRelPath := joinRel(relPath, name)

			node.Lock()
			child, existed := node.ChildLocked(name)
			if !existed {
				child = tree.NewTombstone(filepath.Join(node.Path(), name), name, node.SyncTimeLocked())
			}
			node.Unlock()

			childStatus, err := e.syncNode(ctx, child, nodeWatch, client, childRelPath, opTime)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = errors.Wrapf(err, "syncing %q", childRelPath)
				}
				mu.Unlock()
				return
			}

			node.Lock()
			if childStatus == tree.StatusExist {
				node.PutChildLocked(name, child)
			}
			node.Unlock()
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return "", firstErr
	}

	node.Lock()
	defer node.Unlock()

	node.JoinSyncTimeLocked(remoteSyncTime(remote).Join(vclock.Lift(e.Replica, opTime)))
	node.RollupLocked()

	anyChildExist := false
	for _, name := range node.ChildNamesLocked() {
		if child, ok := node.ChildLocked(name); ok {
			child.RLock()
			exist := child.StatusLocked() == tree.StatusExist
			child.RUnlock()
			if exist {
				anyChildExist = true
				break
			}
		}
	}

	switch {
	case remote.Deleted && node.StatusLocked() == tree.StatusExist && !anyChildExist && node.ModTimeLocked().Leq(node.SyncTimeLocked()):
		if err := e.Registry.WithFreeze(parentWatch, func() error {
			return removeEmptyDirectory(node.Path())
		}); err != nil {
			e.Banner.Report(banner.Delete, relPath, 0, err)
			return "", errors.Wrapf(err, "unable to remove empty directory %q", node.Path())
		}
		if handle := node.WatchLocked(); handle != watch.None {
			e.Registry.Remove(handle)
			node.ClearWatchLocked()
		}
		node.SetStatusLocked(tree.StatusDeleted)
		e.Banner.Report(banner.Delete, relPath, 0, nil)
	case node.StatusLocked() == tree.StatusDeleted && (anyChildExist || !remote.Deleted):
		if err := e.Registry.WithFreeze(parentWatch, func() error {
			return ensureDirectory(node.Path())
		}); err != nil {
			e.Banner.Report(banner.Create, relPath, 0, err)
			return "", errors.Wrapf(err, "unable to materialize directory %q", node.Path())
		}
		node.EnsureChildrenLocked()
		node.SetIsDirLocked(true)
		if node.WatchLocked() == watch.None {
			handle, err := e.Registry.Add(node.Path(), true)
			if err != nil {
				e.Banner.Report(banner.Create, relPath, 0, err)
				return "", errors.Wrapf(err, "unable to watch %q", node.Path())
			}
			node.SetWatchLocked(handle)
		}
		node.SetStatusLocked(tree.StatusExist)
		e.Banner.Report(banner.Create, relPath, 0, nil)
	}

	return node.StatusLocked(), nil
}

// joinRel joins a base "/"-separated relative path with one more name
// component, treating "" as the root.
func joinRel(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}
