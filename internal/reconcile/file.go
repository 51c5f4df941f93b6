package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/banner"
	"github.com/tra-project/tra/internal/deltacodec"
	"github.com/tra-project/tra/internal/fsutil"
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/vclock"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/grpcutil"
)

// syncFile implements the file case of the sync decision table (spec.md
// §4.5): the three (local, remote) existence combinations, each with its own
// overwrite/create/delete action paired with a skip or conflict fallback.
// parentWatch is the enclosing directory's watch handle, frozen for every
// write this function performs (a plain file carries no watch of its own).
func (e *Engine) syncFile(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, remote *peerrpc.QueryRes, local localSnapshot, opTime uint64) (tree.Status, error) {
	switch {
	case !local.deleted() && !remote.Deleted:
		switch {
		case local.modTime.Leq(remoteSyncTime(remote)):
			return e.overwriteFile(ctx, node, parentWatch, client, relPath, remote, opTime)
		case remoteModTime(remote).Leq(local.syncTime):
			// Rule 2 already short-circuits this case in syncNode; kept here
			// defensively in case a future caller reaches syncFile directly.
			e.Banner.Report(banner.Skip, relPath, 0, nil)
			return local.status, nil
		default:
			return e.conflictFile(ctx, node, parentWatch, client, relPath)
		}

	case !local.deleted() && remote.Deleted:
		rsync := remoteSyncTime(remote)
		switch {
		case local.createTime.LeqVec(rsync) && local.modTime.Leq(rsync):
			return e.deleteFile(node, parentWatch, relPath, remote, opTime)
		case local.createTime.LeqVec(rsync):
			return e.conflictFile(ctx, node, parentWatch, client, relPath)
		default:
			// Local holds a file the remote never learned about before
			// deleting its own; independent histories, leave local alone.
			e.Banner.Report(banner.Skip, relPath, 0, nil)
			return local.status, nil
		}

	default: // local.deleted() && !remote.Deleted
		rct := remoteCreateTime(remote)
		switch {
		case rct.LeqVec(local.syncTime) && remoteModTime(remote).Leq(local.syncTime):
			e.Banner.Report(banner.Skip, relPath, 0, nil)
			return local.status, nil
		case rct.LeqVec(local.syncTime):
			return e.conflictFile(ctx, node, parentWatch, client, relPath)
		default:
			return e.createFile(ctx, node, parentWatch, client, relPath, remote, opTime)
		}
	}
}

// fetchRemoteBytes runs the delta protocol (spec.md §4.5, steps 1-4) against
// the peer's current copy of relPath, given the bytes currently on disk
// locally (nil/empty if the file doesn't exist locally yet).
func fetchRemoteBytes(ctx context.Context, client *peerrpc.PeerClient, relPath string, localBytes []byte) ([]byte, error) {
	sig := deltacodec.ComputeSignature(localBytes, deltacodec.DefaultBlockSize)
	sigBytes, err := json.Marshal(sig)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode signature")
	}

	patch, err := client.FetchPatch(ctx, &peerrpc.FetchPatchReq{PathRel: relPath, Sig: sigBytes})
	if err != nil {
		return nil, errors.Wrapf(grpcutil.PeelAwayRPCErrorLayer(err), "unable to fetch patch for %q", relPath)
	}

	var delta deltacodec.Delta
	if err := json.Unmarshal(patch.Delta, &delta); err != nil {
		return nil, errors.Wrap(err, "unable to decode delta")
	}

	remoteBytes, err := deltacodec.ApplyPatch(localBytes, sig.BlockSize, delta)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to apply patch for %q", relPath)
	}
	return remoteBytes, nil
}

// overwriteFile pulls the peer's current bytes and replaces node's on-disk
// content with them, joining in the remote's timestamps.
func (e *Engine) overwriteFile(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, remote *peerrpc.QueryRes, opTime uint64) (tree.Status, error) {
	localBytes, err := fsutil.ReadFileOrEmpty(node.Path())
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %q", node.Path())
	}

	remoteBytes, err := fetchRemoteBytes(ctx, client, relPath, localBytes)
	if err != nil {
		return "", err
	}

	if err := e.Registry.WithFreeze(parentWatch, func() error {
		return fsutil.WriteFileAtomic(node.Path(), remoteBytes, 0o644)
	}); err != nil {
		e.Banner.Report(banner.Overwrite, relPath, 0, err)
		return "", errors.Wrapf(err, "unable to write %q", node.Path())
	}
	e.Banner.Report(banner.Overwrite, relPath, int64(len(remoteBytes)), nil)

	node.Lock()
	defer node.Unlock()
	node.JoinModTimeLocked(remoteModTime(remote))
	node.JoinSyncTimeLocked(remoteSyncTime(remote).Join(vclock.Lift(e.Replica, opTime)))
	node.SetStatusLocked(tree.StatusExist)
	return tree.StatusExist, nil
}

// createFile materializes a file the remote has and the local replica never
// saw, adopting the remote's create_time so the originating creator survives
// across replicas (spec.md glossary, create_time).
func (e *Engine) createFile(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string, remote *peerrpc.QueryRes, opTime uint64) (tree.Status, error) {
	remoteBytes, err := fetchRemoteBytes(ctx, client, relPath, nil)
	if err != nil {
		return "", err
	}

	if err := e.Registry.WithFreeze(parentWatch, func() error {
		if err := ensureDirectory(filepath.Dir(node.Path())); err != nil {
			return err
		}
		return fsutil.WriteFileAtomic(node.Path(), remoteBytes, 0o644)
	}); err != nil {
		e.Banner.Report(banner.Create, relPath, 0, err)
		return "", errors.Wrapf(err, "unable to create %q", node.Path())
	}
	e.Banner.Report(banner.Create, relPath, int64(len(remoteBytes)), nil)

	node.Lock()
	defer node.Unlock()
	node.SetCreateTimeLocked(remoteCreateTime(remote))
	node.SetIsDirLocked(false)
	node.JoinModTimeLocked(remoteModTime(remote))
	node.JoinSyncTimeLocked(remoteSyncTime(remote).Join(vclock.Lift(e.Replica, opTime)))
	node.SetStatusLocked(tree.StatusExist)
	return tree.StatusExist, nil
}

// deleteFile removes node's on-disk file, flipping it to a tombstone. Per
// spec.md §9, mod_time is dropped once the deletion is fully covered by
// sync_time — it no longer serves a purpose once every replica that could
// contest the deletion already agrees with it.
func (e *Engine) deleteFile(node *tree.Node, parentWatch watch.Handle, relPath string, remote *peerrpc.QueryRes, opTime uint64) (tree.Status, error) {
	if err := e.Registry.WithFreeze(parentWatch, func() error {
		err := os.Remove(node.Path())
		if err != nil && os.IsNotExist(err) {
			return nil
		}
		return err
	}); err != nil {
		e.Banner.Report(banner.Delete, relPath, 0, err)
		return "", errors.Wrapf(err, "unable to remove %q", node.Path())
	}
	e.Banner.Report(banner.Delete, relPath, 0, nil)

	node.Lock()
	defer node.Unlock()
	node.JoinSyncTimeLocked(remoteSyncTime(remote).Join(vclock.Lift(e.Replica, opTime)))
	if node.ModTimeLocked().Leq(node.SyncTimeLocked()) {
		node.ClearModTimeLocked()
	}
	node.SetStatusLocked(tree.StatusDeleted)
	return tree.StatusDeleted, nil
}

// conflictFile computes the bytes local would have received under an
// overwrite and hands both copies to the conflict resolver (spec.md §4.7).
// Neither mod_time nor sync_time is advanced: the conflict is not resolved
// by this call, only surfaced, so the next real edit (local, from the
// resolver's write, or a later sync) flows through the decision table again.
func (e *Engine) conflictFile(ctx context.Context, node *tree.Node, parentWatch watch.Handle, client *peerrpc.PeerClient, relPath string) (tree.Status, error) {
	localBytes, err := fsutil.ReadFileOrEmpty(node.Path())
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %q", node.Path())
	}

	remoteBytes, err := fetchRemoteBytes(ctx, client, relPath, localBytes)
	if err != nil {
		return "", err
	}

	node.RLock()
	status := node.StatusLocked()
	node.RUnlock()

	if err := e.Conflict.Resolve(node.Path(), parentWatch, localBytes, remoteBytes); err != nil {
		e.Banner.Report(banner.Conflict, relPath, 0, err)
		return "", errors.Wrapf(err, "unable to resolve conflict on %q", relPath)
	}
	e.Banner.Report(banner.Conflict, relPath, 0, nil)

	return status, nil
}
