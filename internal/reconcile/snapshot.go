package reconcile

import (
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/vclock"
)

// localSnapshot is a consistent point-in-time read of a node's decision-table
// fields, taken under the node's read lock and then used without holding
// any lock across the outgoing Query RPC (spec.md §5 forbids holding node
// locks across I/O or RPC calls).
type localSnapshot struct {
	status     tree.Status
	isDir      bool
	createTime vclock.Singleton
	modTime    vclock.Clock
	syncTime   vclock.Clock
}

func snapshotLocked(n *tree.Node) localSnapshot {
	return localSnapshot{
		status:     n.StatusLocked(),
		isDir:      n.IsDirLocked(),
		createTime: n.CreateTimeLocked(),
		modTime:    n.ModTimeLocked(),
		syncTime:   n.SyncTimeLocked(),
	}
}

func (s localSnapshot) deleted() bool { return s.status == tree.StatusDeleted }

// remoteModTime converts a QueryRes's wire-format mod_time map into a Clock.
func remoteModTime(res *peerrpc.QueryRes) vclock.Clock {
	return vclock.Clock(res.ModTime)
}

// remoteSyncTime converts a QueryRes's wire-format sync_time map into a Clock.
func remoteSyncTime(res *peerrpc.QueryRes) vclock.Clock {
	return vclock.Clock(res.SyncTime)
}

// remoteCreateTime reconstructs the originating creation singleton from a
// QueryRes.
func remoteCreateTime(res *peerrpc.QueryRes) vclock.Singleton {
	return vclock.Singleton{Replica: res.CreateID, Time: res.CreateTime}
}
