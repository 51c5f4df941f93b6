package tree

import (
	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/watch"
)

// CheckInvariants walks the subtree rooted at n and verifies the quantified
// invariants from spec.md §8: mod_time <= sync_time everywhere, directory
// mod_time dominates (is >=) the join of its children's mod_time, and
// deleted nodes carry no live watch. Equality with the children's join is
// not checked, since RollupLocked also keeps a directory's own contributions. It is exercised by tests, not by production code
// paths (spec.md's checker.rs counterpart is development-time tooling, not
// a runtime guard).
func (n *Node) CheckInvariants() error {
	n.RLock()
	defer n.RUnlock()

	if !n.modTime.Leq(n.syncTime) {
		return errors.Errorf("%s: mod_time %s not <= sync_time %s", n.path, n.modTime, n.syncTime)
	}
	if n.status == StatusDeleted && n.watchHandle != watch.None {
		return errors.Errorf("%s: deleted node still holds watch %s", n.path, n.watchHandle)
	}

	if n.isDir {
		expected := n.modTime
		rolled := n.modTime.Clone()
		for _, child := range n.children {
			if err := child.CheckInvariants(); err != nil {
				return err
			}
			child.RLock()
			childModTime := child.modTime
			child.RUnlock()
			rolled = rolled.Join(childModTime)
		}
		if !rolled.Leq(expected) {
			return errors.Errorf("%s: mod_time %s does not dominate children's joined mod_time %s", n.path, expected, rolled)
		}
	}

	return nil
}
