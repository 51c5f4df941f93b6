package tree

// Lookup descends from n along walk, a sequence of child names, returning
// the node at the end of the walk if every intermediate name resolves to an
// existing child entry (present or tombstoned — Lookup does not filter by
// status). It locks and unlocks each node in turn rather than holding locks
// along the whole path, since it performs no mutation.
func (n *Node) Lookup(walk []string) (*Node, bool) {
	node, _, ok := n.LookupDeepest(walk)
	return node, ok
}

// LookupDeepest descends from n along walk the same way Lookup does, but on
// a miss also returns the deepest node actually reached — the nearest
// existing ancestor of the path walk names. On a full match, that ancestor
// is the target node itself.
func (n *Node) LookupDeepest(walk []string) (node *Node, ancestor *Node, ok bool) {
	current := n
	for _, name := range walk {
		current.RLock()
		child, found := current.children[name]
		current.RUnlock()
		if !found {
			return nil, current, false
		}
		current = child
	}
	return current, current, true
}
