package tree

import (
	"fmt"
	"sort"
	"strings"
)

// Render produces an indented text dump of the subtree rooted at n, a local
// counterpart of the original source's debugger. Nothing in the tree calls it:
// the "tree <id>" operator command builds its dump from Query RPCs instead.
// Each line shows the entry's name, kind, status, and mod_time/sync_time.
func (n *Node) Render() string {
	var b strings.Builder
	n.render(&b, "", true)
	return b.String()
}

func (n *Node) render(b *strings.Builder, prefix string, root bool) {
	n.RLock()
	status := n.status
	isDir := n.isDir
	modTime := n.modTime
	syncTime := n.syncTime
	names := n.ChildNamesLocked()
	n.RUnlock()

	label := n.name
	if root {
		label = n.path
	}
	kind := "file"
	if isDir {
		kind = "dir"
	}
	fmt.Fprintf(b, "%s%s [%s %s] mod=%s sync=%s\n", prefix, label, kind, status, modTime, syncTime)

	sort.Strings(names)
	n.RLock()
	children := make([]*Node, 0, len(names))
	for _, name := range names {
		if c, ok := n.children[name]; ok {
			children = append(children, c)
		}
	}
	n.RUnlock()

	for _, c := range children {
		c.render(b, prefix+"  ", false)
	}
}
