// Package eventpipe implements the event pipeline (spec.md C4): it consumes
// filesystem watcher events, resolves them to a walk from the replica's
// base node, and mutates the replicated tree while preserving the
// invariants in spec.md §3.
//
// The underlying watcher is github.com/fsnotify/fsnotify. fsnotify does not
// expose inotify's IN_MOVED_TO/IN_MOVED_FROM distinction directly: a rename
// is reported as fsnotify.Rename on the source path, and the destination
// (if also watched) is reported as a separate fsnotify.Create. Since
// spec.md's Create and MovedTo branches are handled identically, this
// mapping loses nothing: fsnotify.Create feeds OpCreate (which also covers
// MovedTo), and fsnotify.Rename feeds OpMovedFrom.
package eventpipe

// OpKind identifies the kind of filesystem mutation an event represents.
type OpKind uint8

const (
	// OpCreate covers both newly-created entries and the destination side
	// of a move (spec.md treats Create and MovedTo identically).
	OpCreate OpKind = iota
	// OpModify indicates the named entry's content changed.
	OpModify
	// OpDelete indicates the named entry was removed.
	OpDelete
	// OpMovedFrom indicates the named entry was the source of a rename;
	// unlike OpDelete it must tombstone the entire subtree and detach every
	// descendant watch, since the OS does not reap watches on rename.
	OpMovedFrom
)

// String implements fmt.Stringer for log output.
func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpMovedFrom:
		return "moved-from"
	default:
		return "unknown"
	}
}

// ModOp is the normalized mutation an event pipeline dispatch carries to the
// leaf parent node, mirroring spec.md §4.4's ModOp{type, time, name, is_dir}.
type ModOp struct {
	Kind  OpKind
	Time  uint64
	Name  string
	IsDir bool
}
