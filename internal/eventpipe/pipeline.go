package eventpipe

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/tra-project/tra/internal/counter"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

// Pipeline drains a watch.Registry's event stream and drives Dispatcher,
// serializing events in arrival order as spec.md §4.4's "Ordering" section
// requires (fsnotify already preserves per-watcher arrival order; TRA makes
// no attempt to order events across distinct watches).
type Pipeline struct {
	Base       *tree.Node
	Registry   *watch.Registry
	Dispatcher *Dispatcher
	Counter    *counter.Counter
	Logger     *logging.Logger
}

// Run drains events until the registry's event channel is closed (which
// happens when Registry.Close is called during replica shutdown).
func (p *Pipeline) Run() {
	for {
		select {
		case event, ok := <-p.Registry.Events():
			if !ok {
				return
			}
			p.handleEvent(event)
		case err, ok := <-p.Registry.Errors():
			if !ok {
				return
			}
			p.Logger.Error(err)
		}
	}
}

func (p *Pipeline) handleEvent(event fsnotify.Event) {
	kind, ok := classify(event.Op)
	if !ok {
		return
	}

	parentPath := filepath.Dir(event.Name)
	name := filepath.Base(event.Name)

	handle, ok := p.Registry.HandleForPath(parentPath)
	if !ok {
		// The parent isn't a watched directory we know about (e.g. a race
		// during teardown); nothing to update.
		return
	}
	if p.Registry.IsFrozen(handle) {
		// Self-induced event from an in-flight sync or conflict write.
		return
	}

	walk, err := p.walkTo(parentPath)
	if err != nil {
		p.Logger.Error(err)
		return
	}

	isDir := false
	if kind == OpCreate {
		if info, statErr := os.Lstat(event.Name); statErr == nil {
			isDir = info.IsDir()
		}
	}

	op := ModOp{
		Kind:  kind,
		Time:  p.Counter.Next(),
		Name:  name,
		IsDir: isDir,
	}

	if err := p.Dispatcher.HandleModify(p.Base, walk, op); err != nil {
		p.Logger.Error(err)
	}
}

// classify maps an fsnotify operation mask to an OpKind. fsnotify.Chmod and
// any combination carrying no event of interest are dropped.
func classify(op fsnotify.Op) (OpKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return OpCreate, true
	case op&fsnotify.Write != 0:
		return OpModify, true
	case op&fsnotify.Remove != 0:
		return OpDelete, true
	case op&fsnotify.Rename != 0:
		return OpMovedFrom, true
	default:
		return 0, false
	}
}

// walkTo computes the sequence of child names from the base node's path to
// parentPath.
func (p *Pipeline) walkTo(parentPath string) ([]string, error) {
	rel, err := filepath.Rel(p.Base.Path(), parentPath)
	if err != nil {
		return nil, err
	}
	if rel == "." {
		return nil, nil
	}
	return strings.Split(rel, string(filepath.Separator)), nil
}
