// Package watch implements the watch registry (spec.md C3): a bidirectional
// map between watch handles and the absolute paths they observe, plus a
// per-handle freeze counter used to suppress self-induced filesystem events
// while the reconciliation engine or conflict resolver is writing to disk.
//
// The registry wraps github.com/fsnotify/fsnotify, which is the concrete
// stand-in for spec.md's "source of typed path events" (§1, filesystem
// watcher is treated as an external collaborator).
package watch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fsnotify/fsnotify"

	"github.com/tra-project/tra/pkg/logging"
)

// Handle identifies a single watched directory. The zero value denotes the
// absence of a watch, matching the Option<handle> semantics of spec.md.
type Handle string

// None is the zero Handle, used wherever spec.md calls for Option::None.
const None Handle = ""

// Registry is the bidirectional {handle <-> absolute path} map described in
// spec.md §4.3, together with per-handle freeze counters. A single
// *fsnotify.Watcher underlies every registered handle; Registry serializes
// all access to its own maps behind one reader-writer lock, matching the
// "shared resource policy" described in spec.md §5.
type Registry struct {
	logger *logging.Logger

	watcher *fsnotify.Watcher

	mu          sync.RWMutex
	pathByHandle map[Handle]string
	handleByPath map[string]Handle
	freezeCount  map[Handle]int
}

// New creates a Registry backed by a fresh fsnotify watcher.
func New(logger *logging.Logger) (*Registry, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create filesystem watcher")
	}
	return &Registry{
		logger:       logger,
		watcher:      watcher,
		pathByHandle: make(map[Handle]string),
		handleByPath: make(map[string]Handle),
		freezeCount:  make(map[Handle]int),
	}, nil
}

// Events exposes the underlying fsnotify event channel. The event pipeline
// (C4) consumes it directly; Registry does not interpret event contents
// itself, only handle/path/freeze bookkeeping.
func (r *Registry) Events() <-chan fsnotify.Event {
	return r.watcher.Events
}

// Errors exposes the underlying fsnotify error channel.
func (r *Registry) Errors() <-chan error {
	return r.watcher.Errors
}

// Close tears down the underlying watcher. Every call is passed straight to
// fsnotify's Watcher.Close; Registry keeps no closed flag of its own.
func (r *Registry) Close() error {
	return r.watcher.Close()
}

// Add registers a watch on path if path is a directory, returning the new
// handle. If path is not a directory, Add returns None and a nil error,
// matching spec.md's add(path) -> Option<handle>.
func (r *Registry) Add(path string, isDir bool) (Handle, error) {
	if !isDir {
		return None, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handleByPath[path]; ok {
		// Already watched; invariant 5 (watch discipline) forbids a second
		// watch on the same live directory.
		panic(errors.Errorf("attempted to install a second watch on %q (existing handle %s)", path, existing).Error())
	}

	if err := r.watcher.Add(path); err != nil {
		return None, errors.Wrapf(err, "unable to watch %q", path)
	}

	handle := Handle(uuid.NewString())
	r.pathByHandle[handle] = path
	r.handleByPath[path] = handle
	r.logger.Debugf("watch %s registered for %s", handle, path)
	return handle, nil
}

// Remove deregisters handle. It tolerates "already gone" handles: the OS may
// have reaped the underlying watch when the directory was removed out from
// under it, in which case fsnotify.Remove returns an error that Remove
// swallows after cleaning up the registry's own bookkeeping.
func (r *Registry) Remove(handle Handle) {
	if handle == None {
		return
	}

	r.mu.Lock()
	path, ok := r.pathByHandle[handle]
	if ok {
		delete(r.pathByHandle, handle)
		delete(r.handleByPath, path)
		delete(r.freezeCount, handle)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := r.watcher.Remove(path); err != nil {
		r.logger.Debugf("watch %s for %s already removed by OS: %v", handle, path, err)
	}
}

// Query returns the absolute path associated with handle, if any.
func (r *Registry) Query(handle Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.pathByHandle[handle]
	return path, ok
}

// HandleForPath returns the handle registered for path, if any. The event
// pipeline uses it to map an event's parent directory to its watch handle.
func (r *Registry) HandleForPath(path string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handleByPath[path]
	return handle, ok
}

// Freeze increments handle's freeze counter. Freeze is a counter rather than
// a boolean flag so that nested or concurrent sync operations on overlapping
// watches compose correctly (spec.md §4.3).
func (r *Registry) Freeze(handle Handle) {
	if handle == None {
		return
	}
	r.mu.Lock()
	r.freezeCount[handle]++
	r.mu.Unlock()
}

// Unfreeze decrements handle's freeze counter. It is safe to call even if the
// handle has since been removed from the registry (the decrement is simply a
// no-op in that case).
func (r *Registry) Unfreeze(handle Handle) {
	if handle == None {
		return
	}
	r.mu.Lock()
	if r.freezeCount[handle] > 0 {
		r.freezeCount[handle]--
	}
	r.mu.Unlock()
}

// IsFrozen reports whether handle's freeze counter is greater than zero.
func (r *Registry) IsFrozen(handle Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.freezeCount[handle] > 0
}

// WithFreeze freezes handle, runs fn, and unfreezes handle afterward
// regardless of whether fn returns an error or panics. Every filesystem
// mutation performed on behalf of a sync or conflict-resolution action must
// be wrapped this way (spec.md §4.5, "write side-effects").
func (r *Registry) WithFreeze(handle Handle, fn func() error) error {
	r.Freeze(handle)
	defer r.Unfreeze(handle)
	return fn()
}
