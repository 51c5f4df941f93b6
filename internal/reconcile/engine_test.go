package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tra-project/tra/internal/conflict"
	"github.com/tra-project/tra/internal/counter"
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

// testReplica bundles one replica's full local stack: its home directory, its
// in-memory tree, and the engine driving syncs against it.
type testReplica struct {
	id       int32
	home     string
	registry *watch.Registry
	engine   *Engine
	service  *Service
}

func newTestReplica(t *testing.T, id int32) *testReplica {
	t.Helper()
	home := t.TempDir()

	registry, err := watch.New(logging.RootLogger)
	if err != nil {
		t.Fatalf("unable to create watch registry: %v", err)
	}
	t.Cleanup(func() { registry.Close() })

	base := tree.NewBase(home)
	scanner := &tree.Scanner{Replica: id, Registry: registry}
	if err := scanner.Scan(base, 1); err != nil {
		t.Fatalf("initial scan failed: %v", err)
	}

	engine := &Engine{
		Replica:  id,
		Base:     base,
		Registry: registry,
		Counter:  counter.New(1),
		Conflict: &conflict.Resolver{Registry: registry, Logger: logging.RootLogger},
		Logger:   logging.RootLogger,
	}

	return &testReplica{
		id:       id,
		home:     home,
		registry: registry,
		engine:   engine,
		service:  &Service{Engine: engine, Cache: peerrpc.NewCache()},
	}
}

// rescan re-runs the startup scan against the replica's current on-disk
// state, simulating what the event pipeline would otherwise keep the tree in
// sync with incrementally.
func (r *testReplica) rescan(t *testing.T, opTime uint64) {
	t.Helper()
	scanner := &tree.Scanner{Replica: r.id, Registry: r.registry}
	if err := scanner.Scan(r.engine.Base, opTime); err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
}

// dialClient starts a gRPC server exposing remote's Service and returns a
// client connected to it, matching the peerrpc package's own test idiom.
func dialClient(t *testing.T, remote *testReplica) *peerrpc.PeerClient {
	t.Helper()
	lis, err := peerrpc.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to listen: %v", err)
	}
	s := peerrpc.NewPeerServer(remote.service)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	cache := peerrpc.NewCache()
	t.Cleanup(cache.Close)
	conn, err := cache.Dial(lis.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return peerrpc.NewPeerClient(conn)
}

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHandleSyncPropagatesNewFile(t *testing.T) {
	source := newTestReplica(t, 2)
	if err := os.WriteFile(filepath.Join(source.home, "greeting.txt"), []byte("hello from source"), 0o644); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 2)

	dest := newTestReplica(t, 1)
	client := dialClient(t, source)

	status, err := dest.engine.HandleSync(ctxWithTimeout(t), client, "greeting.txt")
	if err != nil {
		t.Fatalf("HandleSync failed: %v", err)
	}
	if status != tree.StatusExist {
		t.Fatalf("expected StatusExist, got %v", status)
	}

	got, err := os.ReadFile(filepath.Join(dest.home, "greeting.txt"))
	if err != nil {
		t.Fatalf("expected file to be created locally: %v", err)
	}
	if string(got) != "hello from source" {
		t.Fatalf("unexpected content: %q", got)
	}

	node, ok := dest.engine.Base.Lookup([]string{"greeting.txt"})
	if !ok {
		t.Fatal("expected a tree node for the created file")
	}
	node.RLock()
	defer node.RUnlock()
	if node.CreateTimeLocked().Replica != source.id {
		t.Fatalf("expected create_time to adopt source's replica id, got %v", node.CreateTimeLocked())
	}
}

func TestHandleSyncOverwritesChangedFile(t *testing.T) {
	source := newTestReplica(t, 2)
	path := filepath.Join(source.home, "doc.txt")
	if err := os.WriteFile(path, []byte("version one"), 0o644); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 2)

	dest := newTestReplica(t, 1)
	destPath := filepath.Join(dest.home, "doc.txt")

	// Pull once so both sides share the same history (dest creates its copy
	// from source, rather than starting with an unrelated local file).
	client := dialClient(t, source)
	if _, err := dest.engine.HandleSync(ctxWithTimeout(t), client, "doc.txt"); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}

	// Source now changes the file; a second sync should overwrite dest.
	if err := os.WriteFile(path, []byte("version two"), 0o644); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 3)

	client2 := dialClient(t, source)
	status, err := dest.engine.HandleSync(ctxWithTimeout(t), client2, "doc.txt")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if status != tree.StatusExist {
		t.Fatalf("expected StatusExist, got %v", status)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "version two" {
		t.Fatalf("expected overwrite to propagate new content, got %q", got)
	}
}

func TestHandleSyncPropagatesDeletion(t *testing.T) {
	source := newTestReplica(t, 2)
	path := filepath.Join(source.home, "ephemeral.txt")
	if err := os.WriteFile(path, []byte("short-lived"), 0o644); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 2)

	dest := newTestReplica(t, 1)
	client := dialClient(t, source)
	if _, err := dest.engine.HandleSync(ctxWithTimeout(t), client, "ephemeral.txt"); err != nil {
		t.Fatalf("initial sync failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest.home, "ephemeral.txt")); err != nil {
		t.Fatalf("expected file to exist after initial sync: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 3)

	client2 := dialClient(t, source)
	status, err := dest.engine.HandleSync(ctxWithTimeout(t), client2, "ephemeral.txt")
	if err != nil {
		t.Fatalf("deletion sync failed: %v", err)
	}
	if status != tree.StatusDeleted {
		t.Fatalf("expected StatusDeleted, got %v", status)
	}
	if _, err := os.Stat(filepath.Join(dest.home, "ephemeral.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected local file to be removed, stat error: %v", err)
	}
}

func TestHandleSyncRecoversEmptyDirectory(t *testing.T) {
	source := newTestReplica(t, 2)
	if err := os.Mkdir(filepath.Join(source.home, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 2)

	dest := newTestReplica(t, 1)
	client := dialClient(t, source)

	status, err := dest.engine.HandleSync(ctxWithTimeout(t), client, "empty")
	if err != nil {
		t.Fatalf("HandleSync failed: %v", err)
	}
	if status != tree.StatusExist {
		t.Fatalf("expected StatusExist, got %v", status)
	}

	info, err := os.Stat(filepath.Join(dest.home, "empty"))
	if err != nil {
		t.Fatalf("expected directory to be created locally: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected created entry to be a directory")
	}
}

func TestHandleSyncConflictInvokesResolver(t *testing.T) {
	t.Setenv("TRA_EDITOR", "true")

	source := newTestReplica(t, 2)
	path := filepath.Join(source.home, "shared.txt")
	if err := os.WriteFile(path, []byte("source edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	source.rescan(t, 2)

	dest := newTestReplica(t, 1)
	destPath := filepath.Join(dest.home, "shared.txt")
	if err := os.WriteFile(destPath, []byte("dest edit"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest.rescan(t, 2)

	// Neither side has synced with the other, so both mod_times are unknown
	// to the other's sync_time: this is a genuine conflict.
	client := dialClient(t, source)
	if _, err := dest.engine.HandleSync(ctxWithTimeout(t), client, "shared.txt"); err != nil {
		t.Fatalf("expected conflict resolution to succeed (via TRA_EDITOR=true), got error: %v", err)
	}

	got, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) == "dest edit" {
		t.Fatal("expected the conflict-marked merge to have replaced the original content")
	}
}
