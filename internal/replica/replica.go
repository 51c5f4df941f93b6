// Package replica wires together the pieces a single TRA replica process
// needs: the watch registry, the replicated tree, the event pipeline, the
// reconciliation engine, and the Peer gRPC service (spec.md §6, "Replica
// process"). It is the runtime counterpart of internal/controller, which
// plays the same role for the controller process.
package replica

import (
	"context"
	"net"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/grpc"

	"github.com/tra-project/tra/internal/banner"
	"github.com/tra-project/tra/internal/conflict"
	"github.com/tra-project/tra/internal/counter"
	"github.com/tra-project/tra/internal/eventpipe"
	"github.com/tra-project/tra/internal/ignore"
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/reconcile"
	"github.com/tra-project/tra/internal/tree"
	"github.com/tra-project/tra/internal/watch"
	"github.com/tra-project/tra/pkg/logging"
)

// Config carries the command-line configuration for one replica process.
type Config struct {
	// ID is this replica's identity, used to stamp every vector-clock
	// component it owns (spec.md §3).
	ID int32
	// Home is the absolute path of the directory this replica replicates.
	Home string
	// ControllerAddr is the "host:port" of the controller's directory
	// service, dialed once at startup to advertise this replica's peer
	// address (spec.md §6, "Controller <-> Replica").
	ControllerAddr string
	// BindHost is the host a replica's peer listener binds to. Defaults to
	// "0.0.0.0" if empty, so other replicas can reach it.
	BindHost string
	// IgnorePatterns excludes matching home-relative paths from the
	// replicated tree entirely, the way a .gitignore excludes paths from a
	// commit (spec.md §1's domain stack expansion).
	IgnorePatterns []string
}

// Replica bundles every piece a running replica process needs: the
// replicated tree, the filesystem watcher, the event pipeline that keeps
// the tree in sync with local changes, and the Peer gRPC service other
// replicas call into.
type Replica struct {
	cfg Config

	registry   *watch.Registry
	base       *tree.Node
	counter    *counter.Counter
	dispatcher *eventpipe.Dispatcher
	pipeline   *eventpipe.Pipeline
	engine     *reconcile.Engine
	service    *reconcile.Service

	logger *logging.Logger

	listener net.Listener
	server   *grpc.Server
}

// New builds a Replica from cfg, performing the startup scan (spec.md §6:
// every discovered entry is stamped with singleton time (self_id, 1)) but
// not yet binding a listener or contacting the controller; call Run for
// that.
func New(cfg Config, logger *logging.Logger) (*Replica, error) {
	if logger == nil {
		logger = logging.RootLogger
	}

	registry, err := watch.New(logger.Sublogger("watch"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to create watch registry")
	}

	matcher, err := ignore.New(cfg.IgnorePatterns)
	if err != nil {
		registry.Close()
		return nil, errors.Wrap(err, "invalid ignore pattern")
	}

	base := tree.NewBase(cfg.Home)
	scanner := &tree.Scanner{Replica: cfg.ID, Registry: registry, Base: cfg.Home, Ignore: matcher}
	if err := scanner.Scan(base, 1); err != nil {
		registry.Close()
		return nil, errors.Wrap(err, "unable to perform startup scan")
	}

	cnt := counter.New(1)
	dispatcher := &eventpipe.Dispatcher{Replica: cfg.ID, Scanner: scanner, Registry: registry}
	pipeline := &eventpipe.Pipeline{
		Base:       base,
		Registry:   registry,
		Dispatcher: dispatcher,
		Counter:    cnt,
		Logger:     logger.Sublogger("eventpipe"),
	}

	resolver := &conflict.Resolver{Registry: registry, Logger: logger.Sublogger("conflict")}
	engine := &reconcile.Engine{
		Replica:  cfg.ID,
		Base:     base,
		Registry: registry,
		Counter:  cnt,
		Conflict: resolver,
		Logger:   logger.Sublogger("reconcile"),
		Banner:   banner.NewPrinter(os.Stdout),
	}
	service := &reconcile.Service{Engine: engine, Cache: peerrpc.NewCache()}

	return &Replica{
		cfg:        cfg,
		registry:   registry,
		base:       base,
		counter:    cnt,
		dispatcher: dispatcher,
		pipeline:   pipeline,
		engine:     engine,
		service:    service,
		logger:     logger,
	}, nil
}

// Run binds the replica's peer listener, starts serving the Peer RPC and
// draining the event pipeline, registers with the controller, and then
// blocks until ctx is cancelled.
func (r *Replica) Run(ctx context.Context) error {
	host := r.cfg.BindHost
	if host == "" {
		host = "0.0.0.0"
	}
	lis, err := bindEphemeralPort(host)
	if err != nil {
		return err
	}
	r.listener = lis

	r.server = peerrpc.NewPeerServer(r.service)

	go r.pipeline.Run()
	go func() {
		if err := r.server.Serve(r.listener); err != nil {
			r.logger.Error(errors.Wrap(err, "peer server stopped"))
		}
	}()

	if err := r.register(ctx); err != nil {
		r.Stop()
		return err
	}

	r.logger.Printf("replica %d listening on %s, home %s", r.cfg.ID, r.listener.Addr(), r.cfg.Home)

	<-ctx.Done()
	return r.Stop()
}

// register advertises this replica's id and bound port to the controller.
func (r *Replica) register(ctx context.Context) error {
	conn, err := r.service.Cache.Dial(r.cfg.ControllerAddr)
	if err != nil {
		return errors.Wrapf(err, "unable to dial controller at %q", r.cfg.ControllerAddr)
	}
	_, port, err := net.SplitHostPort(r.listener.Addr().String())
	if err != nil {
		return errors.Wrap(err, "unable to determine bound port")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return errors.Wrapf(err, "malformed bound port %q", port)
	}

	client := peerrpc.NewControllerClient(conn)
	if _, err := client.Register(ctx, &peerrpc.Register{ID: r.cfg.ID, Port: int32(portNum)}); err != nil {
		return errors.Wrap(err, "unable to register with controller")
	}
	return nil
}

// Stop tears down the peer server and the watch registry. It is safe to
// call more than once.
func (r *Replica) Stop() error {
	if r.server != nil {
		r.server.GracefulStop()
	}
	r.service.Cache.Close()
	return r.registry.Close()
}
