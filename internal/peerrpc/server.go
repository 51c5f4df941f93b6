package peerrpc

import (
	"net"

	"google.golang.org/grpc"

	"github.com/tra-project/tra/pkg/grpcutil"
)

// serverOptions bounds message size the same way on every Peer and
// Controller server this package constructs (pkg/grpcutil.MaximumMessageSize),
// since a FetchPatch delta for a large file is the one message on this wire
// surface that can legitimately grow large.
func serverOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.MaxRecvMsgSize(grpcutil.MaximumMessageSize),
		grpc.MaxSendMsgSize(grpcutil.MaximumMessageSize),
	}
}

// NewPeerServer builds a grpc.Server exposing srv as the Peer service
// (spec.md §4.6), following the teacher's daemon.NewServer shape
// (daemon/server.go): construct an empty *grpc.Server, register each
// service, return it for the caller to Serve on a listener.
func NewPeerServer(srv PeerServer) *grpc.Server {
	s := grpc.NewServer(serverOptions()...)
	RegisterPeerServer(s, srv)
	return s
}

// NewControllerServer builds a grpc.Server exposing srv as the Controller
// directory service (spec.md §6).
func NewControllerServer(srv ControllerServer) *grpc.Server {
	s := grpc.NewServer(serverOptions()...)
	RegisterControllerServer(s, srv)
	return s
}

// Listen binds a listener on addr (host:port, or ":0" for an OS-assigned
// port) for a gRPC server to Serve on.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
