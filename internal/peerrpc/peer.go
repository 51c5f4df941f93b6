package peerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// PeerServer is the server-side contract for the three RPCs a replica
// exposes to its peers (spec.md §4.6).
type PeerServer interface {
	Query(context.Context, *QueryReq) (*QueryRes, error)
	FetchPatch(context.Context, *FetchPatchReq) (*Patch, error)
	RequestSync(context.Context, *SyncReq) (*BoolResult, error)
}

func _Peer_Query_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueryReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerrpc.Peer/Query"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).Query(ctx, req.(*QueryReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _Peer_FetchPatch_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchPatchReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).FetchPatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerrpc.Peer/FetchPatch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).FetchPatch(ctx, req.(*FetchPatchReq))
	}
	return interceptor(ctx, in, info, handler)
}

func _Peer_RequestSync_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SyncReq)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).RequestSync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerrpc.Peer/RequestSync"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PeerServer).RequestSync(ctx, req.(*SyncReq))
	}
	return interceptor(ctx, in, info, handler)
}

// PeerServiceDesc is the hand-written grpc.ServiceDesc a protoc-gen-go-grpc
// run would normally produce from a .proto file.
var PeerServiceDesc = grpc.ServiceDesc{
	ServiceName: "peerrpc.Peer",
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Query", Handler: _Peer_Query_Handler},
		{MethodName: "FetchPatch", Handler: _Peer_FetchPatch_Handler},
		{MethodName: "RequestSync", Handler: _Peer_RequestSync_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "peerrpc/peer.proto",
}

// RegisterPeerServer registers srv on s against PeerServiceDesc.
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&PeerServiceDesc, srv)
}

// PeerClient is the client stub for PeerServer, dialed against a specific
// peer address from the Cache.
type PeerClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerClient wraps an established connection.
func NewPeerClient(cc grpc.ClientConnInterface) *PeerClient {
	return &PeerClient{cc: cc}
}

func (c *PeerClient) Query(ctx context.Context, in *QueryReq) (*QueryRes, error) {
	out := new(QueryRes)
	if err := c.cc.Invoke(ctx, "/peerrpc.Peer/Query", in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerClient) FetchPatch(ctx context.Context, in *FetchPatchReq) (*Patch, error) {
	out := new(Patch)
	if err := c.cc.Invoke(ctx, "/peerrpc.Peer/FetchPatch", in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerClient) RequestSync(ctx context.Context, in *SyncReq) (*BoolResult, error) {
	out := new(BoolResult)
	if err := c.cc.Invoke(ctx, "/peerrpc.Peer/RequestSync", in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}
