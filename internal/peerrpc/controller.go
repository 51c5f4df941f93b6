package peerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ControllerServer is the server-side contract for the single RPC replicas
// issue to the controller at startup (spec.md §6, "Controller <-> Replica").
type ControllerServer interface {
	Register(context.Context, *Register) (*Empty, error)
}

func _Controller_Register_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(Register)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServer).Register(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerrpc.Controller/Register"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControllerServer).Register(ctx, req.(*Register))
	}
	return interceptor(ctx, in, info, handler)
}

// ControllerServiceDesc is the hand-written grpc.ServiceDesc for the
// controller's directory service.
var ControllerServiceDesc = grpc.ServiceDesc{
	ServiceName: "peerrpc.Controller",
	HandlerType: (*ControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Register", Handler: _Controller_Register_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "peerrpc/controller.proto",
}

// RegisterControllerServer registers srv on s against ControllerServiceDesc.
func RegisterControllerServer(s grpc.ServiceRegistrar, srv ControllerServer) {
	s.RegisterService(&ControllerServiceDesc, srv)
}

// ControllerClient is the client stub used by a replica at startup to
// advertise itself.
type ControllerClient struct {
	cc grpc.ClientConnInterface
}

// NewControllerClient wraps an established connection to the controller.
func NewControllerClient(cc grpc.ClientConnInterface) *ControllerClient {
	return &ControllerClient{cc: cc}
}

func (c *ControllerClient) Register(ctx context.Context, in *Register) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/peerrpc.Controller/Register", in, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}
