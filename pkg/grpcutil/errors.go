// Package grpcutil holds the small pieces of gRPC plumbing shared by the
// replica's Peer service and the controller's directory service: message
// size limits and RPC error unwrapping, adapted from the teacher's own
// grpcutil package.
package grpcutil

import (
	"github.com/pkg/errors"

	"google.golang.org/grpc/status"
)

// PeelAwayRPCErrorLayer strips the gRPC status wrapper from err, returning a
// plain error carrying just the remote's message. Query, FetchPatch, and
// RequestSync failures are surfaced to the reconciliation engine's caller as
// string-typed results (spec.md §7); an unpeeled gRPC status would leak
// transport-layer detail the spec doesn't ask for.
func PeelAwayRPCErrorLayer(err error) error {
	if err == nil {
		return nil
	}
	if s, ok := status.FromError(err); ok {
		return errors.New(s.Message())
	}
	return err
}
