package reconcile

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"google.golang.org/grpc/peer"

	"github.com/tra-project/tra/internal/deltacodec"
	"github.com/tra-project/tra/internal/fsutil"
	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/internal/tree"
)

// Service exposes an Engine's base tree as a peerrpc.PeerServer: the
// responder half of the three RPCs the decision table (engine.go, file.go)
// drives as a requester against some other replica (spec.md §4.6).
type Service struct {
	Engine *Engine
	Cache  *peerrpc.Cache
}

// Query answers a peer's snapshot request for a home-prefix-relative path.
// A path with no corresponding node is reported as a synthesized Deleted
// snapshot whose sync_time equals the nearest existing ancestor's, mirroring
// the tmp-node synthesis descendToTarget performs on the requester side
// (spec.md §3, §4.6) — never as an RPC error.
func (s *Service) Query(ctx context.Context, req *peerrpc.QueryReq) (*peerrpc.QueryRes, error) {
	node, ancestor, ok := s.Engine.Base.LookupDeepest(splitRelPath(req.PathRel))
	if !ok {
		ancestor.RLock()
		syncTime := ancestor.SyncTimeLocked()
		ancestor.RUnlock()
		return &peerrpc.QueryRes{Deleted: true, SyncTime: syncTime}, nil
	}

	node.RLock()
	defer node.RUnlock()

	if node.StatusLocked() == tree.StatusDeleted {
		return &peerrpc.QueryRes{
			Deleted:  true,
			SyncTime: node.SyncTimeLocked(),
		}, nil
	}

	res := &peerrpc.QueryRes{
		IsDir:      node.IsDirLocked(),
		CreateID:   node.CreateTimeLocked().Replica,
		CreateTime: node.CreateTimeLocked().Time,
		ModTime:    node.ModTimeLocked(),
		SyncTime:   node.SyncTimeLocked(),
	}
	if res.IsDir {
		res.Children = node.ChildNamesLocked()
	}
	return res, nil
}

// FetchPatch computes a delta from the caller's signature against this
// replica's current bytes for the named file (spec.md §4.5, step 2-3).
func (s *Service) FetchPatch(ctx context.Context, req *peerrpc.FetchPatchReq) (*peerrpc.Patch, error) {
	node, ok := s.Engine.Base.Lookup(splitRelPath(req.PathRel))

	var localPath string
	if ok {
		localPath = node.Path()
	} else {
		// The caller is asking about a path this replica doesn't have a
		// node for (e.g. it's about to create/overwrite locally and is
		// diffing against whatever bytes happen to be on disk); fall back
		// to joining the relative path onto the base so a plain file read
		// still resolves.
		localPath = filepath.Join(s.Engine.Base.Path(), req.PathRel)
	}

	content, err := fsutil.ReadFileOrEmpty(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %q", localPath)
	}

	var sig deltacodec.Signature
	if err := json.Unmarshal(req.Sig, &sig); err != nil {
		return nil, errors.Wrap(err, "unable to decode signature")
	}

	delta := deltacodec.Deltafy(content, sig)
	deltaBytes, err := json.Marshal(delta)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode delta")
	}
	return &peerrpc.Patch{Delta: deltaBytes}, nil
}

// RequestSync dials the nominated source replica and runs handle_sync
// against it for path_rel (spec.md §4.6).
func (s *Service) RequestSync(ctx context.Context, req *peerrpc.SyncReq) (*peerrpc.BoolResult, error) {
	addr := peerAddrFromCaller(ctx, req.PeerPort)
	conn, err := s.Cache.Dial(addr)
	if err != nil {
		return &peerrpc.BoolResult{Success: false, Error: err.Error()}, nil
	}

	client := peerrpc.NewPeerClient(conn)
	if _, err := s.Engine.HandleSync(ctx, client, req.PathRel); err != nil {
		return &peerrpc.BoolResult{Success: false, Error: err.Error()}, nil
	}
	return &peerrpc.BoolResult{Success: true}, nil
}

// peerAddrFromCaller resolves the "host:port" address of the nominated sync
// source, pairing peer_port with the host part of the inbound connection's
// remote address. SyncReq carries a port only, so the source is taken to be
// on the same host as whichever process issued RequestSync (normally the
// controller).
func peerAddrFromCaller(ctx context.Context, port int32) string {
	host := "127.0.0.1"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if h, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			host = h
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}
