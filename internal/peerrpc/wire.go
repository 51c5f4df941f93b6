// Package peerrpc implements the Peer Service (spec.md C6): the three
// idempotent RPCs replicas expose to each other (query, fetch-patch,
// request-sync) plus the controller-facing register call (spec.md §6). The
// RPC transport itself is out of scope for the spec ("treated as a
// byte-delivery mechanism"); this package realizes it over grpc-go, the
// teacher's own RPC stack (pkg/grpcutil, daemon/server.go), but without
// protoc codegen: message types are plain structs marshaled through a
// registered JSON codec, and the service descriptors are hand-written in the
// same shape protoc-gen-go-grpc would emit.
package peerrpc

// QueryReq asks a peer for its local snapshot at a relative path.
type QueryReq struct {
	PathRel string `json:"path_rel"`
}

// QueryRes is a peer's local snapshot of the node at the requested path
// (spec.md §6's QueryRes wire type). A missing path is reported as a
// synthesized Deleted snapshot rather than an error.
type QueryRes struct {
	Deleted    bool             `json:"deleted"`
	IsDir      bool             `json:"is_dir"`
	CreateID   int32            `json:"create_id"`
	CreateTime uint64           `json:"create_time"`
	ModTime    map[int32]uint64 `json:"mod_time"`
	SyncTime   map[int32]uint64 `json:"sync_time"`
	Children   []string         `json:"children"`
}

// FetchPatchReq carries a signature of the caller's current bytes for the
// named file, asking the callee to compute a delta against its own copy.
type FetchPatchReq struct {
	PathRel string `json:"path_rel"`
	Sig     []byte `json:"sig"`
}

// Patch carries the delta computed by FetchPatch.
type Patch struct {
	Delta []byte `json:"delta"`
}

// SyncReq asks the receiver to pull path_rel from the replica listening on
// peer_port. The wording is asymmetric: the receiver is the sync destination,
// the caller nominates the source. Only the port travels on the wire; the
// receiver pairs it with the caller's own host.
type SyncReq struct {
	PathRel  string `json:"path_rel"`
	PeerPort int32  `json:"peer_port"`
}

// BoolResult reports whether a RequestSync-driven sync succeeded.
type BoolResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Register advertises a replica's id and listening port to the controller
// (spec.md §6, "Controller <-> Replica").
type Register struct {
	ID   int32 `json:"id"`
	Port int32 `json:"port"`
}

// Empty is the response to Register.
type Empty struct{}
