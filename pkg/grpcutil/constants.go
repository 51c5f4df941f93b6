package grpcutil

// MaximumMessageSize bounds a single Peer RPC message: large enough for a
// whole-file FetchPatch delta on any file TRA would reasonably synchronize,
// small enough to keep one run-away transfer from exhausting memory.
const MaximumMessageSize = 64 * 1024 * 1024
