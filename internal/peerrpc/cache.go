package peerrpc

import (
	"sync"

	"google.golang.org/grpc"

	"github.com/tra-project/tra/pkg/grpcutil"
)

// Cache is the shared peer_addr -> RPC channel map spec.md §4.6 requires:
// channels are established lazily and reused, guarded by a reader-writer
// lock with lookups optimistically taking the read lock (spec.md §5,
// "shared resource policy").
type Cache struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

// NewCache returns an empty channel cache.
func NewCache() *Cache {
	return &Cache{conns: make(map[string]*grpc.ClientConn)}
}

// Dial returns a cached connection to addr, dialing a new one if none
// exists yet. addr is a "host:port" pair.
func (c *Cache) Dial(addr string) (*grpc.ClientConn, error) {
	c.mu.RLock()
	conn, ok := c.conns[addr]
	c.mu.RUnlock()
	if ok {
		return conn, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}

	conn, err := grpc.Dial(addr,
		grpc.WithInsecure(),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(codecName),
			grpc.MaxCallRecvMsgSize(grpcutil.MaximumMessageSize),
			grpc.MaxCallSendMsgSize(grpcutil.MaximumMessageSize),
		),
	)
	if err != nil {
		return nil, err
	}
	c.conns[addr] = conn
	return conn, nil
}

// Close tears down every cached connection, used on replica shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		conn.Close()
		delete(c.conns, addr)
	}
}
