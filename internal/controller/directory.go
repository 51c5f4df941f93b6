// Package controller implements the controller side of spec.md §6: the
// directory service that collects replica (id, address) advertisements and
// the two operator commands (sync, tree) built on top of it.
package controller

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/grpc/peer"

	"github.com/tra-project/tra/internal/peerrpc"
)

// Directory is the controller's in-memory replica registry: a map from
// replica id to its "host:port" peer address, built up from register calls
// (spec.md §6, "Controller <-> Replica").
type Directory struct {
	mu    sync.RWMutex
	addrs map[int32]string
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{addrs: make(map[int32]string)}
}

// Register implements peerrpc.ControllerServer. The advertised port is
// paired with the host half of the inbound connection's address, since
// Register's wire type (spec.md §6) carries a port only.
func (d *Directory) Register(ctx context.Context, req *peerrpc.Register) (*peerrpc.Empty, error) {
	host := "127.0.0.1"
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if h, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			host = h
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(int(req.Port)))

	d.mu.Lock()
	d.addrs[req.ID] = addr
	d.mu.Unlock()

	return &peerrpc.Empty{}, nil
}

// Lookup returns the registered address for id, if any.
func (d *Directory) Lookup(id int32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.addrs[id]
	return addr, ok
}

// Port returns the port component of id's registered address, used to
// nominate a sync source by port alone (spec.md §6's SyncReq wire type).
func (d *Directory) Port(id int32) (int32, error) {
	addr, ok := d.Lookup(id)
	if !ok {
		return 0, errors.Errorf("no replica registered with id %d", id)
	}
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed address %q for replica %d", addr, id)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, errors.Wrapf(err, "malformed port in address %q for replica %d", addr, id)
	}
	return int32(port), nil
}
