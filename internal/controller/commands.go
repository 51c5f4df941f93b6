package controller

import (
	"context"
	"fmt"
	"io"
	"regexp"

	"github.com/pkg/errors"

	"github.com/tra-project/tra/internal/peerrpc"
	"github.com/tra-project/tra/pkg/grpcutil"
)

// relPathPattern matches a relative path with no leading slash and no
// traversal components (spec.md §6).
var relPathPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+/)*([A-Za-z0-9_.-]+)?$`)

// ValidateRelPath reports whether path is an acceptable path_rel argument.
func ValidateRelPath(path string) error {
	if !relPathPattern.MatchString(path) {
		return errors.Errorf("invalid relative path %q", path)
	}
	return nil
}

// Commands dispatches the controller's two operator commands against a
// Directory, dialing replicas lazily through a shared peerrpc.Cache.
type Commands struct {
	Directory *Directory
	Cache     *peerrpc.Cache
}

// Sync implements `sync <from_id> <to_id> <rel_path>` (spec.md §6): it asks
// replica to_id to pull rel_path from replica from_id.
func (c *Commands) Sync(ctx context.Context, fromID, toID int32, relPath string) error {
	if err := ValidateRelPath(relPath); err != nil {
		return err
	}

	toAddr, ok := c.Directory.Lookup(toID)
	if !ok {
		return errors.Errorf("no replica registered with id %d", toID)
	}
	fromPort, err := c.Directory.Port(fromID)
	if err != nil {
		return err
	}

	conn, err := c.Cache.Dial(toAddr)
	if err != nil {
		return errors.Wrapf(err, "unable to dial replica %d", toID)
	}

	client := peerrpc.NewPeerClient(conn)
	res, err := client.RequestSync(ctx, &peerrpc.SyncReq{PathRel: relPath, PeerPort: fromPort})
	if err != nil {
		return errors.Wrapf(grpcutil.PeelAwayRPCErrorLayer(err), "request_sync to replica %d failed", toID)
	}
	if !res.Success {
		return errors.Errorf("sync failed: %s", res.Error)
	}
	return nil
}

// Tree implements `tree <id>` (spec.md §6): a diagnostic dump of replica
// id's tree. The wire surface (C6) has no dedicated dump RPC, so this walks
// the tree recursively through Query, the way a caller with no local state
// of its own must.
func (c *Commands) Tree(ctx context.Context, id int32, out io.Writer) error {
	addr, ok := c.Directory.Lookup(id)
	if !ok {
		return errors.Errorf("no replica registered with id %d", id)
	}
	conn, err := c.Cache.Dial(addr)
	if err != nil {
		return errors.Wrapf(err, "unable to dial replica %d", id)
	}
	client := peerrpc.NewPeerClient(conn)

	res, err := client.Query(ctx, &peerrpc.QueryReq{PathRel: ""})
	if err != nil {
		return errors.Wrapf(grpcutil.PeelAwayRPCErrorLayer(err), "query to replica %d failed", id)
	}
	fmt.Fprintf(out, "replica %d:\n", id)
	return dumpTree(ctx, client, "", res, out, 0)
}

func dumpTree(ctx context.Context, client *peerrpc.PeerClient, name string, res *peerrpc.QueryRes, out io.Writer, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	label := name
	if label == "" {
		label = "."
	}
	if res.Deleted {
		fmt.Fprintf(out, "%s%s (deleted)\n", indent, label)
		return nil
	}
	if !res.IsDir {
		fmt.Fprintf(out, "%s%s\n", indent, label)
		return nil
	}
	fmt.Fprintf(out, "%s%s/\n", indent, label)

	for _, child := range res.Children {
		childPath := child
		if name != "" {
			childPath = name + "/" + child
		}
		childRes, err := client.Query(ctx, &peerrpc.QueryReq{PathRel: childPath})
		if err != nil {
			return errors.Wrapf(grpcutil.PeelAwayRPCErrorLayer(err), "query for %q failed", childPath)
		}
		if err := dumpTree(ctx, client, childPath, childRes, out, depth+1); err != nil {
			return err
		}
	}
	return nil
}
