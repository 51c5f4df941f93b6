package peerrpc

import (
	"context"
	"testing"
	"time"
)

type stubPeerServer struct {
	queryRes *QueryRes
}

func (s *stubPeerServer) Query(ctx context.Context, req *QueryReq) (*QueryRes, error) {
	return s.queryRes, nil
}

func (s *stubPeerServer) FetchPatch(ctx context.Context, req *FetchPatchReq) (*Patch, error) {
	return &Patch{Delta: append([]byte("delta-for:"), req.Sig...)}, nil
}

func (s *stubPeerServer) RequestSync(ctx context.Context, req *SyncReq) (*BoolResult, error) {
	return &BoolResult{Success: true}, nil
}

func startPeerServer(t *testing.T, srv PeerServer) string {
	t.Helper()
	lis, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to listen: %v", err)
	}
	s := NewPeerServer(srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)
	return lis.Addr().String()
}

func TestPeerClientQueryRoundTrip(t *testing.T) {
	want := &QueryRes{
		Deleted:  false,
		IsDir:    true,
		CreateID: 1,
		ModTime:  map[int32]uint64{1: 3, 2: 1},
		SyncTime: map[int32]uint64{1: 3, 2: 1},
		Children: []string{"a", "b"},
	}
	addr := startPeerServer(t, &stubPeerServer{queryRes: want})

	cache := NewCache()
	t.Cleanup(cache.Close)
	conn, err := cache.Dial(addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	client := NewPeerClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := client.Query(ctx, &QueryReq{PathRel: "sub/file.txt"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if got.IsDir != want.IsDir || len(got.Children) != len(want.Children) {
		t.Fatalf("unexpected response: %+v", got)
	}
	if got.ModTime[1] != 3 || got.ModTime[2] != 1 {
		t.Fatalf("mod_time not round-tripped: %+v", got.ModTime)
	}
}

func TestPeerClientFetchPatchRoundTrip(t *testing.T) {
	addr := startPeerServer(t, &stubPeerServer{})

	cache := NewCache()
	t.Cleanup(cache.Close)
	conn, err := cache.Dial(addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	client := NewPeerClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := client.FetchPatch(ctx, &FetchPatchReq{PathRel: "f.txt", Sig: []byte("sig-bytes")})
	if err != nil {
		t.Fatalf("FetchPatch failed: %v", err)
	}
	if string(got.Delta) != "delta-for:sig-bytes" {
		t.Fatalf("unexpected delta: %q", got.Delta)
	}
}

func TestCacheReusesConnection(t *testing.T) {
	addr := startPeerServer(t, &stubPeerServer{})

	cache := NewCache()
	t.Cleanup(cache.Close)

	first, err := cache.Dial(addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	second, err := cache.Dial(addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if first != second {
		t.Fatal("expected Dial to return the cached connection on a repeat call")
	}
}
