package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/griddfs/griddfs/internal/wire"
)

// fakeDirect is an in-process transport.Direct double keyed by subject, so
// client tests don't need a real NATS server.
type fakeDirect struct {
	handlers map[string]func([]byte) []byte
}

func newFakeDirect() *fakeDirect {
	return &fakeDirect{handlers: map[string]func([]byte) []byte{}}
}

func (f *fakeDirect) Request(_ context.Context, subject string, payload []byte) ([]byte, error) {
	h, ok := f.handlers[subject]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return h(payload), nil
}

func (f *fakeDirect) Reply(subject string, handler func([]byte) []byte) (func(), error) {
	f.handlers[subject] = handler
	return func() { delete(f.handlers, subject) }, nil
}

func TestPutThenGetRoundTrip(t *testing.T) {
	// coordinator stub: hands out one block per 5 bytes, mirrors the real
	// coordinator's plan shape closely enough for the client to parse.
	var lastCommit commitBlocksRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files/upload/plan", func(w http.ResponseWriter, r *http.Request) {
		var req uploadPlanRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := uploadPlanResponse{UploadID: "up1"}
		for i, h := range req.BlockHashes {
			resp.Blocks = append(resp.Blocks, blockDescriptor{BlockID: "blk" + string(rune('0'+i)), Index: i, ContentHash: h})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("POST /files/upload/commit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastCommit))
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /files/download/plan", func(w http.ResponseWriter, r *http.Request) {
		var blocks []blockPlacement
		for _, b := range lastCommit.Blocks {
			blocks = append(blocks, blockPlacement{
				Block:     blockDescriptor{BlockID: b.BlockID, Index: b.Index, ContentHash: b.ContentHash},
				Locations: []locationDescriptor{{NodeID: "n1"}},
			})
		}
		_ = json.NewEncoder(w).Encode(downloadPlan{Blocks: blocks, Durable: true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	bus := newFakeDirect()
	_, err := bus.Reply(wire.RequestBlockSubject("n1"), func(payload []byte) []byte {
		var req wire.RequestBlock
		require.NoError(t, json.Unmarshal(payload, &req))
		blockData := map[string][]byte{}
		for _, b := range lastCommit.Blocks {
			blockData[b.BlockID] = b.Data
		}
		resp := wire.BlockResponse{MessageType: wire.MessageBlockResponse, BlockID: req.BlockID, Status: wire.BlockResponseSuccess, BlockData: blockData[req.BlockID]}
		out, _ := json.Marshal(resp)
		return out
	})
	require.NoError(t, err)

	c := New(srv.URL, "alice", 5, time.Second, bus)

	dir := t.TempDir()
	localIn := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(localIn, []byte("hello world"), 0o600))

	uploadID, err := c.Put(context.Background(), localIn, "/a/b")
	require.NoError(t, err)
	require.Equal(t, "up1", uploadID)

	localOut := filepath.Join(dir, "out.txt")
	require.NoError(t, c.Get(context.Background(), "/a/b", localOut))

	got, err := os.ReadFile(localOut)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), got)
}

func TestGetFallsBackOnHashMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/download/plan", func(w http.ResponseWriter, r *http.Request) {
		plan := downloadPlan{
			Blocks: []blockPlacement{{
				Block:     blockDescriptor{BlockID: "b1", Index: 0, ContentHash: HashBytes([]byte("correct"))},
				Locations: []locationDescriptor{{NodeID: "bad"}, {NodeID: "good"}},
			}},
			Durable: true,
		}
		_ = json.NewEncoder(w).Encode(plan)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	bus := newFakeDirect()
	_, _ = bus.Reply(wire.RequestBlockSubject("bad"), func(payload []byte) []byte {
		resp := wire.BlockResponse{MessageType: wire.MessageBlockResponse, BlockID: "b1", Status: wire.BlockResponseSuccess, BlockData: []byte("corrupted")}
		out, _ := json.Marshal(resp)
		return out
	})
	_, _ = bus.Reply(wire.RequestBlockSubject("good"), func(payload []byte) []byte {
		resp := wire.BlockResponse{MessageType: wire.MessageBlockResponse, BlockID: "b1", Status: wire.BlockResponseSuccess, BlockData: []byte("correct")}
		out, _ := json.Marshal(resp)
		return out
	})

	c := New(srv.URL, "alice", 5, time.Second, bus)
	dir := t.TempDir()
	localOut := filepath.Join(dir, "out.txt")
	require.NoError(t, c.Get(context.Background(), "/a/b", localOut))

	got, err := os.ReadFile(localOut)
	require.NoError(t, err)
	require.Equal(t, []byte("correct"), got)
}

func TestGetFailsWhenAllLocationsExhausted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/download/plan", func(w http.ResponseWriter, r *http.Request) {
		plan := downloadPlan{Blocks: []blockPlacement{{Block: blockDescriptor{BlockID: "b1"}, Locations: nil}}}
		_ = json.NewEncoder(w).Encode(plan)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(srv.URL, "alice", 5, time.Second, newFakeDirect())
	dir := t.TempDir()
	err := c.Get(context.Background(), "/a/b", filepath.Join(dir, "out.txt"))
	require.Error(t, err)
}
