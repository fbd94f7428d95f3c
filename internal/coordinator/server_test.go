package coordinator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/metastore"
	"github.com/griddfs/griddfs/internal/wire"
)

// fakeFanout is an in-process transport.Fanout double so coordinator tests
// don't need a real NATS server.
type fakeFanout struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{published: map[string][][]byte{}}
}

func (f *fakeFanout) Publish(_ context.Context, subject string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = append(f.published[subject], payload)
	return nil
}

func (f *fakeFanout) Subscribe(string, func([]byte)) (func(), error) {
	return func() {}, nil
}

func (f *fakeFanout) messages(subject string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[subject]...)
}

func newTestServer(t *testing.T) (*Server, *metastore.Store, *fakeFanout) {
	t.Helper()
	store, err := metastore.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := newFakeFanout()
	srv := New(store, bus, Config{BlockSize: 5, MaxUploadSize: 1 << 30, HeartbeatInterval: time.Minute}, zerolog.Nop())
	return srv, store, bus
}

func TestCreateUploadPlanRequiresActiveNode(t *testing.T) {
	srv, _, _ := newTestServer(t)
	_, err := srv.CreateUploadPlan(context.Background(), "alice", "/a/b", 5, []string{"h0"}, "fh")
	require.ErrorIs(t, err, griddfserr.ErrNoCapacity)
}

func TestCreateUploadPlanAndCommitBlocksPublishesFanout(t *testing.T) {
	srv, store, bus := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))

	plan, err := srv.CreateUploadPlan(context.Background(), "alice", "/a/b", 11, []string{"h0", "h1", "h2"}, "fh")
	require.NoError(t, err)
	require.Len(t, plan.Blocks, 3)

	data := map[string][]byte{
		plan.Blocks[0].BlockID: []byte("hello"),
		plan.Blocks[1].BlockID: []byte(" worl"),
		plan.Blocks[2].BlockID: []byte("d"),
	}
	require.NoError(t, srv.CommitBlocks(context.Background(), plan.UploadID, plan.Blocks, data))

	published := bus.messages(wire.SubjectStoreBlock)
	require.Len(t, published, 3)

	var msg wire.StoreBlock
	require.NoError(t, json.Unmarshal(published[0], &msg))
	require.Equal(t, wire.MessageStoreBlock, msg.MessageType)
	require.Equal(t, []byte("hello"), msg.BlockData)
}

func TestGetDownloadPlanNotDurableStillReturnsPlan(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	plan, err := srv.CreateUploadPlan(context.Background(), "alice", "/a/b", 5, []string{"h0"}, "fh")
	require.NoError(t, err)
	require.Len(t, plan.Blocks, 1)

	download, err := srv.GetDownloadPlan(context.Background(), "alice", "/a/b")
	require.ErrorIs(t, err, griddfserr.ErrNotDurable)
	require.False(t, download.Durable)
	require.Len(t, download.Blocks, 1)
}

func TestDeleteFansOutDeleteBlock(t *testing.T) {
	srv, store, bus := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	_, err := srv.CreateUploadPlan(context.Background(), "alice", "/a/b", 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	require.NoError(t, srv.Delete(context.Background(), "alice", "/a/b"))
	require.Len(t, bus.messages(wire.SubjectDeleteBlock), 1)

	_, err = srv.GetDownloadPlan(context.Background(), "alice", "/a/b")
	require.ErrorIs(t, err, griddfserr.ErrNotFound)
}

func TestAbortUploadRejectsAlreadyTerminal(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	plan, err := srv.CreateUploadPlan(context.Background(), "alice", "/a/b", 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	require.NoError(t, srv.AbortUpload(context.Background(), plan.UploadID))
	require.ErrorIs(t, srv.AbortUpload(context.Background(), plan.UploadID), griddfserr.ErrSessionTerminal)
}
