package metastore

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUploadPlanDensity(t *testing.T) {
	s := newTestStore(t)

	session, blocks, err := s.CreateUploadPlan("alice", "/a/b", 11, 5, []string{"h0", "h1", "h2"}, "filehash")
	require.NoError(t, err)
	require.Equal(t, SessionPending, session.Status)
	require.Equal(t, 3, session.TotalBlocks)
	require.Len(t, blocks, 3)

	require.Equal(t, 0, blocks[0].Index)
	require.Equal(t, 1, blocks[1].Index)
	require.Equal(t, 2, blocks[2].Index)
	require.Equal(t, int64(5), blocks[0].Size)
	require.Equal(t, int64(5), blocks[1].Size)
	require.Equal(t, int64(1), blocks[2].Size) // last block shorter than BlockSize

	var total int64
	for _, b := range blocks {
		total += b.Size
	}
	require.Equal(t, int64(11), total)
}

func TestCreateUploadPlanRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	_, _, err = s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.ErrorIs(t, err, griddfserr.ErrAlreadyExists)
}

func TestCreateUploadPlanRejectsMismatchedBlockCount(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CreateUploadPlan("alice", "/a/b", 11, 5, []string{"h0"}, "fh")
	require.ErrorIs(t, err, griddfserr.ErrInvalidInput)
}

func TestRecordStorageConfirmationIdempotent(t *testing.T) {
	s := newTestStore(t)
	session, blocks, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	blockID := blocks[0].BlockID
	require.NoError(t, s.RecordStorageConfirmation(blockID, "n1", "/root/"+blockID, wire.ConfirmationSuccess, ""))
	require.NoError(t, s.RecordStorageConfirmation(blockID, "n1", "/root/"+blockID, wire.ConfirmationSuccess, ""))

	_, placements, err := withHeartbeat(t, s, "n1", session)
	require.NoError(t, err)
	require.Len(t, placements, 1)
	require.Len(t, placements[0].Locations, 1) // replay does not duplicate the location
}

func TestRecordStorageConfirmationCompletesSession(t *testing.T) {
	s := newTestStore(t)
	session, blocks, err := s.CreateUploadPlan("alice", "/a/b", 10, 5, []string{"h0", "h1"}, "fh")
	require.NoError(t, err)
	require.NoError(t, s.RecordHeartbeat("n1", "n1:1", 0, 1000))

	require.NoError(t, s.RecordStorageConfirmation(blocks[0].BlockID, "n1", "p0", wire.ConfirmationSuccess, ""))
	require.NoError(t, s.RecordStorageConfirmation(blocks[1].BlockID, "n1", "p1", wire.ConfirmationSuccess, ""))
	// Second node confirming an already-confirmed block must not double count.
	require.NoError(t, s.RecordHeartbeat("n2", "n2:1", 0, 1000))
	require.NoError(t, s.RecordStorageConfirmation(blocks[1].BlockID, "n2", "p1b", wire.ConfirmationSuccess, ""))

	reports, err := s.SystemStatus(time.Hour)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	var stored UploadSession
	require.NoError(t, s.db.View(func(tx *bolt.Tx) error {
		return json.Unmarshal(tx.Bucket(bucketSessions).Get([]byte(session.UploadID)), &stored)
	}))
	require.Equal(t, SessionCompleted, stored.Status)
	require.Equal(t, 2, stored.CompletedBlocks)
}

func TestRecordStorageConfirmationUnknownBlock(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordStorageConfirmation("does-not-exist", "n1", "p", wire.ConfirmationSuccess, "")
	require.ErrorIs(t, err, griddfserr.ErrNotFound)
}

func TestRecordStorageConfirmationNonSuccessNotCounted(t *testing.T) {
	s := newTestStore(t)
	_, blocks, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)
	require.NoError(t, s.RecordStorageConfirmation(blocks[0].BlockID, "n1", "", wire.ConfirmationDeclined, ""))

	_, placements, err := s.GetDownloadPlan("alice", "/a/b", time.Hour)
	require.NoError(t, err)
	require.Empty(t, placements[0].Locations)
	require.False(t, IsDurable(placements))
}

func TestGetDownloadPlanFiltersDeadNodes(t *testing.T) {
	s := newTestStore(t)
	_, blocks, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)
	require.NoError(t, s.RecordHeartbeat("n1", "addr1", 0, 1000))
	require.NoError(t, s.RecordStorageConfirmation(blocks[0].BlockID, "n1", "p0", wire.ConfirmationSuccess, ""))

	_, placements, err := s.GetDownloadPlan("alice", "/a/b", time.Nanosecond)
	require.NoError(t, err)
	require.Empty(t, placements[0].Locations) // heartbeat now "ancient" relative to a nanosecond interval
}

func TestGetDownloadPlanNotFound(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.GetDownloadPlan("alice", "/missing", time.Hour)
	require.ErrorIs(t, err, griddfserr.ErrNotFound)
}

func TestListPrefixScan(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.CreateUploadPlan("alice", "/a/one", 5, 5, []string{"h"}, "fh")
	require.NoError(t, err)
	_, _, err = s.CreateUploadPlan("alice", "/a/two", 5, 5, []string{"h"}, "fh")
	require.NoError(t, err)
	_, _, err = s.CreateUploadPlan("alice", "/b/three", 5, 5, []string{"h"}, "fh")
	require.NoError(t, err)

	files, err := s.List("alice", "/a/")
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestDeleteCascadesAndIgnoresLateConfirmation(t *testing.T) {
	s := newTestStore(t)
	_, blocks, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	removed, err := s.Delete("alice", "/a/b")
	require.NoError(t, err)
	require.Equal(t, []string{blocks[0].BlockID}, removed)

	_, _, err = s.GetDownloadPlan("alice", "/a/b", time.Hour)
	require.ErrorIs(t, err, griddfserr.ErrNotFound)

	// A confirmation for a deleted file's block is ignored, not fatal.
	err = s.RecordStorageConfirmation(blocks[0].BlockID, "n1", "p", wire.ConfirmationSuccess, "")
	require.ErrorIs(t, err, griddfserr.ErrNotFound)
}

func TestAbortUploadRemovesPreInsertedFile(t *testing.T) {
	s := newTestStore(t)
	session, _, err := s.CreateUploadPlan("alice", "/a/b", 5, 5, []string{"h0"}, "fh")
	require.NoError(t, err)

	require.NoError(t, s.AbortUpload(session.UploadID))

	_, _, err = s.GetDownloadPlan("alice", "/a/b", time.Hour)
	require.ErrorIs(t, err, griddfserr.ErrNotFound)

	err = s.AbortUpload(session.UploadID)
	require.ErrorIs(t, err, griddfserr.ErrSessionTerminal)
}

func TestRecordHeartbeatRegistersUnknownNode(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordHeartbeat("new-node", "10.0.0.1:9000", 10, 1000))

	reports, err := s.SystemStatus(time.Hour)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.Equal(t, "new-node", reports[0].Node.NodeID)
	require.Equal(t, "10.0.0.1:9000", reports[0].Node.Address)
	require.Equal(t, NodeActive, reports[0].Status)
}

func withHeartbeat(t *testing.T, s *Store, nodeID string, _ UploadSession) (File, []BlockPlacement, error) {
	t.Helper()
	require.NoError(t, s.RecordHeartbeat(nodeID, nodeID+":addr", 0, 1000))
	return s.GetDownloadPlan("alice", "/a/b", time.Hour)
}
