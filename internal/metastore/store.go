package metastore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/exp/slices"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/wire"
)

var (
	bucketFiles       = []byte("files")
	bucketBlocks      = []byte("blocks")
	bucketBlockOrder  = []byte("block_order") // fileKey\x00index -> block_id
	bucketLocations   = []byte("locations")   // block_id\x00node_id -> Location
	bucketNodes       = []byte("nodes")
	bucketSessions    = []byte("sessions")
)

// Store is the bbolt-backed implementation of the coordinator's metadata
// store. Every mutating method runs inside a single db.Update transaction,
// which bbolt serializes against all other writers, giving create-upload-
// plan, record-storage-confirmation, and delete atomicity without a
// separate lock layer.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path and ensures
// every bucket this store needs exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFiles, bucketBlocks, bucketBlockOrder, bucketLocations, bucketNodes, bucketSessions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func blockOrderKey(principal, path string, index int) []byte {
	return []byte(fmt.Sprintf("%s\x00%08d", fileKey(principal, path), index))
}

func locationKey(blockID, nodeID string) []byte {
	return []byte(blockID + "\x00" + nodeID)
}

// CreateUploadPlan atomically inserts a File, a dense zero-based sequence
// of Blocks, and a pending UploadSession. blockSize governs how a block's
// declared size is derived from the file's total size; the caller supplies
// one content hash per block, so the number of blocks is len(blockHashes)
// and must equal ceil(size/blockSize).
func (s *Store) CreateUploadPlan(principal, path string, size, blockSize int64, blockHashes []string, contentHash string) (UploadSession, []Block, error) {
	if principal == "" || path == "" || size <= 0 || blockSize <= 0 {
		return UploadSession{}, nil, griddfserr.ErrInvalidInput
	}
	expectedBlocks := int((size + blockSize - 1) / blockSize)
	if len(blockHashes) != expectedBlocks {
		return UploadSession{}, nil, fmt.Errorf("%w: expected %d block hashes, got %d", griddfserr.ErrInvalidInput, expectedBlocks, len(blockHashes))
	}

	var session UploadSession
	var blocks []Block

	err := s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		key := []byte(fileKey(principal, path))
		if files.Get(key) != nil {
			return griddfserr.ErrAlreadyExists
		}

		now := time.Now().UTC()
		file := File{
			Principal:   principal,
			Path:        path,
			Size:        size,
			ContentHash: contentHash,
			BlockCount:  expectedBlocks,
			CreatedAt:   now,
		}
		if err := putJSON(files, key, file); err != nil {
			return err
		}

		blocksBucket := tx.Bucket(bucketBlocks)
		orderBucket := tx.Bucket(bucketBlockOrder)
		remaining := size
		for i, hash := range blockHashes {
			blockSz := blockSize
			if remaining < blockSize {
				blockSz = remaining
			}
			remaining -= blockSz

			blk := Block{
				BlockID:     uuid.NewString(),
				Principal:   principal,
				Path:        path,
				Index:       i,
				Size:        blockSz,
				ContentHash: hash,
			}
			if err := putJSON(blocksBucket, []byte(blk.BlockID), blk); err != nil {
				return err
			}
			if err := orderBucket.Put(blockOrderKey(principal, path, i), []byte(blk.BlockID)); err != nil {
				return err
			}
			blocks = append(blocks, blk)
		}

		session = UploadSession{
			UploadID:          uuid.NewString(),
			Principal:         principal,
			Path:              path,
			Status:            SessionPending,
			TotalBlocks:        expectedBlocks,
			CompletedBlocks:    0,
			ConfirmedBlockIDs: map[string]bool{},
			CreatedAt:          now,
		}
		return putJSON(tx.Bucket(bucketSessions), []byte(session.UploadID), session)
	})
	if err != nil {
		return UploadSession{}, nil, err
	}
	return session, blocks, nil
}

// RecordStorageConfirmation upserts a Location and, on success, advances
// the owning upload session's CompletedBlocks count — idempotently on
// (block_id, node_id) and deduplicated by distinct block id. A
// confirmation for an unknown block is logged by the caller and ignored
// here (returns ErrNotFound so the caller can decide how to log it).
func (s *Store) RecordStorageConfirmation(blockID, nodeID, storagePath string, status wire.ConfirmationStatus, errMessage string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		blocksBucket := tx.Bucket(bucketBlocks)
		raw := blocksBucket.Get([]byte(blockID))
		if raw == nil {
			return griddfserr.ErrNotFound
		}
		var blk Block
		if err := json.Unmarshal(raw, &blk); err != nil {
			return err
		}

		if status != wire.ConfirmationSuccess {
			// insufficient_space, declined, error: not counted toward
			// completed_blocks; nothing else to persist.
			return nil
		}

		locations := tx.Bucket(bucketLocations)
		lk := locationKey(blockID, nodeID)
		already := locations.Get(lk) != nil
		loc := Location{
			BlockID:     blockID,
			NodeID:      nodeID,
			StoragePath: storagePath,
			Status:      LocationActive,
			ConfirmedAt: time.Now().UTC(),
		}
		if err := putJSON(locations, lk, loc); err != nil {
			return err
		}
		if already {
			// Replaying the same (block_id, node_id) confirmation must
			// leave completed_blocks unchanged.
			return nil
		}

		sessions := tx.Bucket(bucketSessions)
		return forEachSessionForFile(sessions, blk.Principal, blk.Path, func(sess *UploadSession) (bool, error) {
			if sess.Status != SessionPending {
				return false, nil
			}
			if sess.ConfirmedBlockIDs[blockID] {
				return false, nil
			}
			sess.ConfirmedBlockIDs[blockID] = true
			sess.CompletedBlocks++
			if sess.CompletedBlocks >= sess.TotalBlocks {
				sess.Status = SessionCompleted
			}
			return true, nil
		})
	})
}

// forEachSessionForFile scans sessions for the (principal, path) pair and
// applies mutate to the most recent one, persisting it if mutate reports a
// change. Sessions are few and short-lived relative to files, so a scan is
// acceptable; a dedicated index is not worth the complexity at this scale.
func forEachSessionForFile(sessions *bolt.Bucket, principal, path string, mutate func(*UploadSession) (bool, error)) error {
	var target *UploadSession
	var targetKey []byte
	err := sessions.ForEach(func(k, v []byte) error {
		var sess UploadSession
		if err := json.Unmarshal(v, &sess); err != nil {
			return err
		}
		if sess.Principal != principal || sess.Path != path {
			return nil
		}
		if target == nil || sess.CreatedAt.After(target.CreatedAt) {
			s := sess
			target = &s
			targetKey = append([]byte(nil), k...)
		}
		return nil
	})
	if err != nil || target == nil {
		return err
	}
	changed, err := mutate(target)
	if err != nil || !changed {
		return err
	}
	return putJSON(sessions, targetKey, *target)
}

// RecordHeartbeat upserts a storage node's capacity/address bookkeeping.
// The first heartbeat from a previously unknown node_id registers it. The
// coordinator's own clock, not the message timestamp, is used for
// LastHeartbeat to avoid clock-skew-driven liveness flapping.
func (s *Store) RecordHeartbeat(nodeID, address string, used, capacity int64) error {
	if nodeID == "" {
		return griddfserr.ErrInvalidInput
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket(bucketNodes)
		key := []byte(nodeID)

		node := Node{NodeID: nodeID, Address: address, Used: used, Capacity: capacity}
		if raw := nodes.Get(key); raw != nil {
			var existing Node
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if address == "" {
				node.Address = existing.Address
			}
		}
		node.LastHeartbeat = time.Now().UTC()
		return putJSON(nodes, key, node)
	})
}

// NodeDerivedStatus computes a node's liveness status from its last
// heartbeat given the configured heartbeat interval.
func NodeDerivedStatus(n Node, heartbeatInterval time.Duration, now time.Time) NodeStatus {
	age := now.Sub(n.LastHeartbeat)
	switch {
	case age < 3*heartbeatInterval:
		return NodeActive
	case age < 10*heartbeatInterval:
		return NodeStale
	default:
		return NodeDead
	}
}

// BlockPlacement is a block together with its currently active locations
// on currently active nodes, as returned in a download plan.
type BlockPlacement struct {
	Block     Block
	Locations []Location
}

// GetDownloadPlan returns the file's metadata and its blocks in index
// order, each annotated with active locations on active nodes. A block
// with zero qualifying locations is still returned (its Locations slice is
// empty) so the caller can decide between NotDurable and a partial-plan
// response; the liveness filter is enforced here.
func (s *Store) GetDownloadPlan(principal, path string, heartbeatInterval time.Duration) (File, []BlockPlacement, error) {
	var file File
	var placements []BlockPlacement

	err := s.db.View(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		raw := files.Get([]byte(fileKey(principal, path)))
		if raw == nil {
			return griddfserr.ErrNotFound
		}
		if err := json.Unmarshal(raw, &file); err != nil {
			return err
		}
		if file.Tombstoned {
			return griddfserr.ErrNotFound
		}

		now := time.Now().UTC()
		activeNodes := map[string]bool{}
		_ = tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if NodeDerivedStatus(n, heartbeatInterval, now) == NodeActive {
				activeNodes[n.NodeID] = true
			}
			return nil
		})

		order := tx.Bucket(bucketBlockOrder)
		blocks := tx.Bucket(bucketBlocks)
		locations := tx.Bucket(bucketLocations)

		c := order.Cursor()
		prefix := []byte(fileKey(principal, path) + "\x00")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			blockID := string(v)
			var blk Block
			if err := json.Unmarshal(blocks.Get([]byte(blockID)), &blk); err != nil {
				return err
			}

			var locs []Location
			lc := locations.Cursor()
			lprefix := []byte(blockID + "\x00")
			for lk, lv := lc.Seek(lprefix); lk != nil && strings.HasPrefix(string(lk), string(lprefix)); lk, lv = lc.Next() {
				var loc Location
				if err := json.Unmarshal(lv, &loc); err != nil {
					return err
				}
				if loc.Status == LocationActive && activeNodes[loc.NodeID] {
					locs = append(locs, loc)
				}
			}
			placements = append(placements, BlockPlacement{Block: blk, Locations: locs})
		}
		return nil
	})
	if err != nil {
		return File{}, nil, err
	}
	return file, placements, nil
}

// IsDurable reports whether every block in a download plan has at least
// one qualifying location.
func IsDurable(placements []BlockPlacement) bool {
	for _, p := range placements {
		if len(p.Locations) == 0 {
			return false
		}
	}
	return true
}

// List returns every non-tombstoned file owned by principal whose path
// starts with prefix.
func (s *Store) List(principal, prefix string) ([]File, error) {
	var files []File
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var f File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.Principal == principal && !f.Tombstoned && strings.HasPrefix(f.Path, prefix) {
				files = append(files, f)
			}
			return nil
		})
	})
	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Path, b.Path) })
	return files, err
}

// Delete marks the File tombstoned and removes its Blocks and Locations in
// one transaction. It returns the block ids removed so the caller can
// best-effort fan out delete_block messages.
func (s *Store) Delete(principal, path string) ([]string, error) {
	var removedBlockIDs []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		key := []byte(fileKey(principal, path))
		raw := files.Get(key)
		if raw == nil {
			return griddfserr.ErrNotFound
		}
		var file File
		if err := json.Unmarshal(raw, &file); err != nil {
			return err
		}
		if file.Tombstoned {
			return griddfserr.ErrNotFound
		}

		order := tx.Bucket(bucketBlockOrder)
		blocks := tx.Bucket(bucketBlocks)
		locations := tx.Bucket(bucketLocations)

		prefix := []byte(fileKey(principal, path) + "\x00")
		c := order.Cursor()
		var orderKeysToDelete [][]byte
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			blockID := string(v)
			removedBlockIDs = append(removedBlockIDs, blockID)
			orderKeysToDelete = append(orderKeysToDelete, append([]byte(nil), k...))

			lprefix := []byte(blockID + "\x00")
			lc := locations.Cursor()
			var locKeysToDelete [][]byte
			for lk, _ := lc.Seek(lprefix); lk != nil && strings.HasPrefix(string(lk), string(lprefix)); lk, _ = lc.Next() {
				locKeysToDelete = append(locKeysToDelete, append([]byte(nil), lk...))
			}
			for _, lk := range locKeysToDelete {
				if err := locations.Delete(lk); err != nil {
					return err
				}
			}
			if err := blocks.Delete([]byte(blockID)); err != nil {
				return err
			}
		}
		for _, k := range orderKeysToDelete {
			if err := order.Delete(k); err != nil {
				return err
			}
		}

		file.Tombstoned = true
		return putJSON(files, key, file)
	})
	if err != nil {
		return nil, err
	}
	return removedBlockIDs, nil
}

// AbortUpload administratively fails a pending session, also removing the
// File row the create-upload-plan step pre-inserted.
func (s *Store) AbortUpload(uploadID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		key := []byte(uploadID)
		raw := sessions.Get(key)
		if raw == nil {
			return griddfserr.ErrNotFound
		}
		var sess UploadSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return err
		}
		if sess.Status != SessionPending {
			return griddfserr.ErrSessionTerminal
		}
		return failSession(tx, sess)
	})
}

// FailExpiredSessions transitions every pending session whose CreatedAt is
// older than deadline to failed, removing the File row and any blocks and
// locations it pre-inserted, exactly as AbortUpload does. It returns the
// number of sessions failed. Intended to be called on a timer by the
// coordinator process to catch uploads abandoned mid-flight.
func (s *Store) FailExpiredSessions(deadline time.Duration) (int, error) {
	now := time.Now()
	var expired []UploadSession
	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		c := sessions.Cursor()
		for _, v := c.First(); v != nil; _, v = c.Next() {
			var sess UploadSession
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			if sess.Status == SessionPending && now.Sub(sess.CreatedAt) > deadline {
				expired = append(expired, sess)
			}
		}
		for _, sess := range expired {
			if err := failSession(tx, sess); err != nil {
				return err
			}
		}
		return nil
	})
	return len(expired), err
}

// failSession marks sess failed and removes the File row, Blocks, and
// Locations its create-upload-plan step pre-inserted. Callers must have
// already confirmed sess.Status == SessionPending.
func failSession(tx *bolt.Tx, sess UploadSession) error {
	sessions := tx.Bucket(bucketSessions)
	key := []byte(sess.UploadID)
	sess.Status = SessionFailed
	if err := putJSON(sessions, key, sess); err != nil {
		return err
	}

	files := tx.Bucket(bucketFiles)
	fkey := []byte(fileKey(sess.Principal, sess.Path))
	fraw := files.Get(fkey)
	if fraw == nil {
		return nil
	}
	var file File
	if err := json.Unmarshal(fraw, &file); err != nil {
		return err
	}

	order := tx.Bucket(bucketBlockOrder)
	blocks := tx.Bucket(bucketBlocks)
	locations := tx.Bucket(bucketLocations)
	prefix := []byte(fkey)
	prefix = append(prefix, '\x00')
	c := order.Cursor()
	var orderKeys [][]byte
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
		blockID := string(v)
		orderKeys = append(orderKeys, append([]byte(nil), k...))
		lprefix := append([]byte(blockID), '\x00')
		lc := locations.Cursor()
		var locKeys [][]byte
		for lk, _ := lc.Seek(lprefix); lk != nil && strings.HasPrefix(string(lk), string(lprefix)); lk, _ = lc.Next() {
			locKeys = append(locKeys, append([]byte(nil), lk...))
		}
		for _, lk := range locKeys {
			if err := locations.Delete(lk); err != nil {
				return err
			}
		}
		if err := blocks.Delete([]byte(blockID)); err != nil {
			return err
		}
	}
	for _, k := range orderKeys {
		if err := order.Delete(k); err != nil {
			return err
		}
	}
	return files.Delete(fkey)
}

// NodeReport is a per-node capacity/liveness snapshot returned by
// SystemStatus.
type NodeReport struct {
	Node   Node
	Status NodeStatus
}

// SystemStatus returns every known node with its derived liveness status.
func (s *Store) SystemStatus(heartbeatInterval time.Duration) ([]NodeReport, error) {
	var reports []NodeReport
	now := time.Now().UTC()
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			reports = append(reports, NodeReport{Node: n, Status: NodeDerivedStatus(n, heartbeatInterval, now)})
			return nil
		})
	})
	slices.SortFunc(reports, func(a, b NodeReport) int { return strings.Compare(a.Node.NodeID, b.Node.NodeID) })
	return reports, err
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}
