package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/metastore"
	"github.com/griddfs/griddfs/internal/transport"
	"github.com/griddfs/griddfs/internal/wire"
	"github.com/griddfs/griddfs/pkg/metrics"
)

// Server is the coordinator's business logic: every metadata mutation
// flows through store, and every block distribution flows through bus's
// fanout publish. It holds no in-memory session/node state of its own:
// the background consumer loops and the HTTP handlers share no state
// except what both read and write through the metadata store.
type Server struct {
	store             *metastore.Store
	bus               transport.Fanout
	log               zerolog.Logger
	blockSize         int64
	maxUploadSize     int64
	heartbeatInterval time.Duration
	sessionDeadline   time.Duration
}

// Config bundles the tunables Server needs at construction, pulled from
// pkg/config.Config by the cmd/coordinator entrypoint.
type Config struct {
	BlockSize         int64
	MaxUploadSize     int64
	HeartbeatInterval time.Duration
	SessionDeadline   time.Duration
}

// New builds a coordinator Server over an already-open metadata store and
// an already-connected fanout bus.
func New(store *metastore.Store, bus transport.Fanout, cfg Config, log zerolog.Logger) *Server {
	return &Server{
		store:             store,
		bus:               bus,
		log:               log,
		blockSize:         cfg.BlockSize,
		maxUploadSize:     cfg.MaxUploadSize,
		heartbeatInterval: cfg.HeartbeatInterval,
		sessionDeadline:   cfg.SessionDeadline,
	}
}

// RunSessionSweepLoop periodically fails every pending upload session whose
// deadline has elapsed with unconfirmed blocks, until ctx is cancelled. One
// failed sweep is logged and skipped, not fatal: the next tick retries.
func (s *Server) RunSessionSweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweepExpiredSessions()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpiredSessions()
		}
	}
}

func (s *Server) sweepExpiredSessions() {
	n, err := s.store.FailExpiredSessions(s.sessionDeadline)
	if err != nil {
		s.log.Warn().Err(err).Msg("session deadline sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("failed expired upload sessions")
	}
}

// UploadPlan is the descriptor returned to a client after create-upload-plan.
type UploadPlan struct {
	UploadID string             `json:"upload_id"`
	Blocks   []metastore.Block  `json:"blocks"`
}

// CreateUploadPlan validates the request, checks for at least one active
// storage node, then atomically inserts the File, Blocks, and pending
// Session.
func (s *Server) CreateUploadPlan(ctx context.Context, principal, path string, size int64, blockHashes []string, contentHash string) (UploadPlan, error) {
	if size <= 0 {
		metrics.UploadPlansTotal.WithLabelValues("invalid_input").Inc()
		return UploadPlan{}, fmt.Errorf("%w: size must be positive", griddfserr.ErrInvalidInput)
	}
	if size > s.maxUploadSize {
		metrics.UploadPlansTotal.WithLabelValues("invalid_input").Inc()
		return UploadPlan{}, fmt.Errorf("%w: size %d exceeds max_upload_size %d", griddfserr.ErrInvalidInput, size, s.maxUploadSize)
	}

	reports, err := s.store.SystemStatus(s.heartbeatInterval)
	if err != nil {
		metrics.UploadPlansTotal.WithLabelValues("fatal").Inc()
		return UploadPlan{}, fmt.Errorf("%w: %v", griddfserr.ErrFatal, err)
	}
	if !hasActiveNode(reports) {
		metrics.UploadPlansTotal.WithLabelValues("no_capacity").Inc()
		return UploadPlan{}, griddfserr.ErrNoCapacity
	}

	session, blocks, err := s.store.CreateUploadPlan(principal, path, size, s.blockSize, blockHashes, contentHash)
	if err != nil {
		metrics.UploadPlansTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return UploadPlan{}, err
	}
	metrics.UploadPlansTotal.WithLabelValues("created").Inc()
	return UploadPlan{UploadID: session.UploadID, Blocks: blocks}, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	default:
		return "error"
	}
}

func hasActiveNode(reports []metastore.NodeReport) bool {
	for _, r := range reports {
		if r.Status == metastore.NodeActive {
			return true
		}
	}
	return false
}

// CommitBlocks owns the fan-out, publishing one store_block message per
// block. It returns as soon as every publish has been accepted by the
// transport; durability is observed later via the session, not waited on
// here.
func (s *Server) CommitBlocks(ctx context.Context, uploadID string, blocks []metastore.Block, blockData map[string][]byte) error {
	for _, blk := range blocks {
		data, ok := blockData[blk.BlockID]
		if !ok {
			return fmt.Errorf("%w: missing bytes for block %s", griddfserr.ErrInvalidInput, blk.BlockID)
		}
		msg := wire.StoreBlock{
			Timestamp:   time.Now().UTC(),
			MessageType: wire.MessageStoreBlock,
			BlockID:     blk.BlockID,
			UploadID:    uploadID,
			BlockHash:   blk.ContentHash,
			BlockData:   data,
			BlockIndex:  blk.Index,
			BlockSize:   blk.Size,
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if err := s.bus.Publish(ctx, wire.SubjectStoreBlock, payload); err != nil {
			// A transport failure here means this block was never offered
			// to anyone, so the commit fails at this block and the blocks
			// after it are not published.
			s.log.Warn().Err(err).Str("block_id", blk.BlockID).Msg("publish store_block failed")
			return err
		}
	}
	return nil
}

// DownloadPlan is the descriptor returned to a client for get-download-plan.
type DownloadPlan struct {
	File    metastore.File              `json:"file"`
	Blocks  []metastore.BlockPlacement  `json:"blocks"`
	Durable bool                        `json:"durable"`
}

// GetDownloadPlan resolves path to its blocks and live storage locations,
// reporting whether every block currently has at least one durable copy.
func (s *Server) GetDownloadPlan(ctx context.Context, principal, path string) (DownloadPlan, error) {
	file, placements, err := s.store.GetDownloadPlan(principal, path, s.heartbeatInterval)
	if err != nil {
		metrics.DownloadPlansTotal.WithLabelValues("error").Inc()
		return DownloadPlan{}, err
	}
	durable := metastore.IsDurable(placements)
	plan := DownloadPlan{File: file, Blocks: placements, Durable: durable}
	if !durable {
		metrics.DownloadPlansTotal.WithLabelValues("not_durable").Inc()
		return plan, griddfserr.ErrNotDurable
	}
	metrics.DownloadPlansTotal.WithLabelValues("durable").Inc()
	return plan, nil
}

// List returns a prefix scan over principal's files.
func (s *Server) List(ctx context.Context, principal, prefix string) ([]metastore.File, error) {
	return s.store.List(principal, prefix)
}

// Delete removes path from the namespace, then best-effort fans out a
// delete_block message per removed block id. A publish failure here is
// logged, never returned: losing a delete hint is never a correctness
// issue (the block is already unreachable through the namespace).
func (s *Server) Delete(ctx context.Context, principal, path string) error {
	blockIDs, err := s.store.Delete(principal, path)
	if err != nil {
		return err
	}
	for _, blockID := range blockIDs {
		msg := wire.DeleteBlock{Timestamp: time.Now().UTC(), MessageType: wire.MessageDeleteBlock, BlockID: blockID}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.log.Warn().Err(err).Msg("marshal delete_block failed")
			continue
		}
		if err := s.bus.Publish(ctx, wire.SubjectDeleteBlock, payload); err != nil {
			s.log.Warn().Err(err).Str("block_id", blockID).Msg("publish delete_block failed")
		}
	}
	return nil
}

// AbortUpload administratively fails a pending upload session.
func (s *Server) AbortUpload(ctx context.Context, uploadID string) error {
	return s.store.AbortUpload(uploadID)
}

// SystemStatus reports every known node's derived liveness and capacity.
func (s *Server) SystemStatus(ctx context.Context) ([]metastore.NodeReport, error) {
	reports, err := s.store.SystemStatus(s.heartbeatInterval)
	if err != nil {
		return nil, err
	}
	metrics.ActiveNodes.Set(float64(countActive(reports)))
	return reports, nil
}

func countActive(reports []metastore.NodeReport) int {
	n := 0
	for _, r := range reports {
		if r.Status == metastore.NodeActive {
			n++
		}
	}
	return n
}

// RecordStorageConfirmation applies a data node's store_block outcome to
// the metadata store, invoked by the confirmation consumer loop.
func (s *Server) RecordStorageConfirmation(blockID, nodeID, storagePath string, status wire.ConfirmationStatus, errMessage string) error {
	return s.store.RecordStorageConfirmation(blockID, nodeID, storagePath, status, errMessage)
}

// RecordHeartbeat upserts a node's liveness and capacity, invoked by the
// heartbeat consumer loop.
func (s *Server) RecordHeartbeat(nodeID, address string, used, capacity int64) error {
	return s.store.RecordHeartbeat(nodeID, address, used, capacity)
}
