package datanode

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/placement"
	"github.com/griddfs/griddfs/internal/transport"
	"github.com/griddfs/griddfs/internal/wire"
	"github.com/griddfs/griddfs/pkg/metrics"
)

// Workers bundles the concurrent workers a running data node needs: a
// store-consumer, a request-consumer, a delete-consumer, and a heartbeat
// ticker. Each is independent and MAY run in its own goroutine; they share
// no state beyond the Node (its block store and mutex-protected counter).
type Workers struct {
	node *Node
	bus  transport.Bus
	log  zerolog.Logger
}

// NewWorkers binds the four workers to node and bus.
func NewWorkers(node *Node, bus transport.Bus, log zerolog.Logger) *Workers {
	return &Workers{node: node, bus: bus, log: log.With().Str("node_id", node.NodeID).Logger()}
}

// StartStoreConsumer subscribes to store_block fanout messages and applies
// each to the node's admission policy, confirming the outcome on the
// storage_confirmed subject.
func (w *Workers) StartStoreConsumer() (func(), error) {
	return w.bus.Subscribe(wire.SubjectStoreBlock, w.handleStoreBlock)
}

func (w *Workers) handleStoreBlock(payload []byte) {
	var msg wire.StoreBlock
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.log.Warn().Err(err).Msg("discarding malformed store_block message")
		return
	}

	outcome := w.node.StoreBlock(msg.BlockID, msg.BlockData, msg.BlockHash)

	confirmation := wire.StorageConfirmed{
		Timestamp: time.Now().UTC(),
		MessageType: wire.MessageStorageConfirmed,
		BlockID:     msg.BlockID,
		NodeID:      w.node.NodeID,
	}

	switch {
	case !outcome.HashMatched:
		confirmation.Status = wire.ConfirmationError
		confirmation.ErrorMessage = "hash mismatch"
		metrics.BlocksStoredTotal.WithLabelValues("hash_mismatch").Inc()
	case outcome.Decision == placement.Accept:
		confirmation.Status = wire.ConfirmationSuccess
		confirmation.StoragePath = outcome.StoragePath
		metrics.BlocksStoredTotal.WithLabelValues("accepted").Inc()
	case outcome.Decision == placement.DeclineNoSpace:
		confirmation.Status = wire.ConfirmationInsufficientSpace
		metrics.BlocksStoredTotal.WithLabelValues("insufficient_space").Inc()
	default:
		confirmation.Status = wire.ConfirmationDeclined
		metrics.BlocksStoredTotal.WithLabelValues("declined").Inc()
	}

	used, _ := w.node.Usage()
	metrics.StorageUsedBytes.Set(float64(used))

	data, err := json.Marshal(confirmation)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal storage_confirmed failed")
		return
	}
	if err := w.bus.Publish(context.Background(), wire.SubjectStorageConfirmed, data); err != nil {
		w.log.Warn().Err(err).Str("block_id", msg.BlockID).Msg("publish storage_confirmed failed")
	}
}

// StartRequestConsumer subscribes to this node's direct request subject and
// answers each request_block with a block_response.
func (w *Workers) StartRequestConsumer() (func(), error) {
	subject := wire.RequestBlockSubject(w.node.NodeID)
	return w.bus.Reply(subject, w.handleRequestBlock)
}

func (w *Workers) handleRequestBlock(payload []byte) []byte {
	var req wire.RequestBlock
	resp := wire.BlockResponse{Timestamp: time.Now().UTC(), MessageType: wire.MessageBlockResponse}

	if err := json.Unmarshal(payload, &req); err != nil {
		w.log.Warn().Err(err).Msg("discarding malformed request_block message")
		resp.Status = wire.BlockResponseError
		resp.ErrorMessage = "malformed request"
		data, _ := json.Marshal(resp)
		return data
	}
	resp.BlockID = req.BlockID

	data, err := w.node.RequestBlock(req.BlockID)
	switch {
	case err == nil:
		resp.Status = wire.BlockResponseSuccess
		resp.BlockData = data
		metrics.BlockRequestsTotal.WithLabelValues("success").Inc()
	default:
		resp.Status = wire.BlockResponseNotFound
		resp.ErrorMessage = err.Error()
		metrics.BlockRequestsTotal.WithLabelValues("not_found").Inc()
	}

	out, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		w.log.Error().Err(marshalErr).Msg("marshal block_response failed")
		return nil
	}
	return out
}

// StartDeleteConsumer subscribes to best-effort delete_block fanout
// messages.
func (w *Workers) StartDeleteConsumer() (func(), error) {
	return w.bus.Subscribe(wire.SubjectDeleteBlock, w.handleDeleteBlock)
}

func (w *Workers) handleDeleteBlock(payload []byte) {
	var msg wire.DeleteBlock
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.log.Warn().Err(err).Msg("discarding malformed delete_block message")
		return
	}
	if err := w.node.DeleteBlock(msg.BlockID); err != nil {
		w.log.Warn().Err(err).Str("block_id", msg.BlockID).Msg("deleting block failed")
	}
}

// RunHeartbeatLoop emits a heartbeat on interval until ctx is cancelled.
// Each heartbeat is independent; a publish failure is logged and does not
// stop the loop — losing one heartbeat is tolerated since the next tick
// will supersede it.
func (w *Workers) RunHeartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.emitHeartbeat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.emitHeartbeat(ctx)
		}
	}
}

func (w *Workers) emitHeartbeat(ctx context.Context) {
	used, capacity := w.node.Usage()
	hb := wire.Heartbeat{
		Timestamp:        time.Now().UTC(),
		MessageType:      wire.MessageHeartbeat,
		NodeID:           w.node.NodeID,
		Address:          w.node.Address,
		Status:           wire.NodeActive,
		StorageUsed:      used,
		StorageCapacity:  capacity,
		StorageAvailable: capacity - used,
	}
	metrics.StorageUsedBytes.Set(float64(used))
	metrics.StorageCapacityBytes.Set(float64(capacity))

	data, err := json.Marshal(hb)
	if err != nil {
		w.log.Error().Err(err).Msg("marshal heartbeat failed")
		return
	}
	if err := w.bus.Publish(ctx, wire.SubjectHeartbeat, data); err != nil {
		w.log.Warn().Err(err).Msg("publish heartbeat failed")
	}
}
