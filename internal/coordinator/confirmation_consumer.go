package coordinator

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/transport"
	"github.com/griddfs/griddfs/internal/wire"
	"github.com/griddfs/griddfs/pkg/metrics"
)

// ConfirmationConsumer is one of the coordinator's background workers: it
// subscribes to storage_confirmed messages and applies them to the
// metadata store. It shares no in-memory state with the HTTP handlers —
// every effect is a metastore write, visible to handlers only through the
// store.
type ConfirmationConsumer struct {
	server *Server
	log    zerolog.Logger
}

// NewConfirmationConsumer builds a consumer bound to server.
func NewConfirmationConsumer(server *Server, log zerolog.Logger) *ConfirmationConsumer {
	return &ConfirmationConsumer{server: server, log: log.With().Str("worker", "confirmation_consumer").Logger()}
}

// Start subscribes on bus and returns an unsubscribe func. Safe to call
// once per consumer instance.
func (c *ConfirmationConsumer) Start(bus transport.Fanout) (func(), error) {
	return bus.Subscribe(wire.SubjectStorageConfirmed, c.handle)
}

func (c *ConfirmationConsumer) handle(payload []byte) {
	var msg wire.StorageConfirmed
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed storage_confirmed message")
		return
	}

	metrics.StorageConfirmationsTotal.WithLabelValues(string(msg.Status)).Inc()

	err := c.server.RecordStorageConfirmation(msg.BlockID, msg.NodeID, msg.StoragePath, msg.Status, msg.ErrorMessage)
	switch {
	case err == nil:
		return
	case errors.Is(err, griddfserr.ErrNotFound):
		// Late confirmation for a deleted (or never-existing) file: logged
		// and dropped.
		c.log.Info().Str("block_id", msg.BlockID).Str("node_id", msg.NodeID).Msg("confirmation for unknown block, ignoring")
	default:
		c.log.Error().Err(err).Str("block_id", msg.BlockID).Msg("recording storage confirmation failed")
	}
}
