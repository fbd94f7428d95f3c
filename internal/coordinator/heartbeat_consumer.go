package coordinator

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/transport"
	"github.com/griddfs/griddfs/internal/wire"
)

// HeartbeatConsumer is one of the coordinator's background workers: it
// subscribes to heartbeat messages and upserts the reporting node. The
// first heartbeat from an unknown node_id registers it.
type HeartbeatConsumer struct {
	server *Server
	log    zerolog.Logger
}

// NewHeartbeatConsumer builds a consumer bound to server.
func NewHeartbeatConsumer(server *Server, log zerolog.Logger) *HeartbeatConsumer {
	return &HeartbeatConsumer{server: server, log: log.With().Str("worker", "heartbeat_consumer").Logger()}
}

// Start subscribes on bus and returns an unsubscribe func.
func (c *HeartbeatConsumer) Start(bus transport.Fanout) (func(), error) {
	return bus.Subscribe(wire.SubjectHeartbeat, c.handle)
}

func (c *HeartbeatConsumer) handle(payload []byte) {
	var msg wire.Heartbeat
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed heartbeat message")
		return
	}
	if msg.NodeID == "" {
		// A heartbeat with no node_id can never register or update a node;
		// there is no localhost-default fallback.
		c.log.Warn().Msg("discarding heartbeat with empty node_id")
		return
	}
	if err := c.server.RecordHeartbeat(msg.NodeID, msg.Address, msg.StorageUsed, msg.StorageCapacity); err != nil {
		c.log.Error().Err(err).Str("node_id", msg.NodeID).Msg("recording heartbeat failed")
	}
}
