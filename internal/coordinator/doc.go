// Package coordinator implements GridDFS's NameNode role: the namespace,
// the metadata state machine, and the fanout side of block placement.
//
// Architecture:
//
//	┌───────────────────────────────────────────┐
//	│                Coordinator                 │
//	├───────────────────────────────────────────┤
//	│  HTTP API (httpapi.go):                    │
//	│    POST   /files/upload/plan               │
//	│    GET    /files/download/plan             │
//	│    GET    /files/list                      │
//	│    DELETE /files                           │
//	│    GET    /system/status                   │
//	│    POST   /admin/uploads/{id}/abort        │
//	├───────────────────────────────────────────┤
//	│  Server (server.go): request handlers,     │
//	│  all reads/writes through metastore.Store  │
//	├───────────────────────────────────────────┤
//	│  Three background loops, sharing no        │
//	│  in-memory state with the handlers above:  │
//	│    confirmation_consumer.go                │
//	│    heartbeat_consumer.go                   │
//	│    session sweep (Server.RunSessionSweepLoop)│
//	└───────────────────────────────────────────┘
//
// Node liveness is a push model: nodes emit heartbeats, the coordinator
// only ever reacts to them, and liveness is a pure function of the last
// recorded heartbeat (metastore.NodeDerivedStatus) rather than a
// polled-and-cached status computed by a timer on the coordinator side.
// The coordinator never pre-selects a node for a block: placement is
// fanout-and-self-admit, so there is no shard-to-node assignment table to
// maintain here.
package coordinator
