// Package datanode implements GridDFS's DataNode role: it persists blocks
// by id, serves them on request, and emits heartbeats. It is deliberately
// stateless beyond the filesystem and the heartbeat ticker — it never
// learns which files its blocks belong to.
//
// Four logical workers run concurrently, one per responsibility:
//   - a store-consumer, reacting to fanned-out store_block messages
//   - a request-consumer, answering direct block requests
//   - a delete-consumer, applying best-effort delete_block messages
//   - a heartbeat ticker, self-reporting on a fixed interval
//
// The only shared mutable state between them is the Node's used-bytes
// counter, protected by a mutex, and the block store itself, whose
// atomicity comes from rename-on-close (internal/blockstore).
package datanode
