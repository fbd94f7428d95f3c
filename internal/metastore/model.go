// Package metastore owns the coordinator's durable view of the namespace:
// files, blocks, locations, storage nodes, and upload sessions. It is the
// single place metadata mutations happen, backed by bbolt so that the
// compound operations the core requires to be serializable (create an
// upload plan, record a confirmation, delete a file) get that for free
// from bbolt's single-writer transactions, one bucket per entity.
package metastore

import "time"

// LocationStatus is the lifecycle state of a block's claim on a node.
type LocationStatus string

const (
	LocationActive     LocationStatus = "active"
	LocationTombstoned LocationStatus = "tombstoned"
)

// NodeStatus is the liveness status derived from a node's heartbeat
// history.
type NodeStatus string

const (
	NodeActive NodeStatus = "active"
	NodeStale  NodeStatus = "stale"
	NodeDead   NodeStatus = "dead"
)

// SessionStatus is the upload session state machine: pending ->
// {completed, failed}, never back.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// File is the namespace entry `(principal, path) -> (size, content-hash,
// created-at)`. Unique on (Principal, Path); immutable after successful
// upload.
type File struct {
	CreatedAt    time.Time `json:"created_at"`
	Principal    string    `json:"principal"`
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	Size         int64     `json:"size"`
	BlockCount   int       `json:"block_count"`
	Tombstoned   bool      `json:"tombstoned"`
}

// Key identifies a File by its unique (principal, path) pair.
func (f File) Key() string { return fileKey(f.Principal, f.Path) }

// Block is `(block_id, file, index, size, content-hash)`, unique on
// (file, index). BlockID is a globally unique opaque token minted by the
// coordinator at plan time; immutable thereafter.
type Block struct {
	BlockID     string `json:"block_id"`
	Principal   string `json:"principal"`
	Path        string `json:"path"`
	Index       int    `json:"index"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}

// Location is a claim that NodeID currently holds BlockID on local disk.
// Unique on (BlockID, NodeID); created on storage confirmation, removed
// with its block.
type Location struct {
	ConfirmedAt time.Time      `json:"confirmed_at"`
	BlockID     string         `json:"block_id"`
	NodeID      string         `json:"node_id"`
	StoragePath string         `json:"storage_path"`
	Status      LocationStatus `json:"status"`
}

// Node is a storage node's coordinator-side bookkeeping record, created on
// first heartbeat. Status is always recomputed from LastHeartbeat at read
// time rather than stored as authoritative.
type Node struct {
	LastHeartbeat time.Time `json:"last_heartbeat"`
	NodeID        string    `json:"node_id"`
	Address       string    `json:"address"`
	Capacity      int64     `json:"capacity"`
	Used          int64     `json:"used"`
}

// UploadSession tracks confirmations for one client upload. CompletedBlocks
// counts distinct confirmed block ids, never duplicate confirmations from
// different nodes for the same block.
type UploadSession struct {
	CreatedAt       time.Time     `json:"created_at"`
	UploadID        string        `json:"upload_id"`
	Principal       string        `json:"principal"`
	Path            string        `json:"path"`
	Status          SessionStatus `json:"status"`
	TotalBlocks     int           `json:"total_blocks"`
	CompletedBlocks int           `json:"completed_blocks"`
	// ConfirmedBlockIDs dedupes confirmations by block id so that a block
	// confirmed by two nodes counts once toward CompletedBlocks.
	ConfirmedBlockIDs map[string]bool `json:"confirmed_block_ids"`
}

func fileKey(principal, path string) string { return principal + "\x00" + path }
