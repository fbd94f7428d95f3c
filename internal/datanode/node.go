package datanode

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/blockstore"
	"github.com/griddfs/griddfs/internal/placement"
)

// Node is a storage node's runtime state: its block store, its admission
// policy, and its capacity accounting.
type Node struct {
	NodeID   string
	Address  string
	store    blockstore.Store
	policy   placement.Policy
	capacity int64
	log      zerolog.Logger

	mu   sync.Mutex
	used int64
}

// New builds a Node over an already-open block store. capacity is the
// advertised total capacity in bytes; used is seeded from a recovery scan
// by the caller (see Recover).
func New(nodeID, address string, store blockstore.Store, policy placement.Policy, capacity int64, log zerolog.Logger) *Node {
	return &Node{
		NodeID:   nodeID,
		Address:  address,
		store:    store,
		policy:   policy,
		capacity: capacity,
		log:      log.With().Str("node_id", nodeID).Logger(),
	}
}

// Recover scans the block store and sets the used-bytes counter to the sum
// of stored block sizes. Blocks whose bytes cannot be read are deleted; the
// coordinator learns of their absence only when it next requests one and
// gets not-found.
func (n *Node) Recover() error {
	ids, err := n.store.List()
	if err != nil {
		return err
	}

	var total int64
	for _, id := range ids {
		data, err := n.store.Get(id)
		if err != nil {
			n.log.Warn().Str("block_id", id).Err(err).Msg("dropping unreadable block during recovery")
			_ = n.store.Delete(id)
			continue
		}
		total += int64(len(data))
	}

	n.mu.Lock()
	n.used = total
	n.mu.Unlock()

	n.log.Info().Int("blocks", len(ids)).Int64("used_bytes", total).Msg("recovery scan complete")
	return nil
}

// Usage returns the current used and total capacity in bytes.
func (n *Node) Usage() (used, capacity int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.used, n.capacity
}

// StoreOutcome is the result of an admission attempt, mirroring
// wire.ConfirmationStatus without importing the wire package here — node
// logic stays agnostic of the transport encoding.
type StoreOutcome struct {
	Decision    placement.Decision
	HashMatched bool
	StoragePath string
}

// StoreBlock verifies the block hash, runs the admission policy, and on
// acceptance, persists with the counter
// updated under the same lock the policy decision was made with, so two
// concurrent stores can't both pass the capacity check against the same
// stale used value.
func (n *Node) StoreBlock(blockID string, data []byte, expectedHash string) StoreOutcome {
	actualHash := sha256Hex(data)
	if actualHash != expectedHash {
		n.log.Warn().Str("block_id", blockID).Msg("hash mismatch on store, refusing")
		return StoreOutcome{HashMatched: false}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	_, getErr := n.store.Get(blockID)
	present := getErr == nil

	decision := n.policy.Evaluate(present, int64(len(data)), n.used, n.capacity)
	if decision != placement.Accept {
		return StoreOutcome{HashMatched: true, Decision: decision}
	}

	if err := n.store.Put(blockID, data); err != nil {
		n.log.Error().Err(err).Str("block_id", blockID).Msg("writing block failed")
		return StoreOutcome{HashMatched: true, Decision: placement.DeclineNoSpace}
	}
	if !present {
		n.used += int64(len(data))
	}
	return StoreOutcome{HashMatched: true, Decision: placement.Accept, StoragePath: blockID}
}

// RequestBlock returns raw bytes without re-verifying the hash (the node
// trusts its own storage; hash verification is the client's responsibility
// on the read path).
func (n *Node) RequestBlock(blockID string) ([]byte, error) {
	return n.store.Get(blockID)
}

// DeleteBlock best-effort removes a block by id, accounting for freed
// space. Deleting an absent block is not an error.
func (n *Node) DeleteBlock(blockID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	data, err := n.store.Get(blockID)
	if err == nil {
		n.used -= int64(len(data))
		if n.used < 0 {
			n.used = 0
		}
	}
	return n.store.Delete(blockID)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
