package wire

import "time"

// MessageType discriminates the transport payloads carried over the
// fanout and direct-request transports.
type MessageType string

const (
	MessageStoreBlock       MessageType = "store_block"
	MessageStorageConfirmed MessageType = "storage_confirmed"
	MessageRequestBlock     MessageType = "request_block"
	MessageBlockResponse    MessageType = "block_response"
	MessageHeartbeat        MessageType = "heartbeat"
	MessageDeleteBlock      MessageType = "delete_block"
)

// ConfirmationStatus is the outcome a data node reports for a store
// attempt.
type ConfirmationStatus string

const (
	ConfirmationSuccess            ConfirmationStatus = "success"
	ConfirmationInsufficientSpace  ConfirmationStatus = "insufficient_space"
	ConfirmationError              ConfirmationStatus = "error"
	ConfirmationDeclined           ConfirmationStatus = "declined"
)

// BlockResponseStatus is the outcome of a direct block request.
type BlockResponseStatus string

const (
	BlockResponseSuccess  BlockResponseStatus = "success"
	BlockResponseNotFound BlockResponseStatus = "not_found"
	BlockResponseError    BlockResponseStatus = "error"
)

// NodeStatus is the liveness status derived from a node's heartbeat
// history.
type NodeStatus string

const (
	NodeActive NodeStatus = "active"
	NodeStale  NodeStatus = "stale"
	NodeDead   NodeStatus = "dead"
)

// StoreBlock is published on the fanout topic once per block, at-least-once,
// delivered to every currently bound data node inbox.
type StoreBlock struct {
	Timestamp   time.Time `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
	BlockID     string    `json:"block_id"`
	UploadID    string    `json:"upload_id"`
	BlockHash   string    `json:"block_hash"`
	BlockData   []byte    `json:"block_data"`
	BlockIndex  int       `json:"block_index"`
	BlockSize   int64     `json:"block_size"`
}

// StorageConfirmed is published by a data node after it has decided
// whether to admit a block, and consumed by the coordinator's
// confirmation consumer loop.
type StorageConfirmed struct {
	Timestamp    time.Time          `json:"timestamp"`
	MessageType  MessageType        `json:"message_type"`
	BlockID      string             `json:"block_id"`
	NodeID       string             `json:"node_id"`
	StoragePath  string             `json:"storage_path"`
	Status       ConfirmationStatus `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// RequestBlock is sent by a client directly to one data node (by subject
// addressing under the bus transport). The reply travels on the
// transport's own reply inbox; ReplyAddress is informational and the
// client core fills it with its ClientID.
type RequestBlock struct {
	Timestamp    time.Time   `json:"timestamp"`
	MessageType  MessageType `json:"message_type"`
	BlockID      string      `json:"block_id"`
	ClientID     string      `json:"client_id"`
	ReplyAddress string      `json:"reply_address"`
}

// BlockResponse answers a RequestBlock, published to exactly the
// requester's reply address.
type BlockResponse struct {
	Timestamp    time.Time           `json:"timestamp"`
	MessageType  MessageType         `json:"message_type"`
	BlockID      string              `json:"block_id"`
	Status       BlockResponseStatus `json:"status"`
	BlockData    []byte              `json:"block_data,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Heartbeat is the periodic self-report a data node emits. It carries
// Address so the coordinator can register a previously unknown node
// without guessing or falling back to a default.
type Heartbeat struct {
	Timestamp        time.Time   `json:"timestamp"`
	MessageType      MessageType `json:"message_type"`
	NodeID           string      `json:"node_id"`
	Address          string      `json:"address"`
	Status           NodeStatus  `json:"status"`
	StorageUsed      int64       `json:"storage_used"`
	StorageCapacity  int64       `json:"storage_capacity"`
	StorageAvailable int64       `json:"storage_available"`
}

// DeleteBlock is a best-effort message published once per removed block on
// the shared delete fanout subject when a file is deleted; every data node
// subscribed to it receives it. Losing one is never a correctness issue.
type DeleteBlock struct {
	Timestamp   time.Time   `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
	BlockID     string      `json:"block_id"`
}
