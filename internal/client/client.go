package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/transport"
	"github.com/griddfs/griddfs/internal/wire"
)

// Client is GridDFS's client core: it talks to the coordinator over HTTP
// for planning/namespace operations and to data nodes over the direct
// transport for block bytes.
type Client struct {
	CoordinatorURL string
	Principal      string
	ClientID       string
	BlockSize      int64
	RequestTimeout time.Duration
	Bus            transport.Direct
}

// New builds a Client. ClientID is set to a fresh uuid.
func New(coordinatorURL, principal string, blockSize int64, requestTimeout time.Duration, bus transport.Direct) *Client {
	return &Client{
		CoordinatorURL: coordinatorURL,
		Principal:      principal,
		ClientID:       uuid.NewString(),
		BlockSize:      blockSize,
		RequestTimeout: requestTimeout,
		Bus:            bus,
	}
}

type uploadPlanRequest struct {
	Path        string   `json:"path"`
	BlockHashes []string `json:"block_hashes"`
	ContentHash string   `json:"content_hash"`
	Size        int64    `json:"size"`
}

type blockDescriptor struct {
	BlockID     string `json:"block_id"`
	ContentHash string `json:"content_hash"`
	Index       int    `json:"index"`
	Size        int64  `json:"size"`
}

type uploadPlanResponse struct {
	UploadID string            `json:"upload_id"`
	Blocks   []blockDescriptor `json:"blocks"`
}

type commitBlockData struct {
	BlockID     string `json:"block_id"`
	ContentHash string `json:"content_hash"`
	Data        []byte `json:"data"`
	Index       int    `json:"index"`
	Size        int64  `json:"size"`
}

type commitBlocksRequest struct {
	UploadID string            `json:"upload_id"`
	Blocks   []commitBlockData `json:"blocks"`
}

// Put reads localPath, splits it into blocks, computes hashes, obtains an
// upload plan, and commits the block bytes. It returns the upload_id and
// does not wait for durability.
func (c *Client) Put(ctx context.Context, localPath, remotePath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	chunks := SplitIntoChunks(data, c.BlockSize)
	blockHashes := make([]string, len(chunks))
	for i, ch := range chunks {
		blockHashes[i] = ch.Hash
	}
	fileHash := HashBytes(data)

	var plan uploadPlanResponse
	planReq := uploadPlanRequest{Path: remotePath, Size: int64(len(data)), BlockHashes: blockHashes, ContentHash: fileHash}
	if err := c.postJSON(ctx, "/files/upload/plan", planReq, &plan); err != nil {
		return "", err
	}
	if len(plan.Blocks) != len(chunks) {
		return "", fmt.Errorf("%w: coordinator returned %d blocks for %d chunks", griddfserr.ErrInvalidInput, len(plan.Blocks), len(chunks))
	}

	commitReq := commitBlocksRequest{UploadID: plan.UploadID}
	for i, blk := range plan.Blocks {
		commitReq.Blocks = append(commitReq.Blocks, commitBlockData{
			BlockID:     blk.BlockID,
			Index:       blk.Index,
			Size:        blk.Size,
			ContentHash: blk.ContentHash,
			Data:        chunks[i].Data,
		})
	}
	if err := c.postJSON(ctx, "/files/upload/commit", commitReq, nil); err != nil {
		return "", err
	}

	return plan.UploadID, nil
}

type locationDescriptor struct {
	NodeID      string `json:"node_id"`
	StoragePath string `json:"storage_path"`
}

type blockPlacement struct {
	Block     blockDescriptor      `json:"Block"`
	Locations []locationDescriptor `json:"Locations"`
}

type downloadPlan struct {
	Blocks  []blockPlacement `json:"blocks"`
	Durable bool             `json:"durable"`
}

// Get fetches the download plan, then for each block in index order tries
// its locations in turn via the direct transport until one returns
// hash-verified bytes, writing sequentially to localPath. Fails with
// ErrUnavailableBlock if a block exhausts every location.
func (c *Client) Get(ctx context.Context, remotePath, localPath string) error {
	var plan downloadPlan
	if err := c.getJSON(ctx, "/files/download/plan?path="+remotePath, &plan); err != nil {
		return err
	}

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, bp := range plan.Blocks {
		data, err := c.fetchBlock(ctx, bp)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) fetchBlock(ctx context.Context, bp blockPlacement) ([]byte, error) {
	for _, loc := range bp.Locations {
		reqCtx, cancel := context.WithTimeout(ctx, c.RequestTimeout)
		data, err := c.requestBlockFrom(reqCtx, loc.NodeID, bp.Block.BlockID)
		cancel()
		if err != nil {
			continue
		}
		if HashBytes(data) != bp.Block.ContentHash {
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: block %s", griddfserr.ErrUnavailableBlock, bp.Block.BlockID)
}

func (c *Client) requestBlockFrom(ctx context.Context, nodeID, blockID string) ([]byte, error) {
	req := wire.RequestBlock{
		Timestamp:    time.Now().UTC(),
		MessageType:  wire.MessageRequestBlock,
		BlockID:      blockID,
		ClientID:     c.ClientID,
		ReplyAddress: c.ClientID, // informational; the bus manages the real reply inbox.
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	respPayload, err := c.Bus.Request(ctx, wire.RequestBlockSubject(nodeID), payload)
	if err != nil {
		return nil, err
	}

	var resp wire.BlockResponse
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != wire.BlockResponseSuccess {
		return nil, fmt.Errorf("%w: %s", griddfserr.ErrUnavailableBlock, resp.ErrorMessage)
	}
	return resp.BlockData, nil
}

// List returns every file under prefix visible to the client's principal.
func (c *Client) List(ctx context.Context, prefix string) ([]json.RawMessage, error) {
	var resp struct {
		Files []json.RawMessage `json:"files"`
	}
	if err := c.getJSON(ctx, "/files/list?prefix="+prefix, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Delete removes remotePath from the namespace.
func (c *Client) Delete(ctx context.Context, remotePath string) error {
	return c.deleteJSON(ctx, "/files?path="+remotePath, nil)
}
