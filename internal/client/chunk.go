// Package client implements GridDFS's client core: chunking and hashing
// on upload, plan execution and verified retrieval on download.
package client

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Chunk is one fixed-size slice of a file being uploaded, plus its hash.
type Chunk struct {
	Data  []byte
	Hash  string
	Index int
}

// SplitIntoChunks splits data into blockSize-byte chunks, the last of
// which may be shorter, hashing each with SHA-256 hex.
func SplitIntoChunks(data []byte, blockSize int64) []Chunk {
	if blockSize <= 0 {
		blockSize = 1
	}
	var chunks []Chunk
	for i, offset := 0, int64(0); offset < int64(len(data)); i, offset = i+1, offset+blockSize {
		end := offset + blockSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		piece := data[offset:end]
		chunks = append(chunks, Chunk{Index: i, Data: piece, Hash: HashBytes(piece)})
	}
	return chunks
}

// HashBytes returns the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the SHA-256 hex digest of everything r yields.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
