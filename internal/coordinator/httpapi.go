package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/griddfs/griddfs/internal/griddfserr"
	"github.com/griddfs/griddfs/internal/metastore"
)

// principalHeader carries the caller's identity. This layer trusts
// whatever sits in front of it (a reverse proxy, a sidecar) to have
// authenticated the caller; it does no authentication of its own.
const principalHeader = "X-Griddfs-Principal"

// NewRouter builds the coordinator's REST surface over srv.
func NewRouter(srv *Server, log zerolog.Logger) *http.ServeMux {
	h := &httpHandlers{srv: srv, log: log.With().Str("component", "httpapi").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files/upload/plan", h.handleCreateUploadPlan)
	mux.HandleFunc("POST /files/upload/commit", h.handleCommitBlocks)
	mux.HandleFunc("GET /files/download/plan", h.handleGetDownloadPlan)
	mux.HandleFunc("GET /files/list", h.handleList)
	mux.HandleFunc("DELETE /files", h.handleDelete)
	mux.HandleFunc("GET /system/status", h.handleSystemStatus)
	mux.HandleFunc("POST /admin/uploads/{id}/abort", h.handleAbortUpload)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

type httpHandlers struct {
	srv *Server
	log zerolog.Logger
}

func principal(r *http.Request) string { return r.Header.Get(principalHeader) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, griddfserr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, griddfserr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, griddfserr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, griddfserr.ErrNoCapacity):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, griddfserr.ErrSessionTerminal):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("unhandled coordinator error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
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

func (h *httpHandlers) handleCreateUploadPlan(w http.ResponseWriter, r *http.Request) {
	var req uploadPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	plan, err := h.srv.CreateUploadPlan(r.Context(), principal(r), req.Path, req.Size, req.BlockHashes, req.ContentHash)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := uploadPlanResponse{UploadID: plan.UploadID}
	for _, b := range plan.Blocks {
		resp.Blocks = append(resp.Blocks, blockDescriptor{BlockID: b.BlockID, Index: b.Index, Size: b.Size, ContentHash: b.ContentHash})
	}
	writeJSON(w, http.StatusOK, resp)
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

func (h *httpHandlers) handleCommitBlocks(w http.ResponseWriter, r *http.Request) {
	var req commitBlocksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	blocks := make([]metastore.Block, 0, len(req.Blocks))
	data := make(map[string][]byte, len(req.Blocks))
	for _, b := range req.Blocks {
		blocks = append(blocks, metastore.Block{BlockID: b.BlockID, Index: b.Index, Size: b.Size, ContentHash: b.ContentHash})
		data[b.BlockID] = b.Data
	}

	if err := h.srv.CommitBlocks(r.Context(), req.UploadID, blocks, data); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *httpHandlers) handleGetDownloadPlan(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	plan, err := h.srv.GetDownloadPlan(r.Context(), principal(r), path)
	if err != nil && !errors.Is(err, griddfserr.ErrNotDurable) {
		writeError(w, h.log, err)
		return
	}
	// ErrNotDurable is carried in plan.Durable, not an HTTP failure: the
	// client decides how to react to a missing block.
	writeJSON(w, http.StatusOK, plan)
}

func (h *httpHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	files, err := h.srv.List(r.Context(), principal(r), prefix)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]metastore.File{"files": files})
}

func (h *httpHandlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := h.srv.Delete(r.Context(), principal(r), path); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *httpHandlers) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	reports, err := h.srv.SystemStatus(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]metastore.NodeReport{"nodes": reports})
}

func (h *httpHandlers) handleAbortUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if err := h.srv.AbortUpload(r.Context(), uploadID); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": true})
}
