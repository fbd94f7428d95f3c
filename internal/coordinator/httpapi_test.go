package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(principalHeader, "alice")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTPUploadPlanThenDownloadPlanNotDurable(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	mux := NewRouter(srv, zerolog.Nop())

	rec := doJSON(t, mux, http.MethodPost, "/files/upload/plan", uploadPlanRequest{
		Path: "/a/b", Size: 5, BlockHashes: []string{"h0"}, ContentHash: "fh",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var plan uploadPlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	require.Len(t, plan.Blocks, 1)

	rec = doJSON(t, mux, http.MethodGet, "/files/download/plan?path=/a/b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPUploadPlanDuplicateReturnsConflict(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	mux := NewRouter(srv, zerolog.Nop())

	req := uploadPlanRequest{Path: "/a/b", Size: 5, BlockHashes: []string{"h0"}, ContentHash: "fh"}
	rec := doJSON(t, mux, http.MethodPost, "/files/upload/plan", req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/files/upload/plan", req)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHTTPDownloadPlanMissingFileReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	mux := NewRouter(srv, zerolog.Nop())

	rec := doJSON(t, mux, http.MethodGet, "/files/download/plan?path=/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPDeleteThenListEmpty(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	mux := NewRouter(srv, zerolog.Nop())

	doJSON(t, mux, http.MethodPost, "/files/upload/plan", uploadPlanRequest{
		Path: "/a/b", Size: 5, BlockHashes: []string{"h0"}, ContentHash: "fh",
	})

	rec := doJSON(t, mux, http.MethodDelete, "/files?path=/a/b", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/files/list?prefix=/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.JSONEq(t, "null", string(listResp["files"]))
}

func TestHTTPSystemStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.RecordHeartbeat("n1", "addr", 0, 1000))
	mux := NewRouter(srv, zerolog.Nop())

	rec := doJSON(t, mux, http.MethodGet, "/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
