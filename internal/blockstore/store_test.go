package blockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put("block-1", []byte("hello world")))
	data, err := s.Get("block-1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)

	ids, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"block-1"}, ids)
}

func TestFileStoreGetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestFileStoreDeleteMissingIsNotError(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Delete("never-written"))
}

func TestFileStoreListSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)
	require.NoError(t, s.Put("block-a", []byte("x")))
	// A temp file left behind by a crash mid-write.
	require.NoError(t, os.WriteFile(filepath.Join(root, "block-b.tmp-123"), []byte("partial"), 0o600))

	ids, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"block-a"}, ids)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Put("b1", []byte("data")))
	data, err := s.Get("b1")
	require.NoError(t, err)
	require.Equal(t, []byte("data"), data)

	require.NoError(t, s.Delete("b1"))
	_, err = s.Get("b1")
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestMemoryStorePutCopiesData(t *testing.T) {
	s := NewMemoryStore()
	original := []byte("mutate-me")
	require.NoError(t, s.Put("b1", original))
	original[0] = 'X'

	data, err := s.Get("b1")
	require.NoError(t, err)
	require.Equal(t, byte('m'), data[0])
}
