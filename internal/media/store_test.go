package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_roundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := []byte("image bytes")
	require.NoError(t, store.Write("res-1", "png", data))

	got, err := store.Read("res-1", "png")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, store.Remove("res-1", "png"))
	_, err = store.Read("res-1", "png")
	assert.Error(t, err)
}

func TestValidExtension(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "jpeg", "GIF", "webp2"} {
		assert.True(t, ValidExtension(ext), ext)
	}
	for _, ext := range []string{"", ".", "png.", "png/../../etc", "..", "a/b", `a\b`, "png "} {
		assert.False(t, ValidExtension(ext), ext)
	}
}

func TestStore_rejectsTraversalExtension(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "img")
	store, err := NewStore(dir)
	require.NoError(t, err)

	assert.Error(t, store.Write("resource", "png/../../escaped", []byte("owned")))
	_, err = store.Read("resource", "png/../../escaped")
	assert.Error(t, err)
	assert.Error(t, store.Remove("resource", "png/../../escaped"))

	// Nothing may land outside the store directory
	_, err = os.Stat(filepath.Join(base, "escaped"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContentHash(t *testing.T) {
	a := ContentHash([]byte("same"))
	b := ContentHash([]byte("same"))
	c := ContentHash([]byte("different"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "hex SHA-256")
}
