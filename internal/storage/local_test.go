package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentline/internal/storage"
)

func TestLocalStorePut(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "/uploads/")
	require.NoError(t, err)

	url, err := store.Put(ctx, "abc.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStoreRejectsTraversalKeys(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	for _, key := range []string{"", "../etc/passwd", "a/b.png", "..", "dir/"} {
		_, err := store.Put(ctx, key, "text/plain", strings.NewReader("x"))
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir, "/uploads")
	require.NoError(t, err)

	_, err = store.Put(ctx, "gone.pdf", "application/pdf", strings.NewReader("doc"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "gone.pdf"))
	_, statErr := os.Stat(filepath.Join(dir, "gone.pdf"))
	assert.True(t, os.IsNotExist(statErr))

	// deleting an absent blob is not an error
	assert.NoError(t, store.Delete(ctx, "gone.pdf"))
}
