package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoragePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "receipts/b1/r1.pdf", []byte("pdf"), "application/pdf"))

	rc, err := store.Get(ctx, "receipts/b1/r1.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pdf", string(body))

	require.NoError(t, store.Delete(ctx, "receipts/b1/r1.pdf"))
	_, err = store.Get(ctx, "receipts/b1/r1.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../outside.pdf", []byte("x"), "")
	assert.Error(t, err)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "old.pdf", []byte("old"), ""))
	require.NoError(t, store.Put(ctx, "new.pdf", []byte("new"), ""))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.pdf"), past, past))

	deleted, err := store.CleanupOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.pdf"}, deleted)
}
