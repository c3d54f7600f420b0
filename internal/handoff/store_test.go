package handoff

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	// Unset reads as empty, not as an error.
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, store.Set(ctx, "optimize this draft"))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "optimize this draft", got)
}

func TestFileStoreLastWriteWins(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "first"))
	require.NoError(t, store.Set(ctx, "second"))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestFileStoreClear(t *testing.T) {
	store := NewFileStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "ephemeral"))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx)) // clearing twice is fine

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestFileStoreCorruptFileReadsEmpty(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{broken"), 0o600))

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestFileStorePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Set(context.Background(), "secretish"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, store.Set(ctx, "from redis"))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from redis", got)

	require.NoError(t, store.Clear(ctx))
	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url")
	require.Error(t, err)
}
