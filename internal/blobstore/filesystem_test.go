package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilesystem(t *testing.T) *Filesystem {
	t.Helper()
	fs, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFilesystemPutGetExists(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "archive/rec-1.json", []byte(`{"id":"rec-1"}`)))

	exists, err := fs.Exists(ctx, "archive/rec-1.json")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := fs.Get(ctx, "archive/rec-1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"rec-1"}`), data)
}

func TestFilesystemGetAbsent(t *testing.T) {
	fs := newTestFilesystem(t)

	_, err := fs.Get(context.Background(), "archive/nope.json")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := fs.Exists(context.Background(), "archive/nope.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFilesystemPutOverwrites(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	require.NoError(t, fs.Put(ctx, "archive/rec-1.json", []byte("v1")))
	require.NoError(t, fs.Put(ctx, "archive/rec-1.json", []byte("v2")))

	data, err := fs.Get(ctx, "archive/rec-1.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestFilesystemRejectsEscapingPaths(t *testing.T) {
	fs := newTestFilesystem(t)
	ctx := context.Background()

	for _, path := range []string{"../outside.json", "a/../../outside.json", "/etc/passwd"} {
		err := fs.Put(ctx, path, []byte("x"))
		assert.Error(t, err, "path %q", path)
	}
}

func TestFilesystemPutLeavesNoTempFilesBehind(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFilesystem(root)
	require.NoError(t, err)

	require.NoError(t, fs.Put(context.Background(), "archive/rec-1.json", []byte("x")))

	entries, err := os.ReadDir(filepath.Join(root, "archive"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rec-1.json", entries[0].Name())
}
