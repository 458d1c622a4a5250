package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, Missing)

	require.NoError(t, store.Set(ctx, "a.png_config.json", []byte("first")))
	data, err := store.Get(ctx, "a.png_config.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	// Overwrite
	require.NoError(t, store.Set(ctx, "a.png_config.json", []byte("second")))
	data, err = store.Get(ctx, "a.png_config.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func TestFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "configs")
	testStore(t, FSStore(dir))

	// Keys never escape the store directory
	store := FSStore(dir)
	require.NoError(t, store.Set(context.Background(), "../escape", []byte("x")))
	assert.True(t, FileExists(filepath.Join(dir, "escape")))
	assert.False(t, FileExists(filepath.Join(filepath.Dir(dir), "escape")))
}

func TestSQLStore(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "renderer.db"))
	require.NoError(t, err)
	testStore(t, NewSQLStore(db))
}

func TestWriteStream(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "map.png")

	require.NoError(t, WriteStream(bytes.NewReader([]byte("png")), target))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.False(t, FileExists(dir))
}
