package agent

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStickers_ScanRegistersNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wave.png"), []byte("png-1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	s, err := LoadStickers(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())

	vision := &fakeVision{}
	n, err := s.Scan(context.Background(), vision)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "[1] a cat\n", s.Prompt())

	// A second scan finds nothing new.
	n, err = s.Scan(context.Background(), vision)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, vision.seen, 1)

	// New files continue the numbering after a reload.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nod.gif"), []byte("gif"), 0o644))
	reloaded, err := LoadStickers(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	n, err = reloaded.Scan(context.Background(), vision)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "[1] a cat\n[2] a cat\n", reloaded.Prompt())
}

func TestStickers_Load(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StickerIndexFile), []byte("\"7\":\n  desc: happy\n  path: a.png\n"), 0o644))

	s, err := LoadStickers(dir)
	require.NoError(t, err)

	data, err := s.Load("7")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("img")), data)

	_, err = s.Load("8")
	assert.ErrorIs(t, err, ErrUnknownSticker)
}

func TestStickers_ScanWithoutVisionFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("img"), 0o644))
	s, err := LoadStickers(dir)
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}
