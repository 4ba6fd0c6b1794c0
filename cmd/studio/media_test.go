package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genmedia-relay/internal/storage"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDecodeDataURI(t *testing.T) {
	mimeType, data, err := decodeDataURI("data:image/png;base64,AQID")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, []byte{1, 2, 3}, data)

	for _, bad := range []string{
		"",
		"image/png;base64,AQID",
		"data:image/png;base64",
		"data:image/png,AQID",
		"data:;base64,AQID",
		"data:image/png;base64,!!!",
	} {
		_, _, err := decodeDataURI(bad)
		assert.ErrorIs(t, err, errInvalidDataURI, bad)
	}
}

func TestOutputName(t *testing.T) {
	a := outputName("image", "image/jpeg")
	b := outputName("image", "image/jpeg")

	assert.True(t, strings.HasPrefix(a, "image-"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(outputName("x", "application/x-unknown"), ".bin"))
}

func TestSaveDataURI(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	location, err := saveDataURI(context.Background(), store, "cat-edit", "data:image/webp;base64,AQID")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(location))
	assert.True(t, strings.HasPrefix(filepath.Base(location), "cat-edit-"))
	assert.Equal(t, ".webp", filepath.Ext(location))

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()

	img := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o600))
	data, mimeType, err := readImage(img)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, pngHeader, data)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hello"), 0o600))
	_, _, err = readImage(txt)
	assert.Error(t, err)

	_, _, err = readImage(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "photo", baseName("/tmp/in/photo.png"))
	assert.Equal(t, "archive.tar", baseName("archive.tar.gz"))
}
