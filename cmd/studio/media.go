package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/maauso/genmedia-relay/internal/storage"
)

var errInvalidDataURI = errors.New("invalid data URI")

// extensions maps the media types the service produces onto file extensions.
var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
}

// decodeDataURI splits a base64 data URI into its media type and bytes.
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errInvalidDataURI
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errInvalidDataURI
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 || mimeType == "" {
		return "", nil, errInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errInvalidDataURI, err)
	}
	return mimeType, data, nil
}

// extensionFor returns the file extension for a media type.
func extensionFor(mimeType string) string {
	if ext, ok := extensions[mimeType]; ok {
		return ext
	}
	return ".bin"
}

// outputName builds a unique file name with the given prefix.
func outputName(prefix, mimeType string) string {
	return prefix + "-" + uuid.NewString()[:8] + extensionFor(mimeType)
}

// saveDataURI decodes uri and stores it under a unique name.
func saveDataURI(ctx context.Context, store storage.Storage, prefix, uri string) (string, error) {
	mimeType, data, err := decodeDataURI(uri)
	if err != nil {
		return "", err
	}
	return store.Save(ctx, outputName(prefix, mimeType), bytes.NewReader(data))
}

// readImage loads an input image and sniffs its media type.
func readImage(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("%s is not an image (%s)", path, mimeType)
	}
	return data, mimeType, nil
}

// baseName returns the file name of path without its extension.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
