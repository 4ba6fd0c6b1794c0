// Package storage persists generated media.
// It defines the Storage interface (port) and implementations for
// local disk and S3.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrNameRequired is returned when Save is called without a file name.
	ErrNameRequired = errors.New("storage: name is required")
	// ErrInvalidName is returned when a name escapes the storage root.
	ErrInvalidName = errors.New("storage: name must be a relative path inside the store")
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("storage: S3 storage is not configured")
)

// Storage defines where finished media ends up.
type Storage interface {
	// Save stores data under name and returns where it can be found:
	// a file path for local storage, a URL for S3.
	Save(ctx context.Context, name string, data io.Reader) (location string, err error)
}

// cleanName validates a caller-supplied name and normalizes it to a
// slash-separated relative path.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidName
	}
	return cleaned, nil
}

// mediaTypes covers the formats the studio produces; the system table
// is consulted for anything else.
var mediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".txt":  "text/plain; charset=utf-8",
}

// contentType guesses the MIME type from the file extension.
func contentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
