package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Store persists image blobs and returns a URL referencing them. Blob
// storage is a collaborator boundary; the record only keeps the URL.
type Store interface {
	Save(ctx context.Context, uploadID string, content []byte) (string, error)
}

// StoreFunc adapts a function to the Store interface (useful for tests).
type StoreFunc func(ctx context.Context, uploadID string, content []byte) (string, error)

func (f StoreFunc) Save(ctx context.Context, uploadID string, content []byte) (string, error) {
	return f(ctx, uploadID, content)
}

// DetectImageType sniffs the payload and returns the canonical file
// extension for the accepted formats.
func DetectImageType(content []byte) (string, bool) {
	switch http.DetectContentType(content) {
	case "image/jpeg":
		return "jpg", true
	case "image/png":
		return "png", true
	case "image/gif":
		return "gif", true
	default:
		return "", false
	}
}

// FSStore writes blobs under a local directory and serves them from a base
// URL. Default for development.
type FSStore struct {
	dir     string
	baseURL string
}

func NewFSStore(dir, baseURL string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("media directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &FSStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *FSStore) Save(_ context.Context, uploadID string, content []byte) (string, error) {
	ext, ok := DetectImageType(content)
	if !ok {
		return "", fmt.Errorf("unsupported image format")
	}

	name := uploadID + "." + ext
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}
	return s.baseURL + "/" + name, nil
}
