// Package storage provides the blob provenance collaborator: original
// documents are stored once and referenced from chunks by a stable URL used
// for citation, never for retrieval.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore stores original document blobs and hands out stable URLs.
type BlobStore interface {
	// Put stores the blob under key and returns its public URL. Re-putting
	// the same key overwrites and keeps the URL stable.
	Put(ctx context.Context, key string, r io.Reader) (string, error)

	// Open reads a stored blob.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URL returns the public URL for a key without touching storage.
	URL(key string) string

	// Delete removes a blob. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// LocalBlobStore keeps blobs on the local filesystem under a base directory
// and serves URLs under a configured public prefix.
type LocalBlobStore struct {
	dir     string
	baseURL string
}

var _ BlobStore = (*LocalBlobStore)(nil)

// NewLocalBlobStore creates the blob directory if needed.
func NewLocalBlobStore(dir, baseURL string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &LocalBlobStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// cleanKey rejects keys that would escape the blob directory.
func (s *LocalBlobStore) cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return clean, nil
}

// Put writes the blob via a temp file and rename so readers never observe a
// partial write.
func (s *LocalBlobStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := s.cleanKey(key)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob subdirectory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("close blob %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("publish blob %s: %w", key, err)
	}

	return s.URL(clean), nil
}

// Open reads a stored blob.
func (s *LocalBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := s.cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, clean))
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}
	return f, nil
}

// URL returns the stable public URL for a key.
func (s *LocalBlobStore) URL(key string) string {
	return s.baseURL + "/" + filepath.ToSlash(key)
}

// Delete removes a blob.
func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := s.cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, clean)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

// Dir returns the backing directory, used to mount a static file route.
func (s *LocalBlobStore) Dir() string {
	return s.dir
}
