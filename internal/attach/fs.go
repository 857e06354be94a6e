package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FSBlobStore keeps blobs under a local directory.
type FSBlobStore struct {
	root string
}

// NewFSBlobStore creates root if needed.
func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if err := os.MkdirAll(filepath.Join(root, "tmp"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSBlobStore{root: root}, nil
}

// Backend reports "fs".
func (s *FSBlobStore) Backend() string { return "fs" }

// Put writes r to a temp file, then renames it into place, so readers never
// see a partial blob.
func (s *FSBlobStore) Put(ctx context.Context, r io.Reader) (Blob, error) {
	f, blob, err := spool(filepath.Join(s.root, "tmp"), r)
	if err != nil {
		return Blob{}, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := f.Sync(); err != nil {
		f.Close()
		return Blob{}, fmt.Errorf("sync blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return Blob{}, fmt.Errorf("close blob: %w", err)
	}

	dst := filepath.Join(s.root, blobKey(blob.Digest))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Blob{}, fmt.Errorf("create blob dir: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return Blob{}, fmt.Errorf("store blob: %w", err)
	}
	return blob, nil
}

// Open returns the blob with digest, or ErrBlobNotFound.
func (s *FSBlobStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	if !validDigest(digest) {
		return nil, ErrBlobNotFound
	}
	f, err := os.Open(filepath.Join(s.root, blobKey(digest)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Exists reports whether a blob with digest is stored. Malformed digests
// are never stored.
func (s *FSBlobStore) Exists(ctx context.Context, digest string) (bool, error) {
	if !validDigest(digest) {
		return false, nil
	}
	_, err := os.Stat(filepath.Join(s.root, blobKey(digest)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob: %w", err)
	}
}
