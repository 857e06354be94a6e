// Package attach stores instance attachments as content-addressed blobs
// and records their metadata as instance revisions.
package attach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Blob identifies stored content by its SHA-256 digest.
type Blob struct {
	Digest string
	Size   int64
}

// ErrBlobNotFound is returned by BlobStore.Open for unknown digests.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a content-addressed byte store. Put is idempotent for equal
// content.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (Blob, error)
	Open(ctx context.Context, digest string) (io.ReadCloser, error)
	Exists(ctx context.Context, digest string) (bool, error)
	Backend() string
}

// blobKey fans blobs out over two directory levels.
func blobKey(digest string) string {
	return filepath.Join(digest[0:3], digest[3:6], digest)
}

func validDigest(digest string) bool {
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// spool copies r into a new temp file in dir while hashing it. The caller
// owns the returned file and must remove it.
func spool(dir string, r io.Reader) (*os.File, Blob, error) {
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, Blob{}, fmt.Errorf("create temp file: %w", err)
	}
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, Blob{}, fmt.Errorf("spool upload: %w", err)
	}
	return f, Blob{Digest: hex.EncodeToString(h.Sum(nil)), Size: n}, nil
}
