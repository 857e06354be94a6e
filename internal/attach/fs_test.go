package attach

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSBlobStoreRoundTrip(t *testing.T) {
	s, err := NewFSBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	blob, err := s.Put(ctx, strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, digestOf("content"), blob.Digest)
	assert.Equal(t, int64(7), blob.Size)

	again, err := s.Put(ctx, strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, blob, again)

	ok, err := s.Exists(ctx, blob.Digest)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, blob.Digest)
	require.NoError(t, err)
	assert.Equal(t, "content", readAll(t, rc))
}

func TestFSBlobStoreUnknownDigest(t *testing.T) {
	s, err := NewFSBlobStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Open(ctx, digestOf("never stored"))
	assert.ErrorIs(t, err, ErrBlobNotFound)

	_, err = s.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	ok, err := s.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBlobKeyLayout(t *testing.T) {
	d := digestOf("x")
	assert.Equal(t, d[0:3]+"/"+d[3:6]+"/"+d, blobKey(d))
	assert.Equal(t, blobKey(d), s3Key(d))
}
