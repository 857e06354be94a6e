package attach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/nexus/internal/metrics"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/tracing"
)

// DefaultMaxSize caps uploads at 100 MiB.
const DefaultMaxSize int64 = 100 << 20

// DefaultMediaType is recorded when an upload names none.
const DefaultMediaType = "application/octet-stream"

// Store is the part of the resource store attachments need.
type Store interface {
	Read(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, error)
	SetAttachment(ctx context.Context, ref resource.Ref, expectedRev int64, a *resource.Attachment) (resource.Snapshot, error)
}

// Upload is an incoming attachment body with its declared metadata.
type Upload struct {
	Filename  string
	MediaType string
	Body      io.Reader
}

// Service stores attachment bytes in a BlobStore and their metadata in the
// instance's revision history.
type Service struct {
	store   Store
	blobs   BlobStore
	maxSize int64
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMaxSize sets the largest accepted upload in bytes.
func WithMaxSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithLogger sets the logger for upload and removal events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records the size of stored attachments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires a Service.
func NewService(store Store, blobs BlobStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		blobs:   blobs,
		maxSize: DefaultMaxSize,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores the upload and attaches it to ref at expectedRev. The blob is
// written before the revision is committed; a blob whose commit then fails
// is unreferenced and harmless.
func (s *Service) Put(ctx context.Context, ref resource.Ref, expectedRev int64, up Upload) (snap resource.Snapshot, err error) {
	ctx, span := tracing.Start(ctx, "attach.put")
	span.SetAttributes(tracing.RefAttributes(ref)...)
	span.SetAttributes(attribute.String(tracing.AttrKeyBlobBackend, s.blobs.Backend()))
	defer tracing.End(ctx, &err)

	if ref.Kind != resource.KindInstance {
		return resource.Snapshot{}, resource.ErrIllegalRef(ref.Path, "attachments belong to instances")
	}
	// Fail fast on a stale or unknown ref before spending the upload.
	cur, err := s.store.Read(ctx, ref, 0)
	if err != nil {
		return resource.Snapshot{}, err
	}
	if cur.Rev != expectedRev {
		return resource.Snapshot{}, resource.ErrIncorrectRevision(ref, expectedRev, cur.Rev)
	}

	blob, err := s.blobs.Put(ctx, &limitReader{r: up.Body, remaining: s.maxSize})
	if errors.Is(err, errTooLarge) {
		return resource.Snapshot{}, resource.ErrAttachmentTooLarge(s.maxSize)
	}
	if err != nil {
		return resource.Snapshot{}, resource.ErrInternal("store attachment", err)
	}
	span.SetAttributes(attribute.String(tracing.AttrKeyBlobDigest, blob.Digest))

	mediaType := up.MediaType
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	snap, err = s.store.SetAttachment(ctx, ref, expectedRev, &resource.Attachment{
		Filename:  up.Filename,
		MediaType: mediaType,
		Size:      blob.Size,
		Digest:    blob.Digest,
	})
	if err != nil {
		return resource.Snapshot{}, err
	}
	s.metrics.AttachmentStored(blob.Size)
	s.logger.Debug("attachment stored", "ref", ref.String(), "rev", snap.Rev, "digest", blob.Digest, "size", blob.Size)
	return snap, nil
}

// Get returns the snapshot at rev (0 for current) and a reader over its
// attachment. The reader fails with AttachmentCorrupted at EOF if the
// content does not match the recorded digest.
func (s *Service) Get(ctx context.Context, ref resource.Ref, rev int64) (resource.Snapshot, io.ReadCloser, error) {
	snap, err := s.store.Read(ctx, ref, rev)
	if err != nil {
		return resource.Snapshot{}, nil, err
	}
	if snap.Attachment == nil {
		return resource.Snapshot{}, nil, resource.ErrAttachmentNotFound(ref, snap.Rev)
	}

	rc, err := s.blobs.Open(ctx, snap.Attachment.Digest)
	if errors.Is(err, ErrBlobNotFound) {
		s.logger.Error("attachment blob missing", "ref", ref.String(), "rev", snap.Rev, "digest", snap.Attachment.Digest)
		return resource.Snapshot{}, nil, resource.ErrAttachmentCorrupted(snap.Attachment.Digest)
	}
	if err != nil {
		return resource.Snapshot{}, nil, resource.ErrInternal("open attachment", err)
	}
	return snap, &verifyingReader{rc: rc, h: sha256.New(), want: *snap.Attachment}, nil
}

// Remove detaches the current attachment. Earlier revisions keep theirs.
func (s *Service) Remove(ctx context.Context, ref resource.Ref, expectedRev int64) (resource.Snapshot, error) {
	return s.store.SetAttachment(ctx, ref, expectedRev, nil)
}

var errTooLarge = errors.New("upload exceeds size limit")

// limitReader fails once more than remaining bytes have been read.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

type verifyingReader struct {
	rc   io.ReadCloser
	h    hash.Hash
	n    int64
	want resource.Attachment
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	v.h.Write(p[:n])
	v.n += int64(n)
	if err == io.EOF {
		if v.n != v.want.Size || hex.EncodeToString(v.h.Sum(nil)) != v.want.Digest {
			return n, resource.ErrAttachmentCorrupted(v.want.Digest)
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.rc.Close()
}
