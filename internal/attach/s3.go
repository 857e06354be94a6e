package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options locates the bucket. Endpoint is optional and selects an
// S3-compatible service such as MinIO.
type S3Options struct {
	Bucket   string
	Region   string
	Endpoint string
}

// S3BlobStore keeps blobs in an S3 bucket using the same key layout as
// FSBlobStore.
type S3BlobStore struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3BlobStore loads the default AWS credential chain and checks that the
// bucket is reachable.
func NewS3BlobStore(ctx context.Context, opts S3Options) (*S3BlobStore, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.Endpoint != "" {
		loaders = append(loaders, config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
					SigningRegion:     opts.Region,
				}, nil
			})))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(opts.Bucket)}); err != nil {
		return nil, fmt.Errorf("could not access bucket %q: %w", opts.Bucket, err)
	}

	return &S3BlobStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
	}, nil
}

// Backend reports "s3".
func (s *S3BlobStore) Backend() string { return "s3" }

func s3Key(digest string) string {
	return path.Join(digest[0:3], digest[3:6], digest)
}

// Put spools r to a local temp file to learn its digest, then uploads it
// unless the bucket already holds that content.
func (s *S3BlobStore) Put(ctx context.Context, r io.Reader) (Blob, error) {
	f, blob, err := spool("", r)
	if err != nil {
		return Blob{}, err
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	exists, err := s.Exists(ctx, blob.Digest)
	if err != nil {
		return Blob{}, err
	}
	if exists {
		return blob, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Blob{}, fmt.Errorf("rewind upload: %w", err)
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s3Key(blob.Digest)),
		Body:          f,
		ContentLength: blob.Size,
	})
	if err != nil {
		return Blob{}, fmt.Errorf("upload blob: %w", err)
	}
	return blob, nil
}

// Open streams the object for digest. The caller closes the body.
func (s *S3BlobStore) Open(ctx context.Context, digest string) (io.ReadCloser, error) {
	if !validDigest(digest) {
		return nil, ErrBlobNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key(digest)),
	})
	if isNotFound(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	return out.Body, nil
}

// Exists issues a HEAD for the object keyed by digest.
func (s *S3BlobStore) Exists(ctx context.Context, digest string) (bool, error) {
	if !validDigest(digest) {
		return false, nil
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key(digest)),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("head blob: %w", err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var responseError *awshttp.ResponseError
	return errors.As(err, &responseError) && responseError.HTTPStatusCode() == http.StatusNotFound
}
