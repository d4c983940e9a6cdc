package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheoDgb/URLCustomDiscsAPI/iox"
)

// DefaultTimeout bounds a single object-store call.
const DefaultTimeout = 2 * time.Minute

// S3Config configures an S3-compatible backend.
type S3Config struct {
	// Bucket is the bucket name (required).
	Bucket string
	// Prefix is prepended to every key (optional).
	Prefix string
	// Region is the signing region. R2 accepts "auto".
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
	// Timeout bounds each call. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// Validate checks that required configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store keeps objects in an S3-compatible bucket.
type S3Store struct {
	client  S3API
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewS3Client builds an S3 client from the default AWS credential chain
// (env vars, shared config, IAM role), honoring endpoint and path-style
// overrides.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}

// NewS3Store creates a store over a client built by NewS3Client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, wrap("init", cfg.Bucket, err)
	}
	return NewS3StoreWithClient(client, cfg), nil
}

// NewS3StoreWithClient creates a store over an existing client.
func NewS3StoreWithClient(client S3API, cfg S3Config) *S3Store {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, timeout: timeout}
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put implements Store. Archives are stored as application/zip.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        r,
		ContentType: aws.String("application/zip"),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	_, err := s.client.PutObject(ctx, in)
	return wrapS3("put", key, err)
}

// Fetch implements Store.
func (s *S3Store) Fetch(ctx context.Context, key, dstPath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return 0, wrapS3("fetch", key, err)
	}
	defer iox.DiscardClose(out.Body)

	n, err := writeTo(dstPath, out.Body)
	return n, wrap("fetch", key, err)
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err := wrapS3("delete", key, err); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Stat implements Store.
func (s *S3Store) Stat(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return 0, wrapS3("stat", key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// wrapS3 classifies typed S3 not-found errors before falling back to
// message patterns.
func wrapS3(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return &StorageError{Kind: ErrNotFound, Op: op, Key: key, Err: err}
	}
	return wrap(op, key, err)
}
