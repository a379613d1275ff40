package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"book-indexer/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3_config "github.com/aws/aws-sdk-go-v2/config"
	s3_credentials "github.com/aws/aws-sdk-go-v2/credentials"
	s3_provider "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrNotFound = errors.New("s3: object not found")

func GetClient(ctx context.Context) (*s3_provider.Client, error) {
	// Build AWS config for MinIO (S3-compatible)
	s3cfg := config.Cfg.S3
	region := s3cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*s3_config.LoadOptions) error{
		s3_config.WithRegion(region),
	}
	if s3cfg.AccessKey != "" && s3cfg.SecretKey != "" {
		opts = append(opts, s3_config.WithCredentialsProvider(
			s3_credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKey,
				s3cfg.SecretKey,
				"",
			),
		))
	}

	cfg, err := s3_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	endpoint := s3cfg.Endpoint
	client := s3_provider.NewFromConfig(cfg, func(o *s3_provider.Options) {
		o.UsePathStyle = true
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint) // e.g., http://localhost:9000
		}
	})
	return client, nil
}

// API is the part of the S3 client the store uses.
type API interface {
	GetObject(ctx context.Context, in *s3_provider.GetObjectInput, opts ...func(*s3_provider.Options)) (*s3_provider.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3_provider.PutObjectInput, opts ...func(*s3_provider.Options)) (*s3_provider.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3_provider.HeadBucketInput, opts ...func(*s3_provider.Options)) (*s3_provider.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3_provider.CreateBucketInput, opts ...func(*s3_provider.Options)) (*s3_provider.CreateBucketOutput, error)
}

// Store reads and writes whole objects in one default bucket.
type Store struct {
	api    API
	bucket string
}

func NewStore(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// NewStoreFromConfig builds a client from config.Cfg.S3.
func NewStoreFromConfig(ctx context.Context) (*Store, error) {
	cli, err := GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%v: client: %w", config.ModuleS3, err)
	}
	return NewStore(cli, config.Cfg.S3.Bucket), nil
}

func (s *Store) Bucket() string { return s.bucket }

// Get reads key from the default bucket.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.GetFrom(ctx, s.bucket, key)
}

// GetFrom reads bucket/key. A missing object is ErrNotFound.
func (s *Store) GetFrom(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &s3_provider.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, bucket, key)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Put writes body under key in the default bucket.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3_provider.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

// EnsureBucket creates the default bucket if it is missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if _, err := s.api.HeadBucket(ctx, &s3_provider.HeadBucketInput{Bucket: aws.String(s.bucket)}); err == nil {
		return nil
	}
	_, err := s.api.CreateBucket(ctx, &s3_provider.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// URI formats an s3:// location in the default bucket.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 uri without key: %q", uri)
	}
	return u.Host, key, nil
}
