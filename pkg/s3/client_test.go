package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3_provider "github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type memAPI struct {
	objects map[string][]byte
	buckets map[string]bool
}

func newMemAPI() *memAPI {
	return &memAPI{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (m *memAPI) GetObject(_ context.Context, in *s3_provider.GetObjectInput, _ ...func(*s3_provider.Options)) (*s3_provider.GetObjectOutput, error) {
	b, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3_provider.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (m *memAPI) PutObject(_ context.Context, in *s3_provider.PutObjectInput, _ ...func(*s3_provider.Options)) (*s3_provider.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3_provider.PutObjectOutput{}, nil
}

func (m *memAPI) HeadBucket(_ context.Context, in *s3_provider.HeadBucketInput, _ ...func(*s3_provider.Options)) (*s3_provider.HeadBucketOutput, error) {
	if !m.buckets[aws.ToString(in.Bucket)] {
		return nil, &s3types.NotFound{}
	}
	return &s3_provider.HeadBucketOutput{}, nil
}

func (m *memAPI) CreateBucket(_ context.Context, in *s3_provider.CreateBucketInput, _ ...func(*s3_provider.Options)) (*s3_provider.CreateBucketOutput, error) {
	m.buckets[aws.ToString(in.Bucket)] = true
	return &s3_provider.CreateBucketOutput{}, nil
}

func TestStoreRoundTrip(t *testing.T) {
	api := newMemAPI()
	s := NewStore(api, "books")
	ctx := context.Background()

	if err := s.EnsureBucket(ctx); err != nil {
		t.Fatal(err)
	}
	if !api.buckets["books"] {
		t.Fatal("bucket not created")
	}
	if err := s.Put(ctx, "a/b.json", []byte("{}"), "application/json"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "a/b.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "{}" {
		t.Errorf("got %q", got)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if s.URI("a/b.json") != "s3://books/a/b.json" {
		t.Errorf("URI = %s", s.URI("a/b.json"))
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		in          string
		bucket, key string
		wantErr     bool
	}{
		{in: "s3://books/pdf/x.pdf", bucket: "books", key: "pdf/x.pdf"},
		{in: "https://books/x.pdf", wantErr: true},
		{in: "s3://books/", wantErr: true},
		{in: "s3:///x.pdf", wantErr: true},
	}
	for _, tt := range tests {
		b, k, err := ParseURI(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseURI(%q) err = %v", tt.in, err)
			continue
		}
		if b != tt.bucket || k != tt.key {
			t.Errorf("ParseURI(%q) = %q, %q", tt.in, b, k)
		}
	}
}
