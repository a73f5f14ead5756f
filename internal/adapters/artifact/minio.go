package artifact

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Sink = (*MinioSink)(nil)

// MinioSink stores artifacts in an S3 compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
}

// NewMinioSink connects to endpoint with static credentials.
func NewMinioSink(endpoint, id, secret string, ssl bool, bucket string) (*MinioSink, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(id, secret, ""),
		Secure: ssl,
	})
	if err != nil {
		return nil, err
	}
	return NewMinioSinkFromClient(client, bucket), nil
}

// NewMinioSinkFromClient wraps an existing client.
func NewMinioSinkFromClient(client *minio.Client, bucket string) *MinioSink {
	return &MinioSink{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioSink) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
}

// Identifier implements Sink.
func (s *MinioSink) Identifier() string { return "s3://" + s.bucket }

// Put implements Sink.
func (s *MinioSink) Put(ctx context.Context, key string, reader io.ReadSeeker, length int64) error {
	ctx, span := tracer.Start(ctx, "MinioSink.Put", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("length", length),
	))
	defer span.End()

	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, k, reader, length, minio.PutObjectOptions{
		ContentType: contentType(k),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return err
	}
	span.SetStatus(codes.Ok, "put object")
	return nil
}

// Get implements Sink.
func (s *MinioSink) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "MinioSink.Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(key, err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify(key, err)
	}
	return b, nil
}

func (s *MinioSink) classify(key string, err error) error {
	if IsNoSuchKey(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// IsNoSuchKey reports whether err is the S3 missing object error.
func IsNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".cif"):
		return "chemical/x-mmcif"
	}
	return "application/octet-stream"
}
