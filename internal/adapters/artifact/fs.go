package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Sink = (*FSSink)(nil)

// FSSink stores artifacts below a local directory.
type FSSink struct {
	root string
}

// NewFSSink creates the root directory if needed.
func NewFSSink(root string) (*FSSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact root: %w", err)
	}
	return &FSSink{root: root}, nil
}

// Identifier implements Sink.
func (s *FSSink) Identifier() string { return s.root }

func (s *FSSink) path(key string) (string, error) {
	c, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}

// Put implements Sink. Readers never observe a partially written file.
func (s *FSSink) Put(ctx context.Context, key string, reader io.ReadSeeker, length int64) error {
	_, span := tracer.Start(ctx, "FSSink.Put", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("length", length),
	))
	defer span.End()

	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create directory")
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp file")
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write")
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // published artifacts are world readable
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to rename")
		return err
	}
	span.SetStatus(codes.Ok, "stored artifact")
	return nil
}

// Get implements Sink.
func (s *FSSink) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return b, err
}
