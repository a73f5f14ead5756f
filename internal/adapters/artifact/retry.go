package artifact

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
)

var _ Sink = (*RetrySink)(nil)

// RetrySink wraps a Sink so transient failures are retried with backoff.
// ErrNotFound and ErrInvalidKey are returned immediately.
type RetrySink struct {
	sink    Sink
	backoff func() retry.Backoff
}

// NewRetrySinkBackoff wraps sink with a custom backoff factory.
func NewRetrySinkBackoff(sink Sink, backoff func() retry.Backoff) *RetrySink {
	return &RetrySink{sink: sink, backoff: backoff}
}

// NewRetrySink wraps sink with exponential backoff capped at one minute.
func NewRetrySink(sink Sink) *RetrySink {
	return &RetrySink{
		sink: sink,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(500 * time.Millisecond)
			return retry.WithMaxDuration(time.Minute, b)
		},
	}
}

// Identifier implements Sink.
func (r *RetrySink) Identifier() string { return r.sink.Identifier() }

func permanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidKey)
}

// Put implements Sink.
func (r *RetrySink) Put(ctx context.Context, key string, reader io.ReadSeeker, length int64) error {
	ctx, span := tracer.Start(ctx, "RetrySink.Put")
	defer span.End()

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		if _, err := reader.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := r.sink.Put(ctx, key, reader, length); err != nil {
			if permanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put")
		return err
	}
	span.SetStatus(codes.Ok, "put")
	return nil
}

// Get implements Sink.
func (r *RetrySink) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		b, err := r.sink.Get(ctx, key)
		if err != nil {
			if permanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		out = b
		return nil
	})
	return out, err
}
