package artifact_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/sethvargo/go-retry"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/adapters/artifact"
)

// flaky fails the first n Puts.
type flaky struct {
	artifact.Sink
	fails atomic.Int32
	calls atomic.Int32
}

func (f *flaky) Put(ctx context.Context, key string, r io.ReadSeeker, n int64) error {
	f.calls.Add(1)
	if f.fails.Add(-1) >= 0 {
		_, _ = io.Copy(io.Discard, r)
		return errors.New("connection reset")
	}
	return f.Sink.Put(ctx, key, r, n)
}

func TestFSSink(t *testing.T) {
	Convey("Given a filesystem sink", t, func() {
		root := t.TempDir()
		sink, err := artifact.NewFSSink(root)
		So(err, ShouldBeNil)
		ctx := context.Background()

		Convey("Bytes round trip under nested keys", func() {
			key := artifact.ResultKey("tok", "metadata.json")
			So(artifact.PutBytes(ctx, sink, key, []byte(`{"a":1}`)), ShouldBeNil)
			b, err := sink.Get(ctx, key)
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, `{"a":1}`)
			_, err = os.Stat(filepath.Join(root, "results", "tok", "metadata.json"))
			So(err, ShouldBeNil)
		})

		Convey("Put overwrites", func() {
			key := artifact.LeaderboardKey("s1")
			So(artifact.PutBytes(ctx, sink, key, []byte("one")), ShouldBeNil)
			So(artifact.PutBytes(ctx, sink, key, []byte("two")), ShouldBeNil)
			b, _ := sink.Get(ctx, key)
			So(string(b), ShouldEqual, "two")
		})

		Convey("Files are copied", func() {
			src := filepath.Join(t.TempDir(), "m.cif")
			So(os.WriteFile(src, []byte("data_x"), 0o600), ShouldBeNil)
			So(artifact.PutFile(ctx, sink, "results/t/m.cif", src), ShouldBeNil)
			b, _ := sink.Get(ctx, "results/t/m.cif")
			So(string(b), ShouldEqual, "data_x")
		})

		Convey("Missing keys are ErrNotFound", func() {
			_, err := sink.Get(ctx, "results/none/metadata.json")
			So(errors.Is(err, artifact.ErrNotFound), ShouldBeTrue)
		})

		Convey("Escaping keys are rejected", func() {
			for _, k := range []string{"../x", "/etc/passwd", "a/../../b", ""} {
				So(errors.Is(artifact.PutBytes(ctx, sink, k, nil), artifact.ErrInvalidKey), ShouldBeTrue)
			}
		})
	})
}

func TestRetrySink(t *testing.T) {
	Convey("Given a sink that fails twice", t, func() {
		inner, err := artifact.NewFSSink(t.TempDir())
		So(err, ShouldBeNil)
		f := &flaky{Sink: inner}
		f.fails.Store(2)
		sink := artifact.NewRetrySinkBackoff(f, func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewConstant(time.Millisecond))
		})
		ctx := context.Background()

		Convey("Put succeeds after retrying from the start of the reader", func() {
			So(artifact.PutBytes(ctx, sink, "k.json", []byte("payload")), ShouldBeNil)
			So(f.calls.Load(), ShouldEqual, 3)
			b, err := sink.Get(ctx, "k.json")
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "payload")
		})

		Convey("Not found is not retried", func() {
			_, err := sink.Get(ctx, "missing.json")
			So(errors.Is(err, artifact.ErrNotFound), ShouldBeTrue)
		})

		Convey("The identifier is the inner one", func() {
			So(sink.Identifier(), ShouldEqual, inner.Identifier())
		})
	})
}

func TestMinioSink(t *testing.T) {
	Convey("Given a MinIO sink", t, func() {
		sink, err := artifact.NewMinioSink("localhost:9000", "id", "secret", false, "results")
		So(err, ShouldBeNil)
		So(sink.Identifier(), ShouldEqual, "s3://results")

		Convey("Invalid keys fail before any request", func() {
			err := artifact.PutBytes(context.Background(), sink, "../x", []byte("x"))
			So(errors.Is(err, artifact.ErrInvalidKey), ShouldBeTrue)
		})

		Convey("Missing objects are recognised", func() {
			So(artifact.IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}), ShouldBeTrue)
			So(artifact.IsNoSuchKey(errors.New("dial tcp: refused")), ShouldBeFalse)
		})
	})
}
