package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/adapters/mq/worker"
	logging "github.com/okian/foldboard/pkg/logger"
)

func tasks(n int, fn func(i int) error) []worker.Task {
	out := make([]worker.Task, n)
	for i := range out {
		i := i
		out[i] = worker.Task{ID: fmt.Sprint(i), Run: func(context.Context) error { return fn(i) }}
	}
	return out
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of size 3", t, func() {
		pool := worker.NewPool(3, worker.WithName("test-pool"), worker.WithLogger(logging.Nop()))
		ctx := context.Background()

		convey.So(pool.Size(), convey.ShouldEqual, 3)

		convey.Convey("every task runs once", func() {
			var ran atomic.Int64
			stats := pool.Process(ctx, tasks(10, func(int) error { ran.Add(1); return nil }))
			convey.So(ran.Load(), convey.ShouldEqual, 10)
			convey.So(stats, convey.ShouldResemble, worker.Stats{Done: 10})
		})

		convey.Convey("concurrency never exceeds the size", func() {
			var cur, peak atomic.Int64
			pool.Process(ctx, tasks(12, func(int) error {
				n := cur.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				cur.Add(-1)
				return nil
			}))
			convey.So(peak.Load(), convey.ShouldBeLessThanOrEqualTo, 3)
			convey.So(peak.Load(), convey.ShouldBeGreaterThan, 0)
		})

		convey.Convey("failures and panics are isolated", func() {
			stats := pool.Process(ctx, tasks(6, func(i int) error {
				switch i {
				case 1:
					return errors.New("boom")
				case 2:
					panic("kaboom")
				}
				return nil
			}))
			convey.So(stats.Done, convey.ShouldEqual, 4)
			convey.So(stats.Failed, convey.ShouldEqual, 2)
		})

		convey.Convey("tasks not started before cancellation are skipped", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			stats := pool.Process(cctx, tasks(5, func(int) error { return nil }))
			convey.So(stats.Skipped, convey.ShouldEqual, 5)
			convey.So(stats.Done, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("A pool without a size uses the CPU count", t, func() {
		_ = logging.Init()
		convey.So(worker.NewPool(0).Size(), convey.ShouldBeGreaterThan, 0)
	})
}
