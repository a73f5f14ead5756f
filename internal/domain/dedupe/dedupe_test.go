package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/domain/dedupe"
)

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new deduper", t, func() {
		d := dedupe.NewMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("A new key is recorded", func() {
			id, seen := d.Claim(ctx, "evt-1", "sub-1")
			So(seen, ShouldBeFalse)
			So(id, ShouldEqual, "sub-1")
			So(d.Size(), ShouldEqual, 1)

			Convey("and a replay returns the original submission", func() {
				id, seen := d.Claim(ctx, "evt-1", "sub-2")
				So(seen, ShouldBeTrue)
				So(id, ShouldEqual, "sub-1")
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("and a released key can be claimed again", func() {
				d.Release(ctx, "evt-1")
				So(d.Size(), ShouldEqual, 0)
				id, seen := d.Claim(ctx, "evt-1", "sub-3")
				So(seen, ShouldBeFalse)
				So(id, ShouldEqual, "sub-3")
			})
		})

		Convey("Releasing an unknown key is a no-op", func() {
			d.Release(ctx, "nope")
			So(d.Size(), ShouldEqual, 0)
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.Claim(ctx, fmt.Sprintf("evt-%d", i), fmt.Sprintf("sub-%d", i))
		}

		Convey("the oldest key is evicted first", func() {
			So(d.Size(), ShouldEqual, 3)
			_, seen := d.Claim(ctx, "evt-1", "again")
			So(seen, ShouldBeFalse)
			_, seen = d.Claim(ctx, "evt-4", "again")
			So(seen, ShouldBeTrue)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 500; i++ {
			d.Claim(ctx, fmt.Sprintf("evt-%d", i), "s")
		}
		So(d.Size(), ShouldEqual, 500)
	})

	Convey("Concurrent claims of one key admit exactly one winner", t, func() {
		d := dedupe.NewMemoryDeduper()
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh int
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, seen := d.Claim(ctx, "evt", fmt.Sprint(i)); !seen {
					mu.Lock()
					fresh++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		So(fresh, ShouldEqual, 1)
	})
}
