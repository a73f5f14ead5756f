package bootstrap_test

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/bootstrap"
	"github.com/okian/foldboard/internal/config"
	"github.com/okian/foldboard/pkg/logger"
)

func TestBuild(t *testing.T) {
	Convey("Given an in-process configuration", t, func() {
		root := t.TempDir()
		cfg := config.New()
		cfg.DataDir = filepath.Join(root, "data")
		cfg.CatalogFile = filepath.Join(root, "catalog.yaml")
		cfg.Artifacts.Dir = filepath.Join(root, "results")
		cfg.Scheduler.Driver = "local"
		cfg.Scheduler.Predictor = "true"

		Convey("Build wires a service over an empty catalog", func() {
			rt, err := bootstrap.Build(context.Background(), cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(rt.Service, ShouldNotBeNil)
			So(rt.Catalog.Sessions(), ShouldBeEmpty)

			counts, err := rt.Service.Stats(context.Background())
			So(err, ShouldBeNil)
			So(counts, ShouldBeEmpty)

			So(rt.Close(), ShouldBeNil)
			So(rt.Close(), ShouldBeNil)
		})

		Convey("A postgres store with a malformed dsn fails", func() {
			cfg.Store.Driver = "postgres"
			cfg.Store.PostgresDSN = "::not a dsn::"
			_, err := bootstrap.Build(context.Background(), cfg, logger.Nop())
			So(err, ShouldNotBeNil)
		})
	})
}
