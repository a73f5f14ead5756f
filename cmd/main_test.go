package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/foldboard/internal/adapters/http/api"
	"github.com/okian/foldboard/internal/adapters/http/swagger"
	"github.com/okian/foldboard/internal/bootstrap"
	"github.com/okian/foldboard/internal/config"
	"github.com/okian/foldboard/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestServerWiring(t *testing.T) {
	convey.Convey("Given configuration from the environment", t, func() {
		root := t.TempDir()
		env := map[string]string{
			"FOLDBOARD_ADDR":              ":8088",
			"FOLDBOARD_DATA_DIR":          filepath.Join(root, "data"),
			"FOLDBOARD_CATALOG_FILE":      filepath.Join(root, "catalog.yaml"),
			"FOLDBOARD_ARTIFACTS__DIR":    filepath.Join(root, "results"),
			"FOLDBOARD_SCHEDULER__DRIVER": "local",
		}
		for k, v := range env {
			t.Setenv(k, v)
		}
		t.Chdir(root)

		cfg, err := config.Load(context.Background())
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.Addr, convey.ShouldEqual, ":8088")
		convey.So(cfg.Scheduler.Driver, convey.ShouldEqual, "local")

		convey.Convey("When the router is assembled as main does", func() {
			rt, err := bootstrap.Build(context.Background(), cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			defer rt.Close()

			router := api.NewRouter()
			swagger.Register(context.Background(), router)
			api.NewServer(rt.Service).Register(context.Background(), router)
			srv := httptest.NewServer(router)
			defer srv.Close()

			convey.Convey("Then the documented routes answer", func() {
				for _, path := range []string{"/healthz", "/stats", "/sessions", "/problems", "/docs", "/openapi.yaml", "/metrics"} {
					resp, err := http.Get(srv.URL + path)
					convey.So(err, convey.ShouldBeNil)
					resp.Body.Close()
					convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				}
			})

			convey.Convey("And a submission to an empty catalog is rejected", func() {
				body := `{"participant_id":"alice","sequences":{"problem_1":"MKTLLILAVVAAALA"}}`
				resp, err := http.Post(srv.URL+"/submissions", "application/json", strings.NewReader(body))
				convey.So(err, convey.ShouldBeNil)
				resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}
