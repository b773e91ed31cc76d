/* Copyright 2025 Tillsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/server/app"
	"github.com/tillsync/tillsync/pkg/server/buildinfo"
	"github.com/tillsync/tillsync/pkg/server/config"
	"github.com/tillsync/tillsync/pkg/server/controllers"
	"github.com/tillsync/tillsync/pkg/server/database"
	"github.com/tillsync/tillsync/pkg/server/job"
	mw "github.com/tillsync/tillsync/pkg/server/middleware"
)

const shutdownTimeout = 10 * time.Second

func newHandler(a *app.App, cfg config.Config) (http.Handler, func(), error) {
	m := metrics.NewHTTP()
	ctl := controllers.New(a, m)

	var limiter *mw.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = mw.NewRateLimiter(cfg.RateLimit)
	}
	closeFn := func() {
		if limiter != nil {
			limiter.Close()
		}
	}

	r, err := controllers.NewRouter(a, controllers.RouteConfig{
		Routes:  controllers.NewRoutes(ctl, m),
		Limiter: limiter,
		Metrics: m,
	})
	if err != nil {
		closeFn()
		return nil, nil, errors.Wrap(err, "initializing router")
	}

	return r, closeFn, nil
}

func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func startCmd(args []string) {
	fs := setupFlagSet("start", "tillsync-server start")

	port := fs.String("port", "", "Server port (env: PORT, default: 3001)")
	db := addDBFlags(fs)
	logLevel := fs.String("logLevel", "", "Log level: debug, info, warn, or error (env: LOG_LEVEL, default: info)")
	retention := fs.String("retention", "", "How long idempotency records are kept (env: IDEMPOTENCY_RETENTION, default: 720h)")
	pruneSchedule := fs.String("pruneSchedule", "", "Cron schedule of the prune job (env: PRUNE_SCHEDULE, default: @hourly)")
	rateLimit := fs.String("rateLimit", "", "Requests per second per client IP, 0 disables (env: RATE_LIMIT, default: 50)")

	fs.Parse(args)

	cfg := mustConfig(fs, config.Params{
		Port:          *port,
		DBDriver:      *db.driver,
		DBDSN:         *db.dsn,
		LogLevel:      *logLevel,
		Retention:     *retention,
		PruneSchedule: *pruneSchedule,
		RateLimit:     *rateLimit,
	})

	log.SetLevel(cfg.LogLevel)

	a, err := initApp(cfg)
	if err != nil {
		log.ErrorWrap(err, "initializing app")
		os.Exit(1)
	}
	defer database.Close(a.DB)

	runner, err := job.NewRunner(&a, cfg.PruneSchedule, cfg.Retention)
	if err != nil {
		log.ErrorWrap(err, "initializing job runner")
		os.Exit(1)
	}
	runner.Start()
	defer runner.Stop()

	h, closeHandler, err := newHandler(&a, cfg)
	if err != nil {
		log.ErrorWrap(err, "initializing handler")
		os.Exit(1)
	}
	defer closeHandler()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version": buildinfo.Version,
		"port":    cfg.Port,
		"driver":  cfg.DBDriver,
	}).Info("Tillsync server starting")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := serve(ctx, srv); err != nil && err != http.ErrServerClosed {
		log.ErrorWrap(err, "server failed")
		os.Exit(1)
	}

	log.Info("Tillsync server stopped")
}
