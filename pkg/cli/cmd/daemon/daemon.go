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

// Package daemon provides the daemon command that flushes the queue in the background
package daemon

import (
	stdcontext "context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/infra"
	"github.com/tillsync/tillsync/pkg/cli/log"
	slog "github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/scheduler"
	"gopkg.in/natefinch/lumberjack.v2"
)

var example = `
  tillsync daemon --logFile /var/log/tillsync/daemon.log --metricsAddr :9310`

type flags struct {
	logFile     string
	metricsAddr string
}

// NewCmd returns a new daemon command
func NewCmd(ctx context.Ctx) *cobra.Command {
	var fl flags

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Flush the queue periodically until interrupted",
		Example: example,
		Args:    cobra.NoArgs,
		RunE:    newRun(ctx, &fl),
	}

	f := cmd.Flags()
	f.StringVar(&fl.logFile, "logFile", "", "write logs to a rotated file instead of stderr")
	f.StringVar(&fl.metricsAddr, "metricsAddr", "", "serve prometheus metrics on this address")

	return cmd
}

func newLogFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
}

func newMetricsServer(ctx context.Ctx, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", ctx.Metrics.Handler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// reachTimeout bounds the connectivity check before each flush
const reachTimeout = 3 * time.Second

// newScheduler builds the scheduler flushing ctx's queue with the configured intervals.
// A tick is skipped without backing off while the endpoint cannot be reached.
func newScheduler(ctx context.Ctx) *scheduler.Scheduler {
	return scheduler.New(ctx.Syncer, ctx.Queue, scheduler.Options{
		BaseInterval: ctx.Config.BaseInterval,
		MaxInterval:  ctx.Config.MaxInterval,
		Online: func(c stdcontext.Context) bool {
			return ctx.Client.Reachable(c, reachTimeout)
		},
		Observer: ctx.Metrics,
	})
}

func newRun(ctx context.Ctx, fl *flags) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		if fl.logFile != "" {
			lf := newLogFile(fl.logFile)
			defer lf.Close()

			prev := slog.SetOutput(lf)
			defer slog.SetOutput(prev)
		}

		runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if fl.metricsAddr != "" {
			srv := newMetricsServer(ctx, fl.metricsAddr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.ErrorWrap(err, "serving metrics")
				}
			}()
			defer func() {
				shutdownCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
		}

		n, err := ctx.Queue.Count(runCtx)
		if err != nil {
			return errors.Wrap(err, "counting queued operations")
		}
		ctx.Metrics.SetQueueDepth(n)

		log.Infof("syncing %d queued operations to %s. Press Ctrl+C to stop.\n", n, ctx.Config.APIEndpoint)
		slog.WithFields(slog.Fields{
			"endpoint":      ctx.Config.APIEndpoint,
			"queued":        n,
			"base_interval": ctx.Config.BaseInterval.String(),
			"max_interval":  ctx.Config.MaxInterval.String(),
		}).Info("daemon started")

		if err := newScheduler(ctx).Run(runCtx); err != nil {
			return err
		}

		slog.Info("daemon stopped")
		return nil
	}
}
