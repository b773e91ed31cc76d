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

// Package context holds the runtime state shared by the CLI commands
package context

import (
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/config"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/dirs"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/queue"
	"github.com/tillsync/tillsync/pkg/reconcile"
	"github.com/tillsync/tillsync/pkg/syncer"
)

// Ctx is a context holding the information of the current runtime
type Ctx struct {
	Dirs    dirs.Dirs
	Config  config.Config
	Version string
	DB      *database.DB
	Clock   clock.Clock
	Metrics *metrics.Sync

	Queue     *queue.Queue
	Reconcile *reconcile.Map
	Client    *client.Client
	Syncer    *syncer.Syncer
}

// New wires the sync components on top of the given database
func New(version string, d dirs.Dirs, cfg config.Config, db *database.DB, c clock.Clock) Ctx {
	m := metrics.NewSync()
	q := queue.New(queue.NewSQLStore(db), queue.WithDepthObserver(m))
	r := reconcile.New(db, c)
	cl := client.New(client.Options{
		Endpoint:   cfg.APIEndpoint,
		OrgID:      cfg.OrgID,
		Version:    version,
		HTTPClient: client.NewRateLimitedHTTPClient(cfg.RequestTimeout),
	})

	return Ctx{
		Dirs:      d,
		Config:    cfg,
		Version:   version,
		DB:        db,
		Clock:     c,
		Metrics:   m,
		Queue:     q,
		Reconcile: r,
		Client:    cl,
		Syncer:    syncer.New(q, r, cl, syncer.Options{
			BatchSize:      cfg.BatchSize,
			AttemptTimeout: cfg.RequestTimeout,
			Recorder:       m,
		}),
	}
}
