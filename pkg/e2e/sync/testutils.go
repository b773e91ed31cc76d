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

// Package sync contains end-to-end tests that run the terminal's sync engine
// against the reference server over HTTP.
package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/queue"
	"github.com/tillsync/tillsync/pkg/reconcile"
	"github.com/tillsync/tillsync/pkg/server/app"
	"github.com/tillsync/tillsync/pkg/server/controllers"
	serverdb "github.com/tillsync/tillsync/pkg/server/database"
	apitest "github.com/tillsync/tillsync/pkg/server/testutils"
	"github.com/tillsync/tillsync/pkg/syncer"
	"gorm.io/gorm"
)

const testOrgID = "org-e2e"

// network sits in front of the server and simulates connectivity problems
type network struct {
	next http.Handler
	// offline makes every request fail with 503 before it reaches the server
	offline atomic.Bool
	// dropResponses is the number of upcoming requests that the server applies
	// but whose responses are lost
	dropResponses atomic.Int32
	requests      atomic.Int32
}

func (n *network) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.requests.Add(1)

	if n.offline.Load() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	if n.dropResponses.Load() > 0 {
		n.dropResponses.Add(-1)

		n.next.ServeHTTP(httptest.NewRecorder(), r)
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
		return
	}

	n.next.ServeHTTP(w, r)
}

// testEnv holds a terminal and the server it syncs with
type testEnv struct {
	Clock    *clock.Mock
	DB       *database.DB
	Queue    *queue.Queue
	Recon    *reconcile.Map
	Syncer   *syncer.Syncer
	Server   *httptest.Server
	ServerDB *gorm.DB
	Net      *network
}

func newServer(t *testing.T) (*httptest.Server, *gorm.DB, *network) {
	t.Helper()

	a := &app.App{
		DB:    apitest.InitMemoryDB(t),
		Clock: clock.NewMock(),
	}

	m := metrics.NewHTTP()
	r, err := controllers.NewRouter(a, controllers.RouteConfig{
		Routes:  controllers.NewRoutes(controllers.New(a, m), m),
		Metrics: m,
	})
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing router"))
	}

	n := &network{next: r}
	server := httptest.NewServer(n)
	t.Cleanup(server.Close)

	return server, a.DB, n
}

// newTerminal wires the sync engine of a terminal on the given database
func newTerminal(db *database.DB, c clock.Clock, endpoint string, batchSize int) (*queue.Queue, *reconcile.Map, *syncer.Syncer) {
	q := queue.New(queue.NewSQLStore(db))
	r := reconcile.New(db, c)
	cl := client.New(client.Options{
		Endpoint:   endpoint,
		OrgID:      testOrgID,
		Version:    "e2e",
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})

	return q, r, syncer.New(q, r, cl, syncer.Options{BatchSize: batchSize})
}

// setupTestEnv creates an isolated terminal with an in-memory database and a fresh server
func setupTestEnv(t *testing.T, batchSize int) *testEnv {
	t.Helper()

	server, serverDB, n := newServer(t)
	c := clock.NewMock()
	db := database.InitTestMemoryDB(t)
	q, r, s := newTerminal(db, c, server.URL, batchSize)

	return &testEnv{
		Clock:    c,
		DB:       db,
		Queue:    q,
		Recon:    r,
		Syncer:   s,
		Server:   server,
		ServerDB: serverDB,
		Net:      n,
	}
}

func (e *testEnv) mustBuild(t *testing.T, p op.Payload) op.Operation {
	t.Helper()

	o, err := op.Build(e.Clock, p)
	if err != nil {
		t.Fatal(errors.Wrap(err, "building operation"))
	}
	e.Clock.Advance(time.Second)

	return o
}

func (e *testEnv) mustSendOrQueue(t *testing.T, o op.Operation) syncer.SendResult {
	t.Helper()

	res, err := e.Syncer.SendOrQueue(context.Background(), o)
	if err != nil {
		t.Fatal(errors.Wrap(err, "sending operation"))
	}

	return res
}

func (e *testEnv) mustFlush(t *testing.T) syncer.FlushResult {
	t.Helper()

	res, err := e.Syncer.FlushAll(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "flushing"))
	}

	return res
}

func (e *testEnv) mustCount(t *testing.T) int {
	t.Helper()

	n, err := e.Queue.Count(context.Background())
	if err != nil {
		t.Fatal(errors.Wrap(err, "counting queue"))
	}

	return n
}

func (e *testEnv) mustServerID(t *testing.T, clientID string) string {
	t.Helper()

	id, ok, err := e.Recon.Get(context.Background(), clientID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "getting server id"))
	}
	if !ok {
		t.Fatalf("%s is not reconciled", clientID)
	}

	return id
}

// countServerRows counts the rows of the given model on the server
func countServerRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatal(errors.Wrap(err, "counting server rows"))
	}

	return n
}

func mustEntity(t *testing.T, db *gorm.DB, clientID string) serverdb.Entity {
	t.Helper()

	var e serverdb.Entity
	if err := db.Where("org_id = ? AND client_id = ?", testOrgID, clientID).First(&e).Error; err != nil {
		t.Fatal(errors.Wrapf(err, "finding entity %s", clientID))
	}

	return e
}
