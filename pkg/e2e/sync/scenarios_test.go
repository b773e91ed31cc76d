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

package sync

import (
	"context"
	"testing"

	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/server/app"
	serverdb "github.com/tillsync/tillsync/pkg/server/database"
)

// orderOps returns the operations of a dine-in order from creation to payment
func orderOps(t *testing.T, env *testEnv, orderID string) []op.Operation {
	return []op.Operation{
		env.mustBuild(t, op.CreateOrder{OrderID: orderID, TableID: "T4", ServiceType: "DINE_IN", Covers: 2}),
		env.mustBuild(t, op.AddItem{OrderID: orderID, MenuItemID: "burger", Quantity: 2}),
		env.mustBuild(t, op.AddItem{OrderID: orderID, MenuItemID: "fries", Quantity: 1, Modifiers: []string{"no salt"}}),
		env.mustBuild(t, op.SendToKitchen{OrderID: orderID}),
		env.mustBuild(t, op.AddPayment{OrderID: orderID, Method: "CARD", Amount: 31.5}),
		env.mustBuild(t, op.CloseOrder{OrderID: orderID}),
	}
}

func TestOfflineOrderThenReconnect(t *testing.T) {
	env := setupTestEnv(t, 4)
	env.Net.offline.Store(true)

	ops := orderOps(t, env, "order-a")
	for _, o := range ops {
		res := env.mustSendOrQueue(t, o)
		assert.Equal(t, res.Queued, true, "operation was not queued")
	}
	assert.Equal(t, env.mustCount(t), len(ops), "queue count mismatch")

	t.Run("flush while offline keeps everything", func(t *testing.T) {
		res := env.mustFlush(t)
		assert.Equal(t, res.Flushed, 0, "flushed mismatch")
		assert.Equal(t, res.Failed, 4, "failed mismatch")
		assert.Equal(t, res.Err != nil, true, "batch error is missing")
		assert.Equal(t, env.mustCount(t), len(ops), "queue count mismatch")
	})

	env.Net.offline.Store(false)

	res := env.mustFlush(t)
	assert.Equal(t, res.Flushed, len(ops), "flushed mismatch")
	assert.Equal(t, res.Failed, 0, "failed mismatch")
	assert.Equal(t, env.mustCount(t), 0, "queue is not empty")

	entity := mustEntity(t, env.ServerDB, "order-a")
	assert.Equal(t, env.mustServerID(t, "order-a"), entity.ServerID, "server id mismatch")
	assert.Equal(t, entity.Status, app.StatusClosed, "entity status mismatch")
	assert.Equal(t, countServerRows(t, env.ServerDB, &serverdb.AppliedOp{}), int64(len(ops)), "applied ops mismatch")
}

func TestOnlineOrderIsAppliedDirectly(t *testing.T) {
	env := setupTestEnv(t, 10)

	create := env.mustBuild(t, op.CreateOrder{OrderID: "order-b"})
	res := env.mustSendOrQueue(t, create)
	assert.Equal(t, res.Applied, true, "operation was not applied")
	assert.Equal(t, res.ServerID, mustEntity(t, env.ServerDB, "order-b").ServerID, "server id mismatch")

	void := env.mustBuild(t, op.VoidOrder{OrderID: "order-b", Reason: "guest left"})
	res = env.mustSendOrQueue(t, void)
	assert.Equal(t, res.Applied, true, "void was not applied")

	assert.Equal(t, env.mustCount(t), 0, "queue is not empty")
	assert.Equal(t, mustEntity(t, env.ServerDB, "order-b").Status, app.StatusVoided, "entity status mismatch")
}

func TestLostResponseIsNotAppliedTwice(t *testing.T) {
	env := setupTestEnv(t, 10)

	ops := orderOps(t, env, "order-c")

	t.Run("single send", func(t *testing.T) {
		env.Net.dropResponses.Store(1)

		res := env.mustSendOrQueue(t, ops[0])
		assert.Equal(t, res.Queued, true, "operation was not queued")
		assert.Equal(t, countServerRows(t, env.ServerDB, &serverdb.Entity{}), int64(1), "entity count mismatch")

		flushed := env.mustFlush(t)
		assert.Equal(t, flushed.Flushed, 1, "flushed mismatch")
		assert.Equal(t, env.mustServerID(t, "order-c"), mustEntity(t, env.ServerDB, "order-c").ServerID, "server id mismatch")
	})

	t.Run("batch", func(t *testing.T) {
		for _, o := range ops[1:] {
			assert.NoError(t, env.Queue.Enqueue(context.Background(), o), "enqueueing")
		}

		env.Net.dropResponses.Store(1)
		res := env.mustFlush(t)
		assert.Equal(t, res.Flushed, 0, "flushed mismatch")
		assert.Equal(t, env.mustCount(t), len(ops)-1, "queue count mismatch")

		queued, err := env.Queue.List(context.Background())
		assert.NoError(t, err, "listing queue")
		for _, o := range queued {
			assert.Equal(t, o.Attempts, 1, "attempts mismatch")
			assert.NotEqual(t, o.LastError, "", "last error is empty")
		}

		res = env.mustFlush(t)
		assert.Equal(t, res.Flushed, len(ops)-1, "flushed mismatch")
		assert.Equal(t, env.mustCount(t), 0, "queue is not empty")
	})

	assert.Equal(t, countServerRows(t, env.ServerDB, &serverdb.Entity{}), int64(1), "entity count mismatch")
	assert.Equal(t, countServerRows(t, env.ServerDB, &serverdb.AppliedOp{}), int64(len(ops)), "applied ops mismatch")
}

func TestRestartMidFlush(t *testing.T) {
	server, serverDB, n := newServer(t)
	c := clock.NewMock()

	db, dbPath := database.InitTestFileDB(t)
	q, _, s := newTerminal(db, c, server.URL, 2)
	env := &testEnv{Clock: c, DB: db, Queue: q, Syncer: s, Server: server, ServerDB: serverDB, Net: n}

	ops := orderOps(t, env, "order-d")
	for _, o := range ops {
		assert.NoError(t, q.Enqueue(context.Background(), o), "enqueueing")
	}

	// the server applies the first batch, then the terminal goes down before it
	// hears back
	n.dropResponses.Store(1)
	res := env.mustFlush(t)
	assert.Equal(t, res.Flushed, 0, "flushed mismatch")
	assert.NoError(t, db.Close(), "closing database")

	db = database.OpenTestDB(t, dbPath)
	q, r, s := newTerminal(db, c, server.URL, 2)
	env.DB, env.Queue, env.Recon, env.Syncer = db, q, r, s

	assert.Equal(t, env.mustCount(t), len(ops), "queue did not survive the restart")

	res = env.mustFlush(t)
	assert.Equal(t, res.Flushed, len(ops), "flushed mismatch")
	assert.Equal(t, env.mustCount(t), 0, "queue is not empty")

	assert.Equal(t, countServerRows(t, serverDB, &serverdb.Entity{}), int64(1), "entity count mismatch")
	assert.Equal(t, countServerRows(t, serverDB, &serverdb.AppliedOp{}), int64(len(ops)), "applied ops mismatch")
	assert.Equal(t, env.mustServerID(t, "order-d"), mustEntity(t, serverDB, "order-d").ServerID, "server id mismatch")
}
