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

package app

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/server/database"
	"github.com/tillsync/tillsync/pkg/server/testutils"
)

func newTestApp(t *testing.T) *App {
	return &App{
		DB:    testutils.InitMemoryDB(t),
		Clock: clock.NewMock(),
	}
}

func mustApply(t *testing.T, a *App, orgID string, ops ...op.Operation) []client.ResultItem {
	t.Helper()

	res, err := a.ApplyBatch(orgID, ops)
	if err != nil {
		t.Fatal(errors.Wrap(err, "applying batch"))
	}
	assert.Equal(t, len(res), len(ops), "result count mismatch")

	return res
}

func TestApplyBatch(t *testing.T) {
	t.Run("create then mutate", func(t *testing.T) {
		a := newTestApp(t)

		res := mustApply(t, a, "org-1",
			testutils.NewOp("op-1", op.TypeCreateOrder, "order-1"),
			testutils.NewOp("op-2", op.TypeAddItem, "order-1"),
			testutils.NewOp("op-3", op.TypeCloseOrder, "order-1"),
		)

		for _, r := range res {
			assert.Equal(t, r.Status, client.StatusOK, "status mismatch")
			assert.NotEqual(t, r.ServerID, "", "server id is empty")
			assert.Equal(t, r.ServerID, res[0].ServerID, "server id mismatch")
		}

		var entity database.Entity
		testutils.MustExec(t, a.DB.Where("client_id = ?", "order-1").First(&entity), "finding entity")
		assert.Equal(t, entity.Status, StatusClosed, "status mismatch")
		assert.Equal(t, entity.ServerID, res[0].ServerID, "entity server id mismatch")
	})

	t.Run("resend is skipped with the same server id", func(t *testing.T) {
		a := newTestApp(t)
		create := testutils.NewOp("op-1", op.TypeCreateOrder, "order-1")

		first := mustApply(t, a, "org-1", create)
		second := mustApply(t, a, "org-1", create)

		assert.Equal(t, first[0].Status, client.StatusOK, "first status mismatch")
		assert.Equal(t, second[0].Status, client.StatusSkip, "second status mismatch")
		assert.Equal(t, second[0].ServerID, first[0].ServerID, "server id mismatch")

		var count int64
		testutils.MustExec(t, a.DB.Model(&database.Entity{}).Count(&count), "counting entities")
		assert.Equal(t, count, int64(1), "entity count mismatch")
	})

	t.Run("organizations are isolated", func(t *testing.T) {
		a := newTestApp(t)
		create := testutils.NewOp("op-1", op.TypeCreateOrder, "order-1")

		r1 := mustApply(t, a, "org-1", create)
		r2 := mustApply(t, a, "org-2", create)

		assert.Equal(t, r2[0].Status, client.StatusOK, "status mismatch")
		assert.NotEqual(t, r2[0].ServerID, r1[0].ServerID, "server ids are shared across organizations")
	})

	t.Run("unknown entity", func(t *testing.T) {
		a := newTestApp(t)

		res := mustApply(t, a, "org-1", testutils.NewOp("op-1", op.TypeAddItem, "order-404"))
		assert.Equal(t, res[0].Status, client.StatusError, "status mismatch")
		assert.Equal(t, res[0].Message, MsgUnknownEntity, "message mismatch")

		// applies once the order exists
		res = mustApply(t, a, "org-1",
			testutils.NewOp("op-0", op.TypeCreateOrder, "order-404"),
			testutils.NewOp("op-1", op.TypeAddItem, "order-404"),
		)
		assert.Equal(t, res[1].Status, client.StatusOK, "status mismatch after create")
	})

	t.Run("rejections do not stop the batch", func(t *testing.T) {
		a := newTestApp(t)

		res := mustApply(t, a, "org-1",
			testutils.NewOp("op-1", op.Type("REFUND"), "order-1"),
			testutils.NewOp("", op.TypeCreateOrder, "order-1"),
			op.Operation{ClientOpID: "op-3", Type: op.TypeCreateOrder, Payload: json.RawMessage(`{}`)},
			testutils.NewOp("op-4", op.TypeCreateOrder, "order-1"),
		)

		assert.Equal(t, res[0].Message, MsgUnknownType, "unknown type message mismatch")
		assert.Equal(t, res[1].Message, MsgMissingOpID, "missing id message mismatch")
		assert.Equal(t, res[2].Message, MsgMissingEntity, "missing entity message mismatch")
		assert.Equal(t, res[3].Status, client.StatusOK, "status mismatch")
	})

	t.Run("rejected operations are not recorded", func(t *testing.T) {
		a := newTestApp(t)
		add := testutils.NewOp("op-1", op.TypeAddItem, "order-1")

		mustApply(t, a, "org-1", add)

		var count int64
		testutils.MustExec(t, a.DB.Model(&database.AppliedOp{}).Count(&count), "counting applied ops")
		assert.Equal(t, count, int64(0), "applied op count mismatch")
	})

	t.Run("entity id from payload", func(t *testing.T) {
		a := newTestApp(t)
		o := testutils.NewOp("op-1", op.TypeCreateOrder, "order-9")
		o.ClientEntityID = ""

		res := mustApply(t, a, "org-1", o)
		assert.Equal(t, res[0].Status, client.StatusOK, "status mismatch")

		var entity database.Entity
		testutils.MustExec(t, a.DB.Where("client_id = ?", "order-9").First(&entity), "finding entity")
	})
}

func TestValidate(t *testing.T) {
	assert.Equal(t, (&App{Clock: clock.NewMock()}).Validate(), ErrEmptyDB, "missing db")
	assert.Equal(t, (&App{}).Validate(), ErrEmptyClock, "missing clock")
}
