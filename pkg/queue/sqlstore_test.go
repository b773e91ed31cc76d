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

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/op"
)

func mustOp(t *testing.T, c *clock.Mock, typ op.Type, entityID string) op.Operation {
	t.Helper()

	o, err := op.New(c, typ, []byte(fmt.Sprintf(`{"orderId":"%s"}`, entityID)), entityID)
	if err != nil {
		t.Fatal(errors.Wrap(err, "building operation"))
	}
	c.Advance(time.Millisecond)

	return o
}

func mustEnqueue(t *testing.T, s Store, ops ...op.Operation) {
	t.Helper()

	for _, o := range ops {
		if err := s.Enqueue(context.Background(), o); err != nil {
			t.Fatal(errors.Wrapf(err, "enqueueing %s", o.ClientOpID))
		}
	}
}

func TestEnqueueDurability(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	db, path := database.InitTestFileDB(t)
	s := NewSQLStore(db)

	o := mustOp(t, c, op.TypeCreateOrder, "order-1")
	mustEnqueue(t, s, o)

	// simulate a restart
	assert.NoError(t, db.Close(), "closing database")
	reopened := NewSQLStore(database.OpenTestDB(t, path))

	all, err := reopened.All(ctx)
	assert.NoError(t, err, "listing after restart")
	assert.Equalf(t, len(all), 1, "count mismatch")
	assert.Equal(t, all[0].ClientOpID, o.ClientOpID, "id mismatch")
	assert.Equal(t, all[0].Type, op.TypeCreateOrder, "type mismatch")
	assert.Equal(t, all[0].ClientEntityID, "order-1", "entity id mismatch")
	assert.Equal(t, string(all[0].Payload), `{"orderId":"order-1"}`, "payload mismatch")
	assert.Equal(t, all[0].EnqueuedAt.Equal(o.EnqueuedAt), true, "enqueuedAt mismatch")
}

func TestEnqueueDuplicate(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	o := mustOp(t, c, op.TypeAddItem, "order-1")
	mustEnqueue(t, s, o)

	err := s.Enqueue(ctx, o)
	assert.Equal(t, errors.Cause(err), ErrDuplicate, "error mismatch")

	count, err := s.Count(ctx)
	assert.NoError(t, err, "counting")
	assert.Equal(t, count, 1, "count mismatch")
}

func TestDequeueManyFIFO(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	first := mustOp(t, c, op.TypeCreateOrder, "order-1")
	second := mustOp(t, c, op.TypeAddItem, "order-1")
	third := mustOp(t, c, op.TypeCloseOrder, "order-1")

	// insertion order differs from enqueue time order
	mustEnqueue(t, s, third, first, second)

	testCases := []struct {
		limit    int
		expected []string
	}{
		{0, []string{}},
		{-1, []string{}},
		{1, []string{first.ClientOpID}},
		{2, []string{first.ClientOpID, second.ClientOpID}},
		{10, []string{first.ClientOpID, second.ClientOpID, third.ClientOpID}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("limit %d", tc.limit), func(t *testing.T) {
			got, err := s.DequeueMany(ctx, tc.limit)
			assert.NoError(t, err, "dequeueing")
			assert.DeepEqual(t, op.IDs(got), tc.expected, "ids mismatch")
		})
	}

	count, err := s.Count(ctx)
	assert.NoError(t, err, "counting")
	assert.Equal(t, count, 3, "dequeue removed operations")
}

func TestDequeueAfter(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	a := mustOp(t, c, op.TypeCreateOrder, "order-1")
	b := mustOp(t, c, op.TypeAddItem, "order-1")
	mustEnqueue(t, s, a, b)

	// same timestamp, ordered by id
	tie := a
	tie.ClientOpID = a.ClientOpID + "z"
	mustEnqueue(t, s, tie)

	got, err := s.DequeueAfter(ctx, CursorAfter(a), 10)
	assert.NoError(t, err, "dequeueing after a")
	assert.DeepEqual(t, op.IDs(got), []string{tie.ClientOpID, b.ClientOpID}, "ids mismatch")

	got, err = s.DequeueAfter(ctx, CursorAfter(b), 10)
	assert.NoError(t, err, "dequeueing after b")
	assert.Equal(t, len(got), 0, "expected nothing after the last operation")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	a := mustOp(t, c, op.TypeCreateOrder, "order-1")
	b := mustOp(t, c, op.TypeAddItem, "order-1")
	mustEnqueue(t, s, a, b)

	assert.NoError(t, s.Remove(ctx, []string{a.ClientOpID, "unknown-id"}), "removing")
	assert.NoError(t, s.Remove(ctx, nil), "removing nothing")

	all, err := s.All(ctx)
	assert.NoError(t, err, "listing")
	assert.DeepEqual(t, op.IDs(all), []string{b.ClientOpID}, "ids mismatch")
}

func TestRemoveManyChunks(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	var ids []string
	for i := 0; i < removeChunkSize+20; i++ {
		o := mustOp(t, c, op.TypeAddItem, "order-1")
		mustEnqueue(t, s, o)
		ids = append(ids, o.ClientOpID)
	}

	assert.NoError(t, s.Remove(ctx, ids[:removeChunkSize+10]), "removing")

	count, err := s.Count(ctx)
	assert.NoError(t, err, "counting")
	assert.Equal(t, count, 10, "count mismatch")
}

func TestMarkFailed(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	a := mustOp(t, c, op.TypeCreateOrder, "order-1")
	b := mustOp(t, c, op.TypeAddItem, "order-1")
	mustEnqueue(t, s, a, b)

	assert.NoError(t, s.MarkFailed(ctx, []string{a.ClientOpID}, "timeout"), "marking once")
	assert.NoError(t, s.MarkFailed(ctx, []string{a.ClientOpID}, "503 Service Unavailable"), "marking twice")

	all, err := s.All(ctx)
	assert.NoError(t, err, "listing")
	assert.Equal(t, all[0].Attempts, 2, "attempts mismatch")
	assert.Equal(t, all[0].LastError, "503 Service Unavailable", "last error mismatch")
	assert.Equal(t, all[1].Attempts, 0, "untouched attempts mismatch")
}

func TestClearAndReplaceAll(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	s := NewSQLStore(database.InitTestMemoryDB(t))

	a := mustOp(t, c, op.TypeCreateOrder, "order-1")
	b := mustOp(t, c, op.TypeAddItem, "order-1")
	mustEnqueue(t, s, a)

	t.Run("replace", func(t *testing.T) {
		assert.NoError(t, s.ReplaceAll(ctx, []op.Operation{b}), "replacing")

		all, err := s.All(ctx)
		assert.NoError(t, err, "listing")
		assert.DeepEqual(t, op.IDs(all), []string{b.ClientOpID}, "ids mismatch")
	})

	t.Run("replace with duplicates is atomic", func(t *testing.T) {
		err := s.ReplaceAll(ctx, []op.Operation{a, a})
		assert.Equal(t, errors.Cause(err), ErrDuplicate, "error mismatch")

		all, err := s.All(ctx)
		assert.NoError(t, err, "listing")
		assert.DeepEqual(t, op.IDs(all), []string{b.ClientOpID}, "store changed after a failed replace")
	})

	t.Run("clear", func(t *testing.T) {
		assert.NoError(t, s.Clear(ctx), "clearing")

		count, err := s.Count(ctx)
		assert.NoError(t, err, "counting")
		assert.Equal(t, count, 0, "count mismatch")
	})
}

func TestStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	db := database.InitTestMemoryDB(t)
	s := NewSQLStore(db)
	assert.NoError(t, db.Close(), "closing database")

	if err := s.Enqueue(ctx, mustOp(t, c, op.TypeCreateOrder, "order-1")); err == nil {
		t.Error("expected an enqueue error on a closed database")
	}
	if _, err := s.All(ctx); err == nil {
		t.Error("expected a listing error on a closed database")
	}
	if _, err := s.Count(ctx); err == nil {
		t.Error("expected a count error on a closed database")
	}
}
