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

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/database"
)

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()
	m := New(database.InitTestMemoryDB(t), c)

	_, ok, err := m.Get(ctx, "order-1")
	assert.NoError(t, err, "getting unknown id")
	assert.Equal(t, ok, false, "unknown id found")

	assert.NoError(t, m.Set(ctx, "order-1", "srv-1"), "setting")
	got, ok, err := m.Get(ctx, "order-1")
	assert.NoError(t, err, "getting")
	assert.Equal(t, ok, true, "id not found")
	assert.Equal(t, got, "srv-1", "server id mismatch")

	t.Run("overwrite", func(t *testing.T) {
		c.Advance(time.Minute)
		assert.NoError(t, m.Set(ctx, "order-1", "srv-2"), "overwriting")
		assert.NoError(t, m.Set(ctx, "order-1", "srv-2"), "overwriting again")

		entries, err := m.All(ctx)
		assert.NoError(t, err, "listing")
		assert.DeepEqual(t, entries, []Entry{{ClientID: "order-1", ServerID: "srv-2", UpdatedAt: c.Now()}}, "entries mismatch")
	})
}

func TestEmptyIDs(t *testing.T) {
	ctx := context.Background()
	m := New(database.InitTestMemoryDB(t), clock.NewMock())

	_, _, err := m.Get(ctx, "")
	assert.Equal(t, err, ErrEmptyID, "get error mismatch")
	assert.Equal(t, m.Set(ctx, "", "srv-1"), ErrEmptyID, "set client error mismatch")
	assert.Equal(t, m.Set(ctx, "order-1", ""), ErrEmptyID, "set server error mismatch")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	m := New(database.InitTestMemoryDB(t), clock.NewMock())
	assert.NoError(t, m.Set(ctx, "order-1", "srv-1"), "setting")

	got, err := m.Resolve(ctx, "order-1")
	assert.NoError(t, err, "resolving known id")
	assert.Equal(t, got, "srv-1", "known id mismatch")

	got, err = m.Resolve(ctx, "order-2")
	assert.NoError(t, err, "resolving unknown id")
	assert.Equal(t, got, "order-2", "unknown id should resolve to itself")
}

func TestPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	c := clock.NewMock()

	db, path := database.InitTestFileDB(t)
	assert.NoError(t, New(db, c).Set(ctx, "order-1", "srv-99"), "setting")
	assert.NoError(t, db.Close(), "closing database")

	m := New(database.OpenTestDB(t, path), c)
	got, ok, err := m.Get(ctx, "order-1")
	assert.NoError(t, err, "getting after restart")
	assert.Equal(t, ok, true, "mapping lost after restart")
	assert.Equal(t, got, "srv-99", "server id mismatch")
}
