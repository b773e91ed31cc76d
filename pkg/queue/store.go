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

// Package queue implements the durable queue of operations pending delivery
package queue

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/op"
)

// ErrDuplicate is returned when an operation with the same client operation id is
// already stored
var ErrDuplicate = errors.New("operation already queued")

// Store is a durable, ordered store of pending operations. Iteration order is
// EnqueuedAt ascending with the client operation id as the tie breaker.
type Store interface {
	Enqueue(ctx context.Context, o op.Operation) error
	// DequeueMany returns up to limit of the oldest operations without removing them
	DequeueMany(ctx context.Context, limit int) ([]op.Operation, error)
	// DequeueAfter is like DequeueMany but only returns operations ordered after the cursor
	DequeueAfter(ctx context.Context, after Cursor, limit int) ([]op.Operation, error)
	// Remove deletes the operations with the given ids. Unknown ids are ignored.
	Remove(ctx context.Context, ids []string) error
	// MarkFailed records a failed delivery attempt on the given operations
	MarkFailed(ctx context.Context, ids []string, msg string) error
	Count(ctx context.Context) (int, error)
	All(ctx context.Context) ([]op.Operation, error)
	Clear(ctx context.Context) error
	// ReplaceAll atomically replaces the content of the store
	ReplaceAll(ctx context.Context, ops []op.Operation) error
}

// Cursor is a position in the store's iteration order
type Cursor struct {
	EnqueuedAt int64
	ID         string
}

// CursorAfter returns the cursor positioned right after the given operation
func CursorAfter(o op.Operation) Cursor {
	return Cursor{
		EnqueuedAt: o.EnqueuedAt.UnixNano(),
		ID:         o.ClientOpID,
	}
}

// Start is the cursor positioned before every operation
var Start = Cursor{EnqueuedAt: math.MinInt64}
