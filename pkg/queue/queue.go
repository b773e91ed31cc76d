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
	"sync"

	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/op"
)

// DepthObserver receives the queue depth after each mutation
type DepthObserver interface {
	SetQueueDepth(n int)
}

// Option configures a Queue
type Option func(*Queue)

// WithDepthObserver reports the queue depth to o after each mutation
func WithDepthObserver(o DepthObserver) Option {
	return func(q *Queue) {
		q.observer = o
	}
}

// Queue serializes access to a Store. Every writer of a store should share one Queue
// so that a peek followed by a removal never interleaves with another mutation.
type Queue struct {
	mu       sync.Mutex
	store    Store
	observer DepthObserver
}

// New returns a queue on top of the given store
func New(store Store, opts ...Option) *Queue {
	q := &Queue{store: store}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// reportDepth must be called with the lock held
func (q *Queue) reportDepth(ctx context.Context) {
	if q.observer == nil {
		return
	}

	n, err := q.store.Count(ctx)
	if err != nil {
		log.ErrorWrap(err, "counting queue for metrics")
		return
	}

	q.observer.SetQueueDepth(n)
}

// Enqueue durably stores the operation
func (q *Queue) Enqueue(ctx context.Context, o op.Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Enqueue(ctx, o); err != nil {
		return err
	}

	q.reportDepth(ctx)
	return nil
}

// DequeueMany returns up to limit of the oldest operations without removing them
func (q *Queue) DequeueMany(ctx context.Context, limit int) ([]op.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.DequeueMany(ctx, limit)
}

// DequeueAfter returns up to limit operations positioned after the cursor
func (q *Queue) DequeueAfter(ctx context.Context, after Cursor, limit int) ([]op.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.DequeueAfter(ctx, after, limit)
}

// Remove deletes operations by id
func (q *Queue) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Remove(ctx, ids); err != nil {
		return err
	}

	q.reportDepth(ctx)
	return nil
}

// MarkFailed records a failed delivery attempt
func (q *Queue) MarkFailed(ctx context.Context, ids []string, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.MarkFailed(ctx, ids, msg)
}

// Count returns the number of pending operations
func (q *Queue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.Count(ctx)
}

// List returns every pending operation in order
func (q *Queue) List(ctx context.Context) ([]op.Operation, error) {
	return q.All(ctx)
}

// All returns every pending operation in order
func (q *Queue) All(ctx context.Context) ([]op.Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.All(ctx)
}

// Clear deletes every pending operation
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Clear(ctx); err != nil {
		return err
	}

	q.reportDepth(ctx)
	return nil
}

// ReplaceAll replaces every pending operation with the given ones
func (q *Queue) ReplaceAll(ctx context.Context, ops []op.Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.ReplaceAll(ctx, ops); err != nil {
		return err
	}

	q.reportDepth(ctx)
	return nil
}
