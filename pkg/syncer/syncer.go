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

// Package syncer delivers operations to the server. It sends operations immediately
// when possible, falls back to the durable queue otherwise, and drains the queue in
// batches.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/queue"
)

// DefaultBatchSize is the number of operations sent per batch
const DefaultBatchSize = 25

// Queue is the durable queue of pending operations
type Queue interface {
	Enqueue(ctx context.Context, o op.Operation) error
	DequeueAfter(ctx context.Context, after queue.Cursor, limit int) ([]op.Operation, error)
	Remove(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string, msg string) error
}

// Reconciler records server ids of client entities
type Reconciler interface {
	Set(ctx context.Context, clientID, serverID string) error
}

// Sender delivers operations to the server
type Sender interface {
	SendOne(ctx context.Context, o op.Operation) (client.ResultItem, error)
	SendBatch(ctx context.Context, ops []op.Operation) ([]client.ResultItem, error)
}

// Recorder receives the outcome of each flush
type Recorder interface {
	ObserveFlush(flushed, failed int, d time.Duration)
}

// Options configures a Syncer
type Options struct {
	BatchSize int
	// AttemptTimeout bounds each request to the server. Zero leaves it to the sender.
	AttemptTimeout time.Duration
	Recorder       Recorder
}

// Syncer delivers operations to the server
type Syncer struct {
	queue      Queue
	reconciler Reconciler
	sender     Sender
	batchSize  int
	timeout    time.Duration
	recorder   Recorder

	// flushMu makes FlushAll single-flight
	flushMu sync.Mutex
}

// New returns a new Syncer
func New(q Queue, r Reconciler, s Sender, opts Options) *Syncer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Syncer{
		queue:      q,
		reconciler: r,
		sender:     s,
		batchSize:  batchSize,
		timeout:    opts.AttemptTimeout,
		recorder:   opts.Recorder,
	}
}

// SendResult is the outcome of SendOrQueue
type SendResult struct {
	// Applied is true if the server confirmed the operation
	Applied bool
	// Queued is true if the operation was persisted for a later flush
	Queued   bool
	ServerID string
	// Message describes why the operation was queued
	Message string
}

// FlushResult is the outcome of FlushAll
type FlushResult struct {
	Flushed int
	Failed  int
	// Err is the batch-level failure that stopped the flush, if any
	Err error
}

// attemptContext returns the context of a single request to the server
func (s *Syncer) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, s.timeout)
}

func (s *Syncer) reconcile(ctx context.Context, o op.Operation, res client.ResultItem) error {
	if res.ServerID == "" || o.ClientEntityID == "" {
		return nil
	}

	if err := s.reconciler.Set(ctx, o.ClientEntityID, res.ServerID); err != nil {
		return errors.Wrapf(err, "reconciling %s", o.ClientEntityID)
	}

	return nil
}

func rejectionMessage(res client.ResultItem) string {
	if res.Message == "" {
		return fmt.Sprintf("server responded with %s", res.Status)
	}

	return fmt.Sprintf("server responded with %s: %s", res.Status, res.Message)
}

// enqueue persists the operation. It ignores cancellation of ctx so that an operation
// is never dropped because its caller gave up.
func (s *Syncer) enqueue(ctx context.Context, o op.Operation, msg string) error {
	o.Attempts++
	o.LastError = msg

	err := s.queue.Enqueue(context.WithoutCancel(ctx), o)
	if errors.Cause(err) == queue.ErrDuplicate {
		return nil
	}

	return err
}

// SendOrQueue sends the operation right away and queues it for a later flush if the
// send fails for any reason. The returned error is non-nil only when queueing fails,
// in which case the operation may not be persisted.
func (s *Syncer) SendOrQueue(ctx context.Context, o op.Operation) (SendResult, error) {
	attemptCtx, cancel := s.attemptContext(ctx)
	res, err := s.sender.SendOne(attemptCtx, o)
	cancel()

	var msg string
	if err != nil {
		msg = err.Error()
	} else if !res.Status.Confirmed() {
		msg = rejectionMessage(res)
	}

	entry := log.WithFields(log.Fields{
		"client_op_id": o.ClientOpID,
		"type":         string(o.Type),
	})

	if msg == "" {
		if rErr := s.reconcile(ctx, o, res); rErr != nil {
			// A later flush gets SKIP with the same server id and reconciles again.
			if qErr := s.enqueue(ctx, o, rErr.Error()); qErr != nil {
				return SendResult{}, errors.Wrap(qErr, "queueing unreconciled operation")
			}

			entry.ErrorWrap(rErr, "operation applied but not reconciled, queued")
			return SendResult{Queued: true, Message: rErr.Error()}, nil
		}

		entry.WithField("server_id", res.ServerID).Debug("operation applied")
		return SendResult{Applied: true, ServerID: res.ServerID}, nil
	}

	if err := s.enqueue(ctx, o, msg); err != nil {
		entry.ErrorWrap(err, "queueing operation")
		return SendResult{}, errors.Wrap(err, "queueing operation")
	}

	entry.WithField("reason", msg).Info("operation queued")
	return SendResult{Queued: true, Message: msg}, nil
}

// FlushAll drains the queue in batches. Confirmed operations are reconciled and removed;
// rejected ones stay queued. A batch that cannot be delivered stops the flush, leaving
// the rest of the queue for the next cycle. The returned error is non-nil only for local
// store failures and cancellation of ctx.
func (s *Syncer) FlushAll(ctx context.Context) (FlushResult, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var result FlushResult
	start := time.Now()
	defer func() {
		if s.recorder != nil {
			s.recorder.ObserveFlush(result.Flushed, result.Failed, time.Since(start))
		}
	}()

	// the cursor moves past every batch so that operations left queued are not
	// attempted twice in one flush
	cursor := queue.Start

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := s.queue.DequeueAfter(ctx, cursor, s.batchSize)
		if err != nil {
			return result, errors.Wrap(err, "peeking batch")
		}
		if len(batch) == 0 {
			break
		}
		cursor = queue.CursorAfter(batch[len(batch)-1])

		attemptCtx, cancel := s.attemptContext(ctx)
		results, err := s.sender.SendBatch(attemptCtx, batch)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}

			result.Failed += len(batch)
			result.Err = err

			if mErr := s.queue.MarkFailed(ctx, op.IDs(batch), err.Error()); mErr != nil {
				return result, errors.Wrap(mErr, "recording failed batch")
			}

			log.WithFields(log.Fields{
				"batch_size": len(batch),
				"flushed":    result.Flushed,
			}).ErrorWrap(err, "sending batch")
			break
		}

		done, err := s.applyResults(ctx, batch, results, &result)
		if rErr := s.queue.Remove(ctx, done); rErr != nil {
			return result, errors.Wrap(rErr, "removing confirmed operations")
		}
		if err != nil {
			return result, err
		}
	}

	if result.Flushed > 0 || result.Failed > 0 {
		log.WithFields(log.Fields{
			"flushed": result.Flushed,
			"failed":  result.Failed,
		}).Info("flushed queue")
	}

	return result, nil
}

// applyResults reconciles confirmed operations and records rejected ones. It returns
// the ids that are safe to remove.
func (s *Syncer) applyResults(ctx context.Context, batch []op.Operation, results []client.ResultItem, result *FlushResult) ([]string, error) {
	var done []string
	rejected := map[string][]string{}
	var messages []string

	for i, o := range batch {
		res := results[i]

		if !res.Status.Confirmed() {
			result.Failed++

			msg := rejectionMessage(res)
			if _, ok := rejected[msg]; !ok {
				messages = append(messages, msg)
			}
			rejected[msg] = append(rejected[msg], o.ClientOpID)

			log.WithFields(log.Fields{
				"client_op_id": o.ClientOpID,
				"type":         string(o.Type),
				"reason":       msg,
			}).Warn("operation rejected")
			continue
		}

		if err := s.reconcile(ctx, o, res); err != nil {
			return done, err
		}

		result.Flushed++
		done = append(done, o.ClientOpID)
	}

	for _, msg := range messages {
		if err := s.queue.MarkFailed(ctx, rejected[msg], msg); err != nil {
			return done, errors.Wrap(err, "recording rejected operations")
		}
	}

	return done, nil
}
