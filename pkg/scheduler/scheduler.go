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

// Package scheduler periodically flushes the queue of pending operations, backing off
// exponentially while flushes fail
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/syncer"
)

// Defaults
const (
	DefaultBaseInterval = 10 * time.Second
	DefaultMaxInterval  = 60 * time.Second
)

// Flusher drains the queue
type Flusher interface {
	FlushAll(ctx context.Context) (syncer.FlushResult, error)
}

// Counter reports the number of pending operations
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Observer receives the current backoff after each tick
type Observer interface {
	SetBackoff(d time.Duration)
}

// State is the state of the scheduler
type State int32

const (
	// StateIdle waits for the next tick
	StateIdle State = iota
	// StateCheck checks connectivity and the queue
	StateCheck
	// StateFlushing flushes the queue
	StateFlushing
	// StateResetBackoff resets the interval after a successful flush
	StateResetBackoff
	// StateGrowBackoff grows the interval after a failed flush
	StateGrowBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCheck:
		return "CHECK"
	case StateFlushing:
		return "FLUSHING"
	case StateResetBackoff:
		return "RESET_BACKOFF"
	case StateGrowBackoff:
		return "GROW_BACKOFF"
	}

	return "UNKNOWN"
}

// TickOutcome describes what a tick did
type TickOutcome int

const (
	// TickSkipped means another tick was in flight
	TickSkipped TickOutcome = iota
	// TickOffline means the terminal was offline
	TickOffline
	// TickEmpty means there was nothing to flush
	TickEmpty
	// TickFlushed means the flush succeeded
	TickFlushed
	// TickFailed means the flush failed at least partially
	TickFailed
)

// Options configures a Scheduler
type Options struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration
	// Online reports connectivity. The scheduler assumes it is always online if nil.
	// Network attempts are bounded by the flusher, not by the scheduler.
	Online   func(ctx context.Context) bool
	Observer Observer
}

// Scheduler runs flushes on a timer
type Scheduler struct {
	flusher Flusher
	counter Counter
	opts    Options

	state    atomic.Int32
	inFlight atomic.Bool

	mu      sync.Mutex
	backoff time.Duration
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a new scheduler. It does not start it.
func New(flusher Flusher, counter Counter, opts Options) *Scheduler {
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = DefaultBaseInterval
	}
	if opts.MaxInterval < opts.BaseInterval {
		opts.MaxInterval = DefaultMaxInterval
		if opts.MaxInterval < opts.BaseInterval {
			opts.MaxInterval = opts.BaseInterval
		}
	}
	if opts.Online == nil {
		opts.Online = func(ctx context.Context) bool { return true }
	}

	return &Scheduler{
		flusher: flusher,
		counter: counter,
		opts:    opts,
		backoff: opts.BaseInterval,
	}
}

// CurrentBackoff returns the interval until the next tick
func (s *Scheduler) CurrentBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.backoff
}

// State returns the current state
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Running reports whether the scheduler loop is running
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.done != nil
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Scheduler) resetBackoff() {
	s.setState(StateResetBackoff)

	s.mu.Lock()
	s.backoff = s.opts.BaseInterval
	s.mu.Unlock()
}

func (s *Scheduler) growBackoff() {
	s.setState(StateGrowBackoff)

	s.mu.Lock()
	s.backoff *= 2
	if s.backoff > s.opts.MaxInterval {
		s.backoff = s.opts.MaxInterval
	}
	s.mu.Unlock()
}

// Tick runs one cycle synchronously. It returns TickSkipped without doing anything
// if another tick is in flight.
func (s *Scheduler) Tick(ctx context.Context) TickOutcome {
	if !s.inFlight.CompareAndSwap(false, true) {
		return TickSkipped
	}
	defer s.inFlight.Store(false)

	outcome := s.tick(ctx)

	s.setState(StateIdle)
	if s.opts.Observer != nil {
		s.opts.Observer.SetBackoff(s.CurrentBackoff())
	}

	return outcome
}

func (s *Scheduler) tick(ctx context.Context) TickOutcome {
	s.setState(StateCheck)

	if !s.opts.Online(ctx) {
		log.Debug("offline, skipping flush")
		return TickOffline
	}

	n, err := s.counter.Count(ctx)
	if err != nil {
		log.ErrorWrap(err, "counting pending operations")
		s.growBackoff()
		return TickFailed
	}
	if n == 0 {
		s.resetBackoff()
		return TickEmpty
	}

	s.setState(StateFlushing)

	result, err := s.flusher.FlushAll(ctx)
	if err == nil {
		err = result.Err
	}

	if err != nil || result.Failed > 0 {
		s.growBackoff()

		entry := log.WithFields(log.Fields{
			"flushed": result.Flushed,
			"failed":  result.Failed,
			"backoff": s.CurrentBackoff(),
		})
		if err != nil {
			entry.ErrorWrap(err, "flush failed")
		} else {
			entry.Warn("flush left operations queued")
		}

		return TickFailed
	}

	s.resetBackoff()
	return TickFlushed
}

// Start runs one tick immediately and then one tick every CurrentBackoff until Stop is
// called. Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		log.Warn("scheduler is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.Tick(ctx)

	timer := time.NewTimer(s.CurrentBackoff())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx)
			// the timer is re-armed only once the tick is over
			timer.Reset(s.CurrentBackoff())
		}
	}
}

// Stop cancels any in-flight flush and waits for the loop to exit. Calling Stop on a
// stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}

	cancel()
	<-done
}

// Run starts the scheduler and blocks until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()

	if err := ctx.Err(); err != nil && err != context.Canceled {
		return errors.Wrap(err, "scheduler stopped")
	}

	return nil
}
