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

// Package job schedules the background jobs of the sync server
package job

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/server/app"
)

// Pruner deletes applied operations older than a retention
type Pruner interface {
	PruneAppliedOps(retention time.Duration) (int64, error)
}

// Runner runs the scheduled jobs
type Runner struct {
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
}

// NewRunner returns a new runner that prunes applied operations on the given cron
// schedule. The schedule accepts the descriptors of robfig/cron, such as "@hourly".
func NewRunner(a *app.App, schedule string, retention time.Duration) (*Runner, error) {
	return newRunner(a, schedule, retention)
}

func newRunner(p Pruner, schedule string, retention time.Duration) (*Runner, error) {
	if _, err := cron.Parse(schedule); err != nil {
		return nil, errors.Wrapf(err, "parsing schedule '%s'", schedule)
	}

	r := &Runner{
		cron:      cron.New(),
		pruner:    p,
		retention: retention,
	}

	if err := r.cron.AddFunc(schedule, r.Prune); err != nil {
		return nil, errors.Wrap(err, "scheduling prune job")
	}

	return r, nil
}

// Prune runs the prune job once
func (r *Runner) Prune() {
	n, err := r.pruner.PruneAppliedOps(r.retention)
	if err != nil {
		log.ErrorWrap(err, "pruning applied operations")
		return
	}

	log.WithFields(log.Fields{
		"deleted":   n,
		"retention": r.retention.String(),
	}).Info("pruned applied operations")
}

// Start starts the scheduler in its own goroutine
func (r *Runner) Start() {
	r.cron.Start()
}

// Stop stops the scheduler. It does not wait for a running job.
func (r *Runner) Stop() {
	r.cron.Stop()
}
