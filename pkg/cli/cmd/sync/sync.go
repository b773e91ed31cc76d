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

// Package sync provides the sync command
package sync

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/infra"
	"github.com/tillsync/tillsync/pkg/cli/log"
)

var example = `
  tillsync sync`

// NewCmd returns a new sync command
func NewCmd(ctx context.Ctx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Deliver pending operations to the server",
		Example: example,
		Args:    cobra.NoArgs,
		RunE:    newRun(ctx),
	}

	return cmd
}

func newRun(ctx context.Ctx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		result, err := ctx.Syncer.FlushAll(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "flushing queue")
		}

		remaining, err := ctx.Queue.Count(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "counting remaining operations")
		}

		if result.Err != nil {
			log.Warnf("could not reach the server: %s\n", result.Err.Error())
		}

		if result.Failed > 0 {
			log.Warnf("flushed %d, failed %d, %d still queued\n", result.Flushed, result.Failed, remaining)
			return errors.Errorf("%d operations failed", result.Failed)
		}

		log.Successf("flushed %d, %d still queued\n", result.Flushed, remaining)
		return nil
	}
}
