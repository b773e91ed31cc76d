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

// Package reconcile provides commands to inspect the client id to server id map
package reconcile

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/log"
	"github.com/tillsync/tillsync/pkg/cli/output"
)

var example = `
 * Find the server id of an order created offline
 tillsync reconcile get order-1`

// NewCmd returns a new reconcile command
func NewCmd(ctx context.Ctx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		Short:   "Inspect the mapping from client ids to server ids",
		Aliases: []string{"r"},
		Example: example,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <client id>",
		Short: "Print the server id of a client id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverID, ok, err := ctx.Reconcile.Get(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrap(err, "getting server id")
			}
			if !ok {
				return errors.Errorf("'%s' is not reconciled yet", args[0])
			}

			fmt.Fprintln(cmd.OutOrStdout(), serverID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <client id> <server id>",
		Short: "Map a client id to a server id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.Reconcile.Set(cmd.Context(), args[0], args[1]); err != nil {
				return errors.Wrap(err, "setting server id")
			}

			log.Successf("mapped %s to %s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Short:   "List every mapping",
		Aliases: []string{"list"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.Reconcile.All(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "listing mappings")
			}

			output.Entries(cmd.OutOrStdout(), entries)
			return nil
		},
	})

	return cmd
}
