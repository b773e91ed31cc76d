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

// Package add provides the add command
package add

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/infra"
	"github.com/tillsync/tillsync/pkg/cli/log"
	"github.com/tillsync/tillsync/pkg/cli/output"
	"github.com/tillsync/tillsync/pkg/op"
)

var example = `
 * Open an order
 tillsync add CREATE_ORDER --entity order-1 --payload '{"orderId":"order-1","tableId":"12"}'

 * Add an item, reading the payload from stdin
 echo '{"orderId":"order-1","menuItemId":"espresso","quantity":2}' | tillsync add ADD_ITEM --entity order-1`

func preRun(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("Incorrect number of argument")
	}

	return nil
}

type flags struct {
	payload  string
	entityID string
}

// NewCmd returns a new add command
func NewCmd(ctx context.Ctx) *cobra.Command {
	var fl flags

	cmd := &cobra.Command{
		Use:     "add <type>",
		Short:   "Record an operation and deliver it, or queue it if the server is unreachable",
		Aliases: []string{"a"},
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx, &fl, os.Stdin),
	}

	f := cmd.Flags()
	f.StringVarP(&fl.payload, "payload", "p", "", "JSON payload of the operation. Read from stdin if omitted and stdin is piped")
	f.StringVarP(&fl.entityID, "entity", "e", "", "client-generated id of the entity the operation is about")

	return cmd
}

func isPiped(f *os.File) bool {
	if f == nil {
		return false
	}

	fInfo, err := f.Stat()
	if err != nil {
		return false
	}

	return fInfo.Mode()&os.ModeCharDevice == 0
}

func getPayload(fl *flags, stdin *os.File) ([]byte, error) {
	if fl.payload != "" {
		return []byte(fl.payload), nil
	}

	if isPiped(stdin) {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "reading piped input")
		}
		return b, nil
	}

	return nil, nil
}

func newRun(ctx context.Ctx, fl *flags, stdin *os.File) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		t, err := op.ParseType(args[0])
		if err != nil {
			return err
		}

		payload, err := getPayload(fl, stdin)
		if err != nil {
			return errors.Wrap(err, "getting payload")
		}

		o, err := op.New(ctx.Clock, t, payload, fl.entityID)
		if err != nil {
			return errors.Wrap(err, "building operation")
		}

		result, err := ctx.Syncer.SendOrQueue(cmd.Context(), o)
		if err != nil {
			return errors.Wrap(err, "recording operation")
		}

		output.Operation(o)
		if result.Applied {
			if result.ServerID != "" {
				log.Successf("applied (server id %s)\n", result.ServerID)
			} else {
				log.Successf("applied\n")
			}
		} else {
			log.Warnf("queued: %s\n", result.Message)
		}

		return nil
	}
}
