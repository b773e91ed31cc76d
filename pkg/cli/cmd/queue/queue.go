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

// Package queue provides commands to inspect and administer the pending operation queue
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/infra"
	"github.com/tillsync/tillsync/pkg/cli/log"
	"github.com/tillsync/tillsync/pkg/cli/output"
	"github.com/tillsync/tillsync/pkg/cli/ui"
	"github.com/tillsync/tillsync/pkg/cli/utils"
	"github.com/tillsync/tillsync/pkg/op"
)

var example = `
 * List pending operations
 tillsync queue ls

 * Back up the queue and restore it later
 tillsync queue export queue.json
 tillsync queue import queue.json`

// exportVersion is the version of the export file format
const exportVersion = 1

// exportedOp is an operation together with its local bookkeeping
type exportedOp struct {
	op.Operation
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// exportFile is the content of an exported queue
type exportFile struct {
	Version int          `json:"version"`
	Ops     []exportedOp `json:"ops"`
}

// NewCmd returns a new queue command
func NewCmd(ctx context.Ctx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		Short:   "Inspect and administer pending operations",
		Aliases: []string{"q"},
		Example: example,
	}

	cmd.AddCommand(newLsCmd(ctx))
	cmd.AddCommand(newCountCmd(ctx))
	cmd.AddCommand(newClearCmd(ctx))
	cmd.AddCommand(newExportCmd(ctx))
	cmd.AddCommand(newImportCmd(ctx))

	return cmd
}

func newLsCmd(ctx context.Ctx) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Short:   "List pending operations, oldest first",
		Aliases: []string{"list"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := ctx.Queue.List(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "listing operations")
			}

			output.Operations(cmd.OutOrStdout(), ops)
			return nil
		},
	}
}

func newCountCmd(ctx context.Ctx) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of pending operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ctx.Queue.Count(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "counting operations")
			}

			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

// confirm returns true if the user passed --yes or agrees to the question
func confirm(cmd *cobra.Command, yes bool, question string) (bool, error) {
	if yes {
		return true, nil
	}

	ok, err := ui.Confirm(cmd.InOrStdin(), question, false)
	if err != nil {
		return false, errors.Wrap(err, "getting confirmation")
	}

	return ok, nil
}

func newClearCmd(ctx context.Ctx) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every pending operation without delivering it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := ctx.Queue.Count(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "counting operations")
			}

			ok, err := confirm(cmd, yes, fmt.Sprintf("discard %d undelivered operations?", n))
			if err != nil {
				return err
			}
			if !ok {
				log.Warnf("aborted by user\n")
				return nil
			}

			if err := ctx.Queue.Clear(cmd.Context()); err != nil {
				return errors.Wrap(err, "clearing queue")
			}

			log.Successf("cleared the queue\n")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}

func newExportCmd(ctx context.Ctx) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write pending operations to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  newExportRun(ctx),
	}
}

func newExportRun(ctx context.Ctx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		path, err := infra.AbsPath(args[0])
		if err != nil {
			return err
		}

		ops, err := ctx.Queue.List(cmd.Context())
		if err != nil {
			return errors.Wrap(err, "listing operations")
		}

		f := exportFile{Version: exportVersion, Ops: make([]exportedOp, len(ops))}
		for i, o := range ops {
			f.Ops[i] = exportedOp{Operation: o, Attempts: o.Attempts, LastError: o.LastError}
		}

		// Payloads are stored compact; indenting the file would rewrite them.
		b, err := json.Marshal(f)
		if err != nil {
			return errors.Wrap(err, "marshalling operations")
		}

		if err := utils.WriteFileAtomic(path, b, 0600); err != nil {
			return errors.Wrap(err, "writing export file")
		}

		log.Successf("exported %d operations to %s\n", len(ops), path)
		return nil
	}
}

func readExport(path string) ([]op.Operation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading export file")
	}

	var f exportFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "unmarshalling export file")
	}
	if f.Version != exportVersion {
		return nil, errors.Errorf("unsupported export version %d", f.Version)
	}

	ret := make([]op.Operation, len(f.Ops))
	for i, e := range f.Ops {
		o := e.Operation
		if o.ClientOpID == "" {
			return nil, errors.New("operation without an id")
		}
		if !o.Type.Valid() {
			return nil, errors.Wrapf(op.ErrUnknownType, "operation %s has type '%s'", o.ClientOpID, o.Type)
		}
		if len(o.Payload) == 0 {
			return nil, errors.Wrapf(op.ErrInvalidPayload, "operation %s", o.ClientOpID)
		}

		// hand-edited files may carry indented payloads
		var buf bytes.Buffer
		if err := json.Compact(&buf, o.Payload); err != nil {
			return nil, errors.Wrapf(op.ErrInvalidPayload, "operation %s", o.ClientOpID)
		}
		o.Payload = json.RawMessage(buf.Bytes())
		o.Attempts = e.Attempts
		o.LastError = e.LastError

		ret[i] = o
	}

	return ret, nil
}

func newImportCmd(ctx context.Ctx) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the queue with the operations of an exported file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := infra.AbsPath(args[0])
			if err != nil {
				return err
			}

			ops, err := readExport(path)
			if err != nil {
				return err
			}

			n, err := ctx.Queue.Count(cmd.Context())
			if err != nil {
				return errors.Wrap(err, "counting operations")
			}
			if n > 0 {
				ok, err := confirm(cmd, yes, fmt.Sprintf("replace %d queued operations with %d from %s?", n, len(ops), path))
				if err != nil {
					return err
				}
				if !ok {
					log.Warnf("aborted by user\n")
					return nil
				}
			}

			if err := ctx.Queue.ReplaceAll(cmd.Context(), ops); err != nil {
				return errors.Wrap(err, "replacing queue")
			}

			log.Successf("imported %d operations\n", len(ops))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")

	return cmd
}
