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

// Package output prints tillsync entities to the console
package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/tillsync/tillsync/pkg/cli/log"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/reconcile"
)

const timeFormat = "Jan 2, 2006 3:04:05pm (MST)"

// Operation prints the details of a queued operation
func Operation(o op.Operation) {
	log.Infof("operation id: %s\n", o.ClientOpID)
	log.Infof("type: %s\n", o.Type)
	if o.ClientEntityID != "" {
		log.Infof("entity id: %s\n", o.ClientEntityID)
	}
	log.Infof("enqueued at: %s\n", o.EnqueuedAt.Local().Format(timeFormat))
}

// Operations prints queued operations as a table
func Operations(w io.Writer, ops []op.Operation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tENTITY\tENQUEUED\tATTEMPTS\tLAST ERROR")
	for _, o := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.ClientOpID, o.Type, o.ClientEntityID, o.EnqueuedAt.Local().Format(time.RFC3339), o.Attempts, o.LastError)
	}
	tw.Flush()
}

// Entries prints reconciliation entries as a table
func Entries(w io.Writer, entries []reconcile.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT ID\tSERVER ID\tUPDATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ClientID, e.ServerID, e.UpdatedAt.Local().Format(time.RFC3339))
	}
	tw.Flush()
}
