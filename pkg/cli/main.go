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

package main

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/cli/infra"
	"github.com/tillsync/tillsync/pkg/cli/log"

	// commands
	"github.com/tillsync/tillsync/pkg/cli/cmd/add"
	"github.com/tillsync/tillsync/pkg/cli/cmd/daemon"
	"github.com/tillsync/tillsync/pkg/cli/cmd/queue"
	"github.com/tillsync/tillsync/pkg/cli/cmd/reconcile"
	"github.com/tillsync/tillsync/pkg/cli/cmd/root"
	"github.com/tillsync/tillsync/pkg/cli/cmd/sync"
	"github.com/tillsync/tillsync/pkg/cli/cmd/version"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseFlag extracts the value of a global flag from command line arguments
// regardless of where it appears (before or after subcommand).
// Returns empty string if not found.
func parseFlag(args []string, name string) string {
	long := "--" + name
	for i, arg := range args {
		// Handle --name=value
		if strings.HasPrefix(arg, long+"=") {
			return strings.TrimPrefix(arg, long+"=")
		}
		// Handle --name value
		if arg == long && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func main() {
	// Global flags are needed before the context is initialized and can appear after
	// the subcommand (e.g. "tillsync sync --dbPath=./custom.db"), which root.ParseFlags
	// does not handle.
	args := os.Args[1:]
	flags := infra.Flags{
		DBPath:      parseFlag(args, "dbPath"),
		APIEndpoint: parseFlag(args, "apiEndpoint"),
		OrgID:       parseFlag(args, "orgId"),
	}

	ctx, err := infra.Init(versionTag, apiEndpoint, flags)
	if err != nil {
		log.Errorf("%s\n", errors.Wrap(err, "initializing context").Error())
		os.Exit(1)
	}
	defer ctx.DB.Close()

	root.Register(add.NewCmd(*ctx))
	root.Register(queue.NewCmd(*ctx))
	root.Register(sync.NewCmd(*ctx))
	root.Register(daemon.NewCmd(*ctx))
	root.Register(reconcile.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		ctx.DB.Close()
		os.Exit(1)
	}
}
