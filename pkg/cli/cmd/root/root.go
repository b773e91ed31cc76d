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

// Package root provides the root command of the CLI
package root

import (
	"github.com/spf13/cobra"
)

// Global flags. They are parsed before the context is initialized and are declared
// here so that cobra accepts them on every command.
var (
	dbPathFlag      string
	apiEndpointFlag string
	orgIDFlag       string
)

var root = &cobra.Command{
	Use:           "tillsync",
	Short:         "tillsync - offline operation queue of a point of sale terminal",
	SilenceErrors: true,
	SilenceUsage:  true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	f := root.PersistentFlags()
	f.StringVar(&dbPathFlag, "dbPath", "", "the path to the database file (defaults to standard location)")
	f.StringVar(&apiEndpointFlag, "apiEndpoint", "", "API endpoint to connect to (defaults to value in config)")
	f.StringVar(&orgIDFlag, "orgId", "", "organization of this terminal (defaults to value in config)")
}

// GlobalFlags lists the names of the persistent flags
var GlobalFlags = []string{"dbPath", "apiEndpoint", "orgId"}

// GetRoot returns the root command
func GetRoot() *cobra.Command {
	return root
}

// Register adds a new command
func Register(cmd *cobra.Command) {
	root.AddCommand(cmd)
}

// Execute runs the main command
func Execute() error {
	return root.Execute()
}
