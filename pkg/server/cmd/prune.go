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

package cmd

import (
	"fmt"
	"os"

	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/server/config"
	"github.com/tillsync/tillsync/pkg/server/database"
)

func pruneCmd(args []string) {
	fs := setupFlagSet("prune", "tillsync-server prune")

	db := addDBFlags(fs)
	retention := fs.String("retention", "", "How long idempotency records are kept (env: IDEMPOTENCY_RETENTION, default: 720h)")

	fs.Parse(args)

	cfg := mustConfig(fs, config.Params{
		DBDriver:  *db.driver,
		DBDSN:     *db.dsn,
		Retention: *retention,
	})

	a, err := initApp(cfg)
	if err != nil {
		log.ErrorWrap(err, "initializing app")
		os.Exit(1)
	}
	defer database.Close(a.DB)

	n, err := a.PruneAppliedOps(cfg.Retention)
	if err != nil {
		log.ErrorWrap(err, "pruning applied operations")
		os.Exit(1)
	}

	fmt.Printf("Removed %d expired idempotency records\n", n)
}
