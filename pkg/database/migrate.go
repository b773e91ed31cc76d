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

package database

import (
	"embed"

	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
)

// MigrationTableName is the name of the table that keeps track of migrations
const MigrationTableName = "migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

var migrationSet = migrate.MigrationSet{
	TableName: MigrationTableName,
}

func migrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies all pending schema migrations and returns how many were applied.
// It is safe to call on every startup.
func Migrate(db *DB) (int, error) {
	n, err := migrationSet.Exec(db.Conn, "sqlite3", migrationSource(), migrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "running migrations")
	}

	return n, nil
}

// OpenAndMigrate opens the database at the given path and brings its schema up to date
func OpenAndMigrate(p string) (*DB, error) {
	db, err := Open(p)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
