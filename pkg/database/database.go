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

// Package database provides the local SQLite database of the terminal.
// It holds the pending operation queue and the reconciliation map.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// dsnParams makes every commit durable before it returns and serializes writers.
// synchronous=FULL syncs the WAL on each commit so that a power loss right after
// Enqueue returns does not lose the operation.
var dsnParams = []string{
	"_journal_mode=WAL",
	"_synchronous=FULL",
	"_busy_timeout=5000",
	"_foreign_keys=1",
	"_txlock=immediate",
}

// DB contains information about the current database connection. Inside a
// transaction, Tx is set and all queries go through it.
type DB struct {
	Conn *sql.DB
	Tx   *sql.Tx
}

func withParams(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + strings.Join(dsnParams, "&")
}

// Open opens a connection to the database at the given path, creating the parent
// directory if necessary
func Open(p string) (*DB, error) {
	if !strings.HasPrefix(p, "file:") {
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating database directory at %s", dir)
		}
	}

	conn, err := sql.Open("sqlite3", withParams(p))
	if err != nil {
		return nil, errors.Wrap(err, "opening db connection")
	}

	// SQLite supports a single writer. One connection keeps the queue's
	// read-then-delete sequences from interleaving at the driver level.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "connecting to db")
	}

	return &DB{Conn: conn}, nil
}

// Begin begins a transaction
func (d *DB) Begin() (*DB, error) {
	return d.BeginTx(context.Background())
}

// BeginTx begins a transaction bound to the given context
func (d *DB) BeginTx(ctx context.Context) (*DB, error) {
	if d.Tx != nil {
		return nil, errors.New("transaction already in progress")
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning a transaction")
	}

	return &DB{Conn: d.Conn, Tx: tx}, nil
}

// Commit commits the transaction
func (d *DB) Commit() error {
	if d.Tx == nil {
		return errors.New("no transaction in progress")
	}

	if err := d.Tx.Commit(); err != nil {
		return errors.Wrap(err, "committing a transaction")
	}

	return nil
}

// Rollback rolls back the transaction. It is a no-op outside a transaction.
func (d *DB) Rollback() error {
	if d.Tx == nil {
		return nil
	}

	if err := d.Tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, "rolling back a transaction")
	}

	return nil
}

// ExecContext executes a query without returning any rows
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if d.Tx != nil {
		return d.Tx.ExecContext(ctx, query, args...)
	}

	return d.Conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if d.Tx != nil {
		return d.Tx.QueryContext(ctx, query, args...)
	}

	return d.Conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that is expected to return at most one row
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	if d.Tx != nil {
		return d.Tx.QueryRowContext(ctx, query, args...)
	}

	return d.Conn.QueryRowContext(ctx, query, args...)
}

// Exec executes a query without returning any rows
func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return d.ExecContext(context.Background(), query, args...)
}

// QueryRow executes a query that is expected to return at most one row
func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.QueryRowContext(context.Background(), query, args...)
}

// Close closes the database connection
func (d *DB) Close() error {
	if err := d.Conn.Close(); err != nil {
		return errors.Wrap(err, "closing db connection")
	}

	return nil
}

// Placeholders returns n comma separated bind parameters, e.g. "?, ?, ?"
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}

	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// String implements fmt.Stringer for debug output
func (d *DB) String() string {
	return fmt.Sprintf("database.DB{tx: %t}", d.Tx != nil)
}
