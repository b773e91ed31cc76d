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

package queue

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/op"
)

// removeChunkSize keeps the number of bind parameters under SQLite's limit
const removeChunkSize = 500

const selectColumns = "id, type, payload, client_entity_id, enqueued_at, attempts, last_error"

// SQLStore is a Store backed by the pending_ops table of the local database
type SQLStore struct {
	db *database.DB
}

// NewSQLStore returns a store on top of the given database. The schema must be migrated.
func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db}
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func insert(ctx context.Context, db *database.DB, o op.Operation) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO pending_ops (id, type, payload, client_entity_id, enqueued_at, attempts, last_error) VALUES (?, ?, ?, ?, ?, ?, ?)",
		o.ClientOpID, string(o.Type), []byte(o.Payload), o.ClientEntityID, o.EnqueuedAt.UnixNano(), o.Attempts, o.LastError)
	if err != nil {
		if isConstraintError(err) {
			return errors.Wrapf(ErrDuplicate, "'%s'", o.ClientOpID)
		}

		return errors.Wrapf(err, "inserting operation %s", o.ClientOpID)
	}

	return nil
}

// Enqueue durably inserts one operation
func (s *SQLStore) Enqueue(ctx context.Context, o op.Operation) error {
	if o.ClientOpID == "" {
		return errors.New("operation has no client operation id")
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insert(ctx, tx, o); err != nil {
		return err
	}

	return tx.Commit()
}

func scanOps(rows *sql.Rows) ([]op.Operation, error) {
	defer rows.Close()

	ret := []op.Operation{}
	for rows.Next() {
		var o op.Operation
		var typ string
		var payload []byte
		var enqueuedAt int64

		if err := rows.Scan(&o.ClientOpID, &typ, &payload, &o.ClientEntityID, &enqueuedAt, &o.Attempts, &o.LastError); err != nil {
			return nil, errors.Wrap(err, "scanning operation")
		}

		o.Type = op.Type(typ)
		o.Payload = payload
		o.EnqueuedAt = time.Unix(0, enqueuedAt).UTC()

		ret = append(ret, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating operations")
	}

	return ret, nil
}

// DequeueMany returns up to limit of the oldest operations
func (s *SQLStore) DequeueMany(ctx context.Context, limit int) ([]op.Operation, error) {
	return s.DequeueAfter(ctx, Start, limit)
}

// DequeueAfter returns up to limit of the oldest operations positioned after the cursor
func (s *SQLStore) DequeueAfter(ctx context.Context, after Cursor, limit int) ([]op.Operation, error) {
	if limit <= 0 {
		return []op.Operation{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM pending_ops
		WHERE enqueued_at > ? OR (enqueued_at = ? AND id > ?)
		ORDER BY enqueued_at ASC, id ASC
		LIMIT ?`, after.EnqueuedAt, after.EnqueuedAt, after.ID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending operations")
	}

	return scanOps(rows)
}

func chunk(ids []string, size int) [][]string {
	var ret [][]string
	for len(ids) > size {
		ret = append(ret, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		ret = append(ret, ids)
	}

	return ret
}

func toArgs(ids []string, prefix ...interface{}) []interface{} {
	args := make([]interface{}, 0, len(prefix)+len(ids))
	args = append(args, prefix...)
	for _, id := range ids {
		args = append(args, id)
	}

	return args
}

// Remove deletes operations by id
func (s *SQLStore) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range chunk(ids, removeChunkSize) {
		q := "DELETE FROM pending_ops WHERE id IN (" + database.Placeholders(len(c)) + ")"
		if _, err := tx.ExecContext(ctx, q, toArgs(c)...); err != nil {
			return errors.Wrap(err, "deleting operations")
		}
	}

	return tx.Commit()
}

// MarkFailed increments the attempt counter and records the error of the given operations
func (s *SQLStore) MarkFailed(ctx context.Context, ids []string, msg string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range chunk(ids, removeChunkSize) {
		q := "UPDATE pending_ops SET attempts = attempts + 1, last_error = ? WHERE id IN (" + database.Placeholders(len(c)) + ")"
		if _, err := tx.ExecContext(ctx, q, toArgs(c, msg)...); err != nil {
			return errors.Wrap(err, "marking operations as failed")
		}
	}

	return tx.Commit()
}

// Count returns the number of pending operations
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM pending_ops").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "counting pending operations")
	}

	return count, nil
}

// All returns every pending operation in order
func (s *SQLStore) All(ctx context.Context) ([]op.Operation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM pending_ops ORDER BY enqueued_at ASC, id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "querying pending operations")
	}

	return scanOps(rows)
}

// Clear deletes every pending operation
func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pending_ops"); err != nil {
		return errors.Wrap(err, "clearing pending operations")
	}

	return nil
}

// ReplaceAll replaces every pending operation with the given ones in a single transaction
func (s *SQLStore) ReplaceAll(ctx context.Context, ops []op.Operation) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_ops"); err != nil {
		return errors.Wrap(err, "clearing pending operations")
	}
	for _, o := range ops {
		if err := insert(ctx, tx, o); err != nil {
			return err
		}
	}

	return tx.Commit()
}
