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

// Package reconcile keeps the mapping from client-generated entity ids to the
// canonical ids assigned by the server
package reconcile

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/database"
)

// ErrEmptyID is returned when a client or server id is empty
var ErrEmptyID = errors.New("empty entity id")

// Entry is a single mapping
type Entry struct {
	ClientID  string    `json:"clientId"`
	ServerID  string    `json:"serverId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Map is a durable client id to server id map
type Map struct {
	db    *database.DB
	clock clock.Clock
}

// New returns a map backed by the reconciliation table of the given database
func New(db *database.DB, c clock.Clock) *Map {
	return &Map{db: db, clock: c}
}

// Get returns the server id mapped to the given client id
func (m *Map) Get(ctx context.Context, clientID string) (string, bool, error) {
	if clientID == "" {
		return "", false, ErrEmptyID
	}

	var serverID string
	err := m.db.QueryRowContext(ctx, "SELECT server_id FROM reconciliation WHERE client_id = ?", clientID).Scan(&serverID)
	if err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, errors.Wrapf(err, "getting server id of %s", clientID)
	}

	return serverID, true, nil
}

// Set maps the client id to the server id. It overwrites any existing mapping.
func (m *Map) Set(ctx context.Context, clientID, serverID string) error {
	if clientID == "" || serverID == "" {
		return ErrEmptyID
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO reconciliation (client_id, server_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET server_id = excluded.server_id, updated_at = excluded.updated_at`,
		clientID, serverID, m.clock.Now().UnixNano())
	if err != nil {
		return errors.Wrapf(err, "mapping %s to %s", clientID, serverID)
	}

	return nil
}

// Resolve returns the server id of the given id if it is known, and the id itself otherwise
func (m *Map) Resolve(ctx context.Context, id string) (string, error) {
	serverID, ok, err := m.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return id, nil
	}

	return serverID, nil
}

// All returns every mapping ordered by client id
func (m *Map) All(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT client_id, server_id, updated_at FROM reconciliation ORDER BY client_id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "querying reconciliation entries")
	}
	defer rows.Close()

	ret := []Entry{}
	for rows.Next() {
		var e Entry
		var updatedAt int64
		if err := rows.Scan(&e.ClientID, &e.ServerID, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning reconciliation entry")
		}
		e.UpdatedAt = time.Unix(0, updatedAt).UTC()

		ret = append(ret, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating reconciliation entries")
	}

	return ret, nil
}
