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

// Package testutils provides utilities used in the tests of the sync server
package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/server/database"
	"gorm.io/gorm"
)

// InitMemoryDB creates an in-memory SQLite database with the schema initialized
func InitMemoryDB(t *testing.T) *gorm.DB {
	// Use file-based in-memory database with unique UUID per test to avoid sharing
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())

	db, err := database.OpenAndInit(database.DriverSQLite, dsn, log.LevelInfo)
	if err != nil {
		t.Fatal(errors.Wrap(err, "opening in-memory database"))
	}
	t.Cleanup(func() { database.Close(db) })

	return db
}

// MakeReq makes an HTTP request and returns a response
func MakeReq(endpoint string, method, path, data string) *http.Request {
	u := fmt.Sprintf("%s%s", endpoint, path)

	req, err := http.NewRequest(method, u, strings.NewReader(data))
	if err != nil {
		panic(errors.Wrap(err, "constructing http request"))
	}

	return req
}

// MakeBatchReq makes a batch request for the given organization
func MakeBatchReq(t *testing.T, endpoint, orgID string, ops []op.Operation) *http.Request {
	b, err := json.Marshal(client.BatchRequest{Ops: ops})
	if err != nil {
		t.Fatal(errors.Wrap(err, "marshalling batch"))
	}

	req, err := http.NewRequest("POST", endpoint+client.BatchPath, bytes.NewReader(b))
	if err != nil {
		t.Fatal(errors.Wrap(err, "constructing http request"))
	}
	req.Header.Set("Content-Type", "application/json")
	if orgID != "" {
		req.Header.Set(client.HeaderOrgID, orgID)
	}

	return req
}

// HTTPDo makes an HTTP request and returns a response
func HTTPDo(t *testing.T, req *http.Request) *http.Response {
	hc := http.Client{}

	res, err := hc.Do(req)
	if err != nil {
		t.Fatal(errors.Wrap(err, "performing http request"))
	}

	return res
}

// DecodeBatchResponse decodes the body of a batch response
func DecodeBatchResponse(t *testing.T, res *http.Response) client.BatchResponse {
	defer res.Body.Close()

	var ret client.BatchResponse
	if err := json.NewDecoder(res.Body).Decode(&ret); err != nil {
		t.Fatal(errors.Wrap(err, "decoding batch response"))
	}

	return ret
}

// NewOp builds an operation with a fixed id about the given order
func NewOp(id string, typ op.Type, entityID string) op.Operation {
	return op.Operation{
		ClientOpID:     id,
		Type:           typ,
		Payload:        json.RawMessage(fmt.Sprintf(`{"orderId":%q}`, entityID)),
		ClientEntityID: entityID,
	}
}

// MustExec fails the test if the given database query has error
func MustExec(t *testing.T, db *gorm.DB, message string) {
	if err := db.Error; err != nil {
		t.Fatalf("%s: %s", message, err.Error())
	}
}
