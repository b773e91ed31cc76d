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

package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/server/app"
)

// maxBatchSize is the most operations accepted in one request
const maxBatchSize = 500

// maxBodyBytes bounds the size of a request body
const maxBodyBytes = 4 << 20

// NewSync creates a new Sync controller
func NewSync(app *app.App, m *metrics.HTTP) *Sync {
	return &Sync{
		app:     app,
		metrics: m,
	}
}

// Sync is a sync controller
type Sync struct {
	app     *app.App
	metrics *metrics.HTTP
}

// Batch handles POST /sync/batch. It applies each operation in order and answers with
// one result per operation.
func (s *Sync) Batch(w http.ResponseWriter, r *http.Request) {
	orgID := r.Header.Get(client.HeaderOrgID)
	if orgID == "" {
		handleJSONError(w, http.StatusBadRequest, nil, "missing "+client.HeaderOrgID+" header")
		return
	}

	var req client.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		handleJSONError(w, http.StatusBadRequest, err, "invalid request body")
		return
	}
	if len(req.Ops) > maxBatchSize {
		handleJSONError(w, http.StatusRequestEntityTooLarge, nil, "too many operations")
		return
	}

	// a single operation send names its operation in the idempotency key
	if key := r.Header.Get(client.HeaderIdempotencyKey); key != "" {
		if len(req.Ops) != 1 || req.Ops[0].ClientOpID != key {
			handleJSONError(w, http.StatusBadRequest, nil, "idempotency key does not match the operation")
			return
		}
	}

	results, err := s.app.ApplyBatch(orgID, req.Ops)
	if err != nil {
		handleJSONError(w, http.StatusInternalServerError, err, "applying operations")
		return
	}

	if s.metrics != nil {
		for _, res := range results {
			s.metrics.ObserveOpResult(string(res.Status))
		}
	}

	respondJSON(w, http.StatusOK, client.BatchResponse{Results: results})
}
