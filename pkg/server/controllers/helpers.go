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

	"github.com/tillsync/tillsync/pkg/log"
)

// errorBody is the body of an error response
type errorBody struct {
	Error string `json:"error"`
}

// respondJSON writes v as a JSON response with the given status code
func respondJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ErrorWrap(err, "encoding response")
	}
}

// handleJSONError logs err if it is a server error and writes msg as a JSON error response
func handleJSONError(w http.ResponseWriter, statusCode int, err error, msg string) {
	if statusCode >= 500 && err != nil {
		log.ErrorWrap(err, msg)
	}

	respondJSON(w, statusCode, errorBody{Error: msg})
}
