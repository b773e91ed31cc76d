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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/tillsync/tillsync/pkg/assert"
)

type request struct {
	Method string
	Path   string
	Status int
}

type recordingObserver struct {
	mu       sync.Mutex
	requests []request
}

func (o *recordingObserver) ObserveRequest(method, path string, status int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, request{method, path, status})
}

func TestLogging(t *testing.T) {
	o := &recordingObserver{}

	r := mux.NewRouter()
	r.Use(Logging(o))
	r.HandleFunc("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods("GET")

	for _, p := range []string{"/orders/123", "/health"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", p, nil))
	}

	assert.DeepEqual(t, o.requests, []request{
		{"GET", "/orders/{id}", http.StatusTeapot},
		{"GET", "/health", http.StatusOK},
	}, "requests mismatch")
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, w.Code, http.StatusInternalServerError, "status mismatch")
	assert.Equal(t, w.Header().Get("Content-Type"), "application/json", "content type mismatch")
}
