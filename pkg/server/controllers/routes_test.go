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
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/assert"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/op"
	"github.com/tillsync/tillsync/pkg/server/app"
	mw "github.com/tillsync/tillsync/pkg/server/middleware"
	"github.com/tillsync/tillsync/pkg/server/testutils"
)

func TestNewRouterValidatesApp(t *testing.T) {
	testCases := []struct {
		name     string
		app      app.App
		expected error
	}{
		{
			name:     "missing clock",
			app:      app.App{DB: testutils.InitMemoryDB(t)},
			expected: app.ErrEmptyClock,
		},
		{
			name:     "missing db",
			app:      app.App{Clock: clock.NewMock()},
			expected: app.ErrEmptyDB,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewHTTP()
			_, err := NewRouter(&tc.app, RouteConfig{Routes: NewRoutes(New(&tc.app, m), m), Metrics: m})

			assert.Equal(t, errors.Cause(err), tc.expected, "error mismatch")
		})
	}
}

func TestRateLimit(t *testing.T) {
	a := newTestApp(t)

	limiter := mw.NewRateLimiter(1)
	defer limiter.Close()

	server, err := NewServer(a, limiter)
	if err != nil {
		t.Fatal(errors.Wrap(err, "initializing server"))
	}
	defer server.Close()

	var codes []int
	for i := 0; i < 3; i++ {
		req := testutils.MakeBatchReq(t, server.URL, "org-1", []op.Operation{testutils.NewOp("op-1", op.TypeCreateOrder, "order-1")})
		res := testutils.HTTPDo(t, req)
		res.Body.Close()

		codes = append(codes, res.StatusCode)
	}

	assert.DeepEqual(t, codes, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, "status codes mismatch")

	t.Run("health is not limited", func(t *testing.T) {
		res := testutils.HTTPDo(t, testutils.MakeReq(server.URL, "GET", "/health", ""))
		defer res.Body.Close()

		assert.StatusCodeEquals(t, res, http.StatusOK, "status code mismatch")
	})
}

func TestNotFound(t *testing.T) {
	a := newTestApp(t)
	server := MustNewServer(t, a)

	res := testutils.HTTPDo(t, testutils.MakeReq(server.URL, "GET", "/api/v3/notes", ""))
	defer res.Body.Close()

	assert.StatusCodeEquals(t, res, http.StatusNotFound, "status code mismatch")
}
