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

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/client"
	"github.com/tillsync/tillsync/pkg/metrics"
	"github.com/tillsync/tillsync/pkg/server/app"
	mw "github.com/tillsync/tillsync/pkg/server/middleware"
)

// Route represents a single route
type Route struct {
	Method    string
	Pattern   string
	Handler   http.Handler
	RateLimit bool
}

// RouteConfig is the configuration for routes
type RouteConfig struct {
	Routes []Route
	// Limiter rate limits the routes that ask for it. Nil disables rate limiting.
	Limiter *mw.RateLimiter
	Metrics *metrics.HTTP
}

// NewRoutes returns the routes of the server
func NewRoutes(c *Controllers, m *metrics.HTTP) []Route {
	return []Route{
		{"POST", client.BatchPath, http.HandlerFunc(c.Sync.Batch), true},
		{"GET", "/health", http.HandlerFunc(c.Health.Index), false},
		{"GET", "/metrics", m.Handler(), false},
	}
}

// NewRouter creates and returns a new router
func NewRouter(app *app.App, rc RouteConfig) (http.Handler, error) {
	if err := app.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating the app parameters")
	}

	router := mux.NewRouter().StrictSlash(true)
	router.Use(mw.Logging(rc.Metrics))

	for _, route := range rc.Routes {
		h := route.Handler
		if route.RateLimit && rc.Limiter != nil {
			h = rc.Limiter.Limit(h)
		}

		router.Handle(route.Pattern, h).Methods(route.Method)
	}

	return mw.Recovery(router), nil
}
