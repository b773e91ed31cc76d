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

// Package metrics exposes prometheus collectors for the sync engine and the server.
// Collectors are registered on a registry owned by each instance.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync holds the metrics of a terminal's sync engine
type Sync struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	opsFlushed    prometheus.Counter
	opsFailed     prometheus.Counter
	backoff       prometheus.Gauge
	flushDuration prometheus.Histogram
}

// NewSync creates the sync metrics on a new registry
func NewSync() *Sync {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Sync{
		registry: reg,
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tillsync_queue_depth",
				Help: "Number of operations pending delivery",
			},
		),
		opsFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tillsync_ops_flushed_total",
				Help: "Total number of queued operations confirmed by the server",
			},
		),
		opsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tillsync_ops_failed_total",
				Help: "Total number of queued operations that failed a delivery attempt",
			},
		),
		backoff: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tillsync_sync_backoff_seconds",
				Help: "Current interval between flushes",
			},
		),
		flushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tillsync_flush_duration_seconds",
				Help:    "Duration of queue flushes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// SetQueueDepth records the number of pending operations
func (m *Sync) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// ObserveFlush records the outcome of a flush
func (m *Sync) ObserveFlush(flushed, failed int, d time.Duration) {
	m.opsFlushed.Add(float64(flushed))
	m.opsFailed.Add(float64(failed))
	m.flushDuration.Observe(d.Seconds())
}

// SetBackoff records the current flush interval
func (m *Sync) SetBackoff(d time.Duration) {
	m.backoff.Set(d.Seconds())
}

// Handler serves the metrics in the prometheus exposition format
func (m *Sync) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTP holds the request metrics of the server
type HTTP struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	opResults       *prometheus.CounterVec
}

// NewHTTP creates the server metrics on a new registry
func NewHTTP() *HTTP {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &HTTP{
		registry: reg,
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		opResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tillsync_server_op_results_total",
				Help: "Total number of operations processed, by result status",
			},
			[]string{"status"},
		),
	}
}

// ObserveRequest records a served request
func (m *HTTP) ObserveRequest(method, path string, status int, d time.Duration) {
	s := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, s).Observe(d.Seconds())
	m.requestTotal.WithLabelValues(method, path, s).Inc()
}

// ObserveOpResult records the result status of a processed operation
func (m *HTTP) ObserveOpResult(status string) {
	m.opResults.WithLabelValues(status).Inc()
}

// Handler serves the metrics in the prometheus exposition format
func (m *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
