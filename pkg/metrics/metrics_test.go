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

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tillsync/tillsync/pkg/assert"
)

func TestSync(t *testing.T) {
	m := NewSync()

	m.SetQueueDepth(7)
	m.ObserveFlush(3, 1, time.Second)
	m.ObserveFlush(2, 0, time.Second)
	m.SetBackoff(20 * time.Second)

	assert.Equal(t, testutil.ToFloat64(m.queueDepth), float64(7), "queue depth mismatch")
	assert.Equal(t, testutil.ToFloat64(m.opsFlushed), float64(5), "flushed mismatch")
	assert.Equal(t, testutil.ToFloat64(m.opsFailed), float64(1), "failed mismatch")
	assert.Equal(t, testutil.ToFloat64(m.backoff), float64(20), "backoff mismatch")
}

func TestIndependentRegistries(t *testing.T) {
	a := NewSync()
	b := NewSync()

	a.SetQueueDepth(1)
	assert.Equal(t, testutil.ToFloat64(b.queueDepth), float64(0), "instances share collectors")
}

func TestSyncHandler(t *testing.T) {
	m := NewSync()
	m.SetQueueDepth(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.StatusCodeEquals(t, rec.Result(), http.StatusOK, "status mismatch")
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tillsync_queue_depth 4") {
		t.Errorf("queue depth not exposed:\n%s", body)
	}
}

func TestHTTP(t *testing.T) {
	m := NewHTTP()

	m.ObserveRequest(http.MethodPost, "/sync/batch", 200, time.Millisecond)
	m.ObserveRequest(http.MethodPost, "/sync/batch", 200, time.Millisecond)
	m.ObserveOpResult("SKIP")

	assert.Equal(t, testutil.ToFloat64(m.requestTotal.WithLabelValues(http.MethodPost, "/sync/batch", "200")), float64(2), "requests mismatch")
	assert.Equal(t, testutil.ToFloat64(m.opResults.WithLabelValues("SKIP")), float64(1), "op results mismatch")
}
