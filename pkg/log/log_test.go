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

package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })

	return &buf
}

func TestSetLevel(t *testing.T) {
	// Reset to default after test
	defer SetLevel(LevelInfo)

	SetLevel(LevelDebug)
	if currentLevel != LevelDebug {
		t.Errorf("Expected level %s, got %s", LevelDebug, currentLevel)
	}

	SetLevel(LevelError)
	if currentLevel != LevelError {
		t.Errorf("Expected level %s, got %s", LevelError, currentLevel)
	}
}

func TestShouldLog(t *testing.T) {
	// Reset to default after test
	defer SetLevel(LevelInfo)

	testCases := []struct {
		currentLevel string
		logLevel     string
		expected     bool
	}{
		{LevelDebug, LevelDebug, true},
		{LevelDebug, LevelError, true},
		{LevelInfo, LevelDebug, false},
		{LevelInfo, LevelInfo, true},
		{LevelInfo, LevelWarn, true},
		{LevelWarn, LevelInfo, false},
		{LevelWarn, LevelError, true},
		{LevelError, LevelWarn, false},
		{LevelError, LevelError, true},
	}

	for _, tc := range testCases {
		SetLevel(tc.currentLevel)
		result := shouldLog(tc.logLevel)
		if result != tc.expected {
			t.Errorf("current %s, log %s: expected %v, got %v", tc.currentLevel, tc.logLevel, tc.expected, result)
		}
	}
}

func TestEntryFormat(t *testing.T) {
	defer SetLevel(LevelInfo)
	SetLevel(LevelDebug)
	buf := captureOutput(t)

	WithFields(Fields{
		"batch":   25,
		"err":     errors.New("boom"),
		"backoff": 20 * time.Second,
	}).WithField("org", "org-1").Warn("flush failed")

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(errors.Wrap(err, "decoding log line"))
	}

	if got["level"] != LevelWarn {
		t.Errorf("level mismatch: %v", got["level"])
	}
	if got["msg"] != "flush failed" {
		t.Errorf("msg mismatch: %v", got["msg"])
	}
	if got["err"] != "boom" {
		t.Errorf("error field was not stringified: %v", got["err"])
	}
	if got["backoff"] != "20s" {
		t.Errorf("duration field was not stringified: %v", got["backoff"])
	}
	if got["org"] != "org-1" {
		t.Errorf("org mismatch: %v", got["org"])
	}
}

func TestLevelFiltering(t *testing.T) {
	defer SetLevel(LevelInfo)
	SetLevel(LevelWarn)
	buf := captureOutput(t)

	Info("hidden")
	Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should have been filtered: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("error line missing: %s", out)
	}
}

func TestValidLevel(t *testing.T) {
	for _, l := range []string{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if !ValidLevel(l) {
			t.Errorf("%s should be valid", l)
		}
	}
	if ValidLevel("verbose") {
		t.Error("verbose should not be valid")
	}
}
