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

package context

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/config"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/dirs"
)

// getDefaultTestDirs creates test directories all pointing to a temp directory
func getDefaultTestDirs(t *testing.T) dirs.Dirs {
	tmpDir := t.TempDir()
	return dirs.Dirs{
		Home:       tmpDir,
		ConfigHome: tmpDir,
		DataHome:   tmpDir,
		CacheHome:  tmpDir,
	}
}

// InitTestCtx initializes a test context talking to the given endpoint, with an
// in-memory database, a mock clock and a temporary directory for all paths
func InitTestCtx(t *testing.T, apiEndpoint string) Ctx {
	d := getDefaultTestDirs(t)
	if err := InitDirs(d); err != nil {
		t.Fatal(errors.Wrap(err, "creating test directories"))
	}

	cfg := config.Config{
		APIEndpoint:    apiEndpoint,
		OrgID:          "org-test",
		BatchSize:      config.DefaultBatchSize,
		BaseInterval:   config.DefaultBaseInterval,
		MaxInterval:    config.DefaultMaxInterval,
		RequestTimeout: 5 * time.Second,
		LogLevel:       config.DefaultLogLevel,
		DBPath:         "memory",
	}

	return New("test", d, cfg, database.InitTestMemoryDB(t), clock.NewMock())
}
