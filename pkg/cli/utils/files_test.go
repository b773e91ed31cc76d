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

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tillsync/tillsync/pkg/assert"
)

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "test", "nested", "dir")

	err := EnsureDir(testPath)
	assert.Equal(t, err, nil, "EnsureDir should succeed")

	info, err := os.Stat(testPath)
	assert.Equal(t, err, nil, "directory should exist")
	assert.Equal(t, info.IsDir(), true, "should be a directory")

	// idempotent
	err = EnsureDir(testPath)
	assert.Equal(t, err, nil, "EnsureDir should succeed on existing directory")
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "file")

	ok, err := FileExists(path)
	assert.NoError(t, err, "checking missing file")
	assert.Equal(t, ok, false, "missing file exists")

	assert.NoError(t, os.WriteFile(path, []byte("x"), 0644), "writing file")

	ok, err = FileExists(path)
	assert.NoError(t, err, "checking file")
	assert.Equal(t, ok, true, "file does not exist")
}

func TestWriteFileAtomic(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out", "queue.json")

	assert.NoError(t, WriteFileAtomic(path, []byte("first"), 0600), "writing")
	assert.NoError(t, WriteFileAtomic(path, []byte("second"), 0600), "overwriting")

	b, err := os.ReadFile(path)
	assert.NoError(t, err, "reading")
	assert.Equal(t, string(b), "second", "content mismatch")

	entries, err := os.ReadDir(filepath.Dir(path))
	assert.NoError(t, err, "listing")
	assert.Equal(t, len(entries), 1, "temporary files left behind")
}
