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

// Package dirs resolves the XDG base directories used for tillsync's config and data files
package dirs

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// The environment variable names for the XDG base directory specification
const (
	envConfigHome = "XDG_CONFIG_HOME"
	envDataHome   = "XDG_DATA_HOME"
	envCacheHome  = "XDG_CACHE_HOME"
)

// Dirs holds the base directories of the current user
type Dirs struct {
	Home string
	// ConfigHome is where user-specific configuration files are written
	ConfigHome string
	// DataHome is where user-specific data files, such as the local database, are written
	DataHome string
	// CacheHome is where non-essential cached data is written
	CacheHome string
}

func readPath(envName, defaultPath string) string {
	if dir := os.Getenv(envName); dir != "" {
		return dir
	}

	return defaultPath
}

// Load resolves the base directories from the environment, falling back to the
// XDG defaults under the home directory
func Load() (Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Dirs{}, errors.Wrap(err, "getting home dir")
	}

	return Dirs{
		Home:       home,
		ConfigHome: readPath(envConfigHome, filepath.Join(home, ".config")),
		DataHome:   readPath(envDataHome, filepath.Join(home, ".local", "share")),
		CacheHome:  readPath(envCacheHome, filepath.Join(home, ".cache")),
	}, nil
}
