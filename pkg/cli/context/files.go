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
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/cli/utils"
	"github.com/tillsync/tillsync/pkg/config"
	"github.com/tillsync/tillsync/pkg/dirs"
)

// InitDirs creates the tillsync directories if they don't already exist.
func InitDirs(d dirs.Dirs) error {
	if d.ConfigHome != "" {
		configDir := filepath.Join(d.ConfigHome, config.DirName)
		if err := utils.EnsureDir(configDir); err != nil {
			return errors.Wrap(err, "initializing config dir")
		}
	}
	if d.DataHome != "" {
		dataDir := filepath.Join(d.DataHome, config.DirName)
		if err := utils.EnsureDir(dataDir); err != nil {
			return errors.Wrap(err, "initializing data dir")
		}
	}
	if d.CacheHome != "" {
		cacheDir := filepath.Join(d.CacheHome, config.DirName)
		if err := utils.EnsureDir(cacheDir); err != nil {
			return errors.Wrap(err, "initializing cache dir")
		}
	}

	return nil
}
