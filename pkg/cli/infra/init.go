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

// Package infra initializes the runtime of the CLI
package infra

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tillsync/tillsync/pkg/cli/context"
	"github.com/tillsync/tillsync/pkg/cli/log"
	"github.com/tillsync/tillsync/pkg/cli/utils"
	"github.com/tillsync/tillsync/pkg/clock"
	"github.com/tillsync/tillsync/pkg/config"
	"github.com/tillsync/tillsync/pkg/database"
	"github.com/tillsync/tillsync/pkg/dirs"
	slog "github.com/tillsync/tillsync/pkg/log"
)

// envFileName is an optional dotenv file read from the working directory
const envFileName = ".env"

// RunEFunc is a function type of tillsync commands
type RunEFunc func(*cobra.Command, []string) error

// Flags are the global flags that take part in initialization
type Flags struct {
	DBPath      string
	APIEndpoint string
	OrgID       string
}

// initConfigFile populates a new config file if it does not exist yet
func initConfigFile(path, apiEndpoint string) error {
	ok, err := utils.FileExists(path)
	if err != nil {
		return errors.Wrap(err, "checking if config exists")
	}
	if ok {
		return nil
	}

	endpoint := apiEndpoint
	if endpoint == "" {
		endpoint = config.DefaultAPIEndpoint
	}

	f := config.File{
		APIEndpoint:    endpoint,
		BatchSize:      config.DefaultBatchSize,
		BaseInterval:   config.DefaultBaseInterval.String(),
		MaxInterval:    config.DefaultMaxInterval.String(),
		RequestTimeout: config.DefaultRequestTimeout.String(),
		LogLevel:       config.DefaultLogLevel,
	}

	if err := config.Write(path, f); err != nil {
		return errors.Wrap(err, "writing config")
	}

	return nil
}

// Init initializes the tillsync environment and returns a new context.
// apiEndpoint is used when creating a new config file.
func Init(versionTag, apiEndpoint string, flags Flags) (*context.Ctx, error) {
	d, err := dirs.Load()
	if err != nil {
		return nil, errors.Wrap(err, "loading directories")
	}

	if err := context.InitDirs(d); err != nil {
		return nil, errors.Wrap(err, "creating the tillsync dir")
	}

	configPath := config.GetPath(d)
	if err := initConfigFile(configPath, apiEndpoint); err != nil {
		return nil, errors.Wrap(err, "generating the config file")
	}

	cfg, err := config.New(config.Params{
		APIEndpoint: flags.APIEndpoint,
		OrgID:       flags.OrgID,
		DBPath:      flags.DBPath,
		ConfigPath:  configPath,
		EnvFile:     envFileName,
		Dirs:        d,
	})
	if errors.Cause(err) == config.ErrOrgIDMissing {
		return nil, errors.Errorf("organization id is not configured. Pass --orgId, set %s or add orgId to %s", config.EnvOrgID, configPath)
	} else if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	slog.SetLevel(cfg.LogLevel)

	db, err := database.OpenAndMigrate(cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "initializing database")
	}

	ctx := context.New(versionTag, d, cfg, db, clock.New())

	log.Debug("config: %+v\n", cfg)

	return &ctx, nil
}

// AbsPath resolves a path given on the command line against the working directory
func AbsPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "getting working directory")
	}

	return filepath.Join(wd, p), nil
}
