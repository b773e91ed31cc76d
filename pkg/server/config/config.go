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

// Package config provides the configuration of the reference sync server
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/dirs"
	"github.com/tillsync/tillsync/pkg/log"
	"github.com/tillsync/tillsync/pkg/server/database"
)

const (
	// DriverSQLite stores server state in a SQLite file
	DriverSQLite = database.DriverSQLite
	// DriverPostgres stores server state in PostgreSQL
	DriverPostgres = database.DriverPostgres

	// DefaultDBDir is the default directory name for server data
	DefaultDBDir = "tillsync"
	// DefaultDBFilename is the default database filename
	DefaultDBFilename = "server.db"
	// DefaultRetention is how long applied operations are remembered for deduplication
	DefaultRetention = 30 * 24 * time.Hour
	// DefaultPruneSchedule is the cron spec of the pruning job
	DefaultPruneSchedule = "@hourly"
)

var (
	// ErrDBMissingDSN is an error for an incomplete configuration missing the database DSN
	ErrDBMissingDSN = errors.New("DB DSN is empty")
	// ErrDBDriverInvalid is an error for an unsupported database driver
	ErrDBDriverInvalid = errors.New("Invalid DB driver")
	// ErrPortInvalid is an error for an incomplete configuration with invalid port
	ErrPortInvalid = errors.New("Invalid Port")
	// ErrRetentionInvalid is an error for a non-positive retention
	ErrRetentionInvalid = errors.New("Invalid idempotency retention")
	// ErrLogLevelInvalid is an error for an unknown log level
	ErrLogLevelInvalid = errors.New("Invalid log level")
)

// getOrEnv returns value if non-empty, otherwise env var, otherwise default
func getOrEnv(value, envKey, defaultVal string) string {
	if value != "" {
		return value
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return defaultVal
}

// defaultDSN returns the path of the SQLite database under the XDG data directory
func defaultDSN() string {
	d, err := dirs.Load()
	if err != nil {
		return DefaultDBFilename
	}

	return filepath.Join(d.DataHome, DefaultDBDir, DefaultDBFilename)
}

// Config is an application configuration
type Config struct {
	Port          string
	DBDriver      string
	DBDSN         string
	LogLevel      string
	Retention     time.Duration
	PruneSchedule string
	// RateLimit is the number of requests per second accepted from one client IP.
	// Zero disables rate limiting.
	RateLimit int
}

// Params are the configuration parameters for creating a new Config
type Params struct {
	Port          string
	DBDriver      string
	DBDSN         string
	LogLevel      string
	Retention     string
	PruneSchedule string
	RateLimit     string
}

// New constructs and returns a new validated config.
// Empty string params will fall back to environment variables and defaults.
func New(p Params) (Config, error) {
	driver := getOrEnv(p.DBDriver, "DB_DRIVER", DriverSQLite)

	var dsnDefault string
	if driver == DriverSQLite {
		dsnDefault = defaultDSN()
	}

	retention, err := time.ParseDuration(getOrEnv(p.Retention, "IDEMPOTENCY_RETENTION", DefaultRetention.String()))
	if err != nil {
		return Config{}, errors.Wrap(ErrRetentionInvalid, err.Error())
	}

	rateLimit, err := strconv.Atoi(getOrEnv(p.RateLimit, "RATE_LIMIT", "50"))
	if err != nil {
		return Config{}, errors.Wrapf(err, "parsing rate limit")
	}

	c := Config{
		Port:          getOrEnv(p.Port, "PORT", "3001"),
		DBDriver:      driver,
		DBDSN:         getOrEnv(p.DBDSN, "DB_DSN", dsnDefault),
		LogLevel:      getOrEnv(p.LogLevel, "LOG_LEVEL", log.LevelInfo),
		Retention:     retention,
		PruneSchedule: getOrEnv(p.PruneSchedule, "PRUNE_SCHEDULE", DefaultPruneSchedule),
		RateLimit:     rateLimit,
	}

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

func validate(c Config) error {
	if c.Port == "" {
		return ErrPortInvalid
	}
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		return errors.Wrapf(ErrDBDriverInvalid, "'%s'", c.DBDriver)
	}
	if c.DBDSN == "" {
		return ErrDBMissingDSN
	}
	if c.Retention <= 0 {
		return ErrRetentionInvalid
	}
	if !log.ValidLevel(c.LogLevel) {
		return errors.Wrapf(ErrLogLevelInvalid, "'%s'", c.LogLevel)
	}

	return nil
}
