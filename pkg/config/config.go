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

// Package config resolves the configuration of a terminal from flags, the environment,
// an optional .env file and the config file
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/tillsync/tillsync/pkg/dirs"
	"github.com/tillsync/tillsync/pkg/log"
	"gopkg.in/yaml.v2"
)

const (
	// DirName is the name of the tillsync directory under the XDG base directories
	DirName = "tillsync"
	// Filename is the name of the config file
	Filename = "tillsyncrc"
	// DBFilename is the name of the local database file
	DBFilename = "tillsync.db"
)

// Defaults
const (
	DefaultAPIEndpoint    = "http://localhost:3001"
	DefaultBatchSize      = 25
	DefaultBaseInterval   = 10 * time.Second
	DefaultMaxInterval    = 60 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultLogLevel       = log.LevelInfo
)

// Environment variables
const (
	EnvAPIEndpoint    = "TILLSYNC_API_ENDPOINT"
	EnvOrgID          = "TILLSYNC_ORG_ID"
	EnvBatchSize      = "TILLSYNC_BATCH_SIZE"
	EnvBaseInterval   = "TILLSYNC_BASE_INTERVAL"
	EnvMaxInterval    = "TILLSYNC_MAX_INTERVAL"
	EnvRequestTimeout = "TILLSYNC_REQUEST_TIMEOUT"
	EnvLogLevel       = "TILLSYNC_LOG_LEVEL"
	EnvDBPath         = "TILLSYNC_DB_PATH"
)

var (
	// ErrEndpointInvalid is an error for an invalid API endpoint
	ErrEndpointInvalid = errors.New("Invalid API endpoint")
	// ErrOrgIDMissing is an error for a configuration without an organization
	ErrOrgIDMissing = errors.New("Organization id is empty")
	// ErrBatchSizeInvalid is an error for a non-positive batch size
	ErrBatchSizeInvalid = errors.New("Invalid batch size")
	// ErrIntervalInvalid is an error for inconsistent flush intervals
	ErrIntervalInvalid = errors.New("Invalid flush interval")
	// ErrTimeoutInvalid is an error for a non-positive request timeout
	ErrTimeoutInvalid = errors.New("Invalid request timeout")
	// ErrLogLevelInvalid is an error for an unknown log level
	ErrLogLevelInvalid = errors.New("Invalid log level")
	// ErrDBMissingPath is an error for a configuration missing the database path
	ErrDBMissingPath = errors.New("DB Path is empty")
)

// File is the content of the config file. Durations are strings such as "10s".
type File struct {
	APIEndpoint    string `yaml:"apiEndpoint,omitempty"`
	OrgID          string `yaml:"orgId,omitempty"`
	BatchSize      int    `yaml:"batchSize,omitempty"`
	BaseInterval   string `yaml:"baseInterval,omitempty"`
	MaxInterval    string `yaml:"maxInterval,omitempty"`
	RequestTimeout string `yaml:"requestTimeout,omitempty"`
	LogLevel       string `yaml:"logLevel,omitempty"`
	DBPath         string `yaml:"dbPath,omitempty"`
}

// Config is the resolved configuration of a terminal
type Config struct {
	APIEndpoint    string
	OrgID          string
	BatchSize      int
	BaseInterval   time.Duration
	MaxInterval    time.Duration
	RequestTimeout time.Duration
	LogLevel       string
	DBPath         string
}

// Params are the configuration parameters for creating a new Config.
// Empty values fall back to the environment, then the config file, then defaults.
type Params struct {
	APIEndpoint string
	OrgID       string
	DBPath      string
	LogLevel    string
	// ConfigPath is the config file. A missing file is not an error.
	ConfigPath string
	// EnvFile is an optional .env file loaded before reading the environment
	EnvFile string
	// Dirs is used to derive the default database path
	Dirs dirs.Dirs
}

// GetPath returns the path to the config file
func GetPath(d dirs.Dirs) string {
	return filepath.Join(d.ConfigHome, DirName, Filename)
}

// DefaultDBPath returns the default path to the local database
func DefaultDBPath(d dirs.Dirs) string {
	return filepath.Join(d.DataHome, DirName, DBFilename)
}

// Read reads the config file at the given path
func Read(path string) (File, error) {
	var ret File

	b, err := os.ReadFile(path)
	if err != nil {
		return ret, errors.Wrap(err, "reading config file")
	}

	err = yaml.Unmarshal(b, &ret)
	if err != nil {
		return ret, errors.Wrap(err, "unmarshalling config")
	}

	return ret, nil
}

// Write writes the config file at the given path
func Write(path string, f File) error {
	b, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshalling config into YAML")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	err = os.WriteFile(path, b, 0644)
	if err != nil {
		return errors.Wrap(err, "writing the config file")
	}

	return nil
}

// first returns the first non-empty value
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func parseDuration(name, v string, fallback time.Duration) (time.Duration, error) {
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", name)
	}

	return d, nil
}

func loadFile(path string) (File, error) {
	if path == "" {
		return File{}, nil
	}

	f, err := Read(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return File{}, nil
		}

		return File{}, err
	}

	return f, nil
}

// New constructs and returns a new validated config
func New(p Params) (Config, error) {
	if p.EnvFile != "" {
		if err := godotenv.Load(p.EnvFile); err != nil && !os.IsNotExist(err) {
			return Config{}, errors.Wrapf(err, "loading %s", p.EnvFile)
		}
	}

	f, err := loadFile(p.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	c := Config{
		APIEndpoint: first(p.APIEndpoint, os.Getenv(EnvAPIEndpoint), f.APIEndpoint, DefaultAPIEndpoint),
		OrgID:       first(p.OrgID, os.Getenv(EnvOrgID), f.OrgID),
		LogLevel:    first(p.LogLevel, os.Getenv(EnvLogLevel), f.LogLevel, DefaultLogLevel),
		DBPath:      first(p.DBPath, os.Getenv(EnvDBPath), f.DBPath, DefaultDBPath(p.Dirs)),
		BatchSize:   DefaultBatchSize,
	}

	if v := os.Getenv(EnvBatchSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, errors.Wrapf(ErrBatchSizeInvalid, "'%s'", v)
		}
		c.BatchSize = n
	} else if f.BatchSize != 0 {
		c.BatchSize = f.BatchSize
	}

	if c.BaseInterval, err = parseDuration("base interval", first(os.Getenv(EnvBaseInterval), f.BaseInterval), DefaultBaseInterval); err != nil {
		return Config{}, err
	}
	if c.MaxInterval, err = parseDuration("max interval", first(os.Getenv(EnvMaxInterval), f.MaxInterval), DefaultMaxInterval); err != nil {
		return Config{}, err
	}
	if c.RequestTimeout, err = parseDuration("request timeout", first(os.Getenv(EnvRequestTimeout), f.RequestTimeout), DefaultRequestTimeout); err != nil {
		return Config{}, err
	}

	if err := validate(c); err != nil {
		return Config{}, err
	}

	return c, nil
}

// File returns the config as the content of a config file
func (c Config) File() File {
	return File{
		APIEndpoint:    c.APIEndpoint,
		OrgID:          c.OrgID,
		BatchSize:      c.BatchSize,
		BaseInterval:   c.BaseInterval.String(),
		MaxInterval:    c.MaxInterval.String(),
		RequestTimeout: c.RequestTimeout.String(),
		LogLevel:       c.LogLevel,
		DBPath:         c.DBPath,
	}
}

func validate(c Config) error {
	u, err := url.ParseRequestURI(c.APIEndpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.Wrapf(ErrEndpointInvalid, "'%s'", c.APIEndpoint)
	}
	if c.OrgID == "" {
		return ErrOrgIDMissing
	}
	if c.BatchSize <= 0 {
		return errors.Wrapf(ErrBatchSizeInvalid, "%d", c.BatchSize)
	}
	if c.BaseInterval <= 0 || c.MaxInterval < c.BaseInterval {
		return errors.Wrapf(ErrIntervalInvalid, "base %s, max %s", c.BaseInterval, c.MaxInterval)
	}
	if c.RequestTimeout <= 0 {
		return errors.Wrapf(ErrTimeoutInvalid, "%s", c.RequestTimeout)
	}
	if !log.ValidLevel(c.LogLevel) {
		return errors.Wrapf(ErrLogLevelInvalid, "'%s'", c.LogLevel)
	}
	if c.DBPath == "" {
		return ErrDBMissingPath
	}

	return nil
}
