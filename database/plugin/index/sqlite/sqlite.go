// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/blinklabs-io/ratify/database/plugin/index/gormstore"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const indexFileName = "index.sqlite"

// IndexStoreSqlite keeps the campaign index in SQLite
type IndexStoreSqlite struct {
	*gormstore.Store
	dataDir string
}

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Name:        "sqlite",
			Description: "SQLite relational database",
			NewFunc: func(opts plugin.Options) (plugin.Store, error) {
				return New(opts.DataDir, opts.Logger)
			},
		},
	)
}

// New creates a SQLite index store. Uses in-memory database if dataDir is empty.
func New(dataDir string, logger *slog.Logger) (*IndexStoreSqlite, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	gormConfig := &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	}
	var indexDb *gorm.DB
	var err error
	if dataDir == "" {
		// cache=shared allows multiple connections to share the same in-memory database
		indexDb, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			gormConfig,
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// WAL journal mode, wait on locks held by other writers
		connOpts := "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		indexDb, err = gorm.Open(
			sqlite.Open(
				fmt.Sprintf(
					"file:%s?%s",
					filepath.Join(dataDir, indexFileName),
					connOpts,
				),
			),
			gormConfig,
		)
		if err != nil {
			return nil, err
		}
	}
	store, err := gormstore.New(
		indexDb,
		logger.With("component", "index", "plugin", "sqlite"),
	)
	if err != nil {
		return nil, err
	}
	return &IndexStoreSqlite{
		Store:   store,
		dataDir: dataDir,
	}, nil
}

// DataDir returns the directory holding the index file, if any
func (d *IndexStoreSqlite) DataDir() string {
	return d.dataDir
}
