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

package mysql

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/blinklabs-io/ratify/database/plugin/index/gormstore"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var ErrMissingDSN = errors.New("mysql index requires a DSN")

// Register plugin
func init() {
	plugin.Register(
		plugin.PluginEntry{
			Name:        "mysql",
			Description: "MySQL relational database",
			NewFunc: func(opts plugin.Options) (plugin.Store, error) {
				return New(opts.DSN, opts.Logger)
			},
		},
	)
}

// New connects to MySQL using a DSN such as
// "ratify:secret@tcp(localhost:3306)/ratify?parseTime=true"
func New(dsn string, logger *slog.Logger) (*gormstore.Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrMissingDSN
	}
	indexDb, err := gorm.Open(
		gormmysql.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return nil, err
	}
	sqlDB, err := indexDb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	logger = logger.With("component", "index", "plugin", "mysql")
	logger.Info("connected to mysql campaign index")
	return gormstore.New(indexDb, logger)
}
