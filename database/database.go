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

package database

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/blinklabs-io/ratify/database/models"
	"github.com/blinklabs-io/ratify/database/plugin"
	"github.com/blinklabs-io/ratify/database/types"
	"github.com/prometheus/client_golang/prometheus"

	// Index plugins
	_ "github.com/blinklabs-io/ratify/database/plugin/index/badger"
	_ "github.com/blinklabs-io/ratify/database/plugin/index/mysql"
	_ "github.com/blinklabs-io/ratify/database/plugin/index/postgres"
	_ "github.com/blinklabs-io/ratify/database/plugin/index/sqlite"
)

const DefaultPlugin = "sqlite"

var (
	ErrNotFound    = types.ErrNotFound
	ErrStaleUpdate = types.ErrStaleUpdate
)

type Store = plugin.Store

type Config struct {
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	Plugin       string
	DataDir      string
	DSN          string
}

// Database is the off-chain campaign index
type Database struct {
	store   Store
	logger  *slog.Logger
	metrics *databaseMetrics
	plugin  string
	dataDir string
}

// New opens the configured index plugin, with optional persistence using
// the provided data directory
func New(cfg Config) (*Database, error) {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Plugin == "" {
		cfg.Plugin = DefaultPlugin
	}
	store, err := plugin.OpenPlugin(
		cfg.Plugin,
		plugin.Options{
			Logger:  cfg.Logger,
			DataDir: cfg.DataDir,
			DSN:     cfg.DSN,
		},
	)
	if err != nil {
		return nil, err
	}
	d := &Database{
		store:   store,
		logger:  cfg.Logger.With("component", "database"),
		plugin:  cfg.Plugin,
		dataDir: cfg.DataDir,
	}
	if cfg.PromRegistry != nil {
		d.metrics = newDatabaseMetrics(cfg.PromRegistry)
	}
	return d, nil
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Plugin returns the name of the index plugin in use
func (d *Database) Plugin() string {
	return d.plugin
}

// Store returns the underlying plugin store
func (d *Database) Store() Store {
	return d.store
}

func (d *Database) List(ctx context.Context) ([]models.Campaign, error) {
	ret, err := d.store.List(ctx)
	d.observe("list", err)
	return ret, err
}

func (d *Database) Get(ctx context.Context, address string) (*models.Campaign, error) {
	ret, err := d.store.Get(ctx, address)
	d.observe("get", err)
	return ret, err
}

func (d *Database) Upsert(ctx context.Context, entry *models.Campaign) error {
	err := d.store.Upsert(ctx, entry)
	d.observe("upsert", err)
	if errors.Is(err, types.ErrStaleUpdate) {
		d.logger.Debug(
			"discarded stale index update",
			"address", entry.Address,
			"version", entry.Version,
		)
	}
	return err
}

func (d *Database) MarkInactive(ctx context.Context, address string) error {
	err := d.store.MarkInactive(ctx, address)
	d.observe("mark_inactive", err)
	return err
}

func (d *Database) MarkCompleted(ctx context.Context, address string) error {
	err := d.store.MarkCompleted(ctx, address)
	d.observe("mark_completed", err)
	return err
}

// Close cleans up the database connections
func (d *Database) Close() error {
	return d.store.Close()
}

func (d *Database) observe(op string, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNotFound):
		result = "not_found"
	case errors.Is(err, types.ErrStaleUpdate):
		result = "stale"
	default:
		result = "error"
	}
	d.metrics.operations.WithLabelValues(d.plugin, op, result).Inc()
}
